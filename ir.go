package boxconv

// The intermediate annotation representation shared by all readers and exporters.

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Keys for known annotation attributes.
const (
	Confidence     = "Confidence"     // Detector confidence. Type float64 in [0.0, 1.0].
	DetectedText   = "Text"           // Text that is associated with the bounding box. Type string.
	TextConfidence = "TextConfidence" // OCR confidence of DetectedText. Type float64 in [0.0, 1.0].
)

// Point is a pixel position. It is encoded in JSON as [x, y].
type Point struct {
	X, Y float64
}

// MarshalJSON implements json.Marshaler.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// UnmarshalJSON implements json.Unmarshaler. Exactly two numbers are accepted.
func (p *Point) UnmarshalJSON(b []byte) error {
	var v []float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if len(v) != 2 {
		return fmt.Errorf("point has %d coordinates, want 2", len(v))
	}
	p.X, p.Y = v[0], v[1]
	return nil
}

// Box is a labelled rectangle given by two opposite corners. The corners are in no particular
// order until the box is canonicalized.
type Box struct {
	Attributes map[string]interface{} // Additional attributes, e.g. Confidence.
	Label      string
	Points     [2]Point
	Source     int // Index of the shape or object in the source annotation file.
}

// Coords returns the corners as x1, y1, x2, y2.
func (b Box) Coords() [4]float64 {
	return [4]float64{b.Points[0].X, b.Points[0].Y, b.Points[1].X, b.Points[1].Y}
}

// Width is the signed x extent. It is non-negative for canonical boxes.
func (b Box) Width() float64 {
	return b.Points[1].X - b.Points[0].X
}

// Height is the signed y extent. It is non-negative for canonical boxes.
func (b Box) Height() float64 {
	return b.Points[1].Y - b.Points[0].Y
}

// Canonical returns b with its first point at (min x, min y) and its second point at
// (max x, max y). The x and y coordinates are swapped independently of each other.
func (b Box) Canonical() Box {
	p1, p2 := b.Points[0], b.Points[1]
	if p1.X > p2.X {
		p1.X, p2.X = p2.X, p1.X
	}
	if p1.Y > p2.Y {
		p1.Y, p2.Y = p2.Y, p1.Y
	}
	b.Points = [2]Point{p1, p2}
	return b
}

// Degenerate reports whether the box has zero width or zero height.
func (b Box) Degenerate() bool {
	c := b.Canonical()
	return c.Points[0].X == c.Points[1].X || c.Points[0].Y == c.Points[1].Y
}

// Finite reports whether all coordinates of b are finite numbers.
func (b Box) Finite() bool {
	for _, v := range b.Coords() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Canonicalize returns the canonical form of b. ok is false if the box is degenerate, in which
// case it must not be exported.
func Canonicalize(b Box) (canonical Box, ok bool) {
	canonical = b.Canonical()
	return canonical, !canonical.Degenerate()
}

// AnnotatedFile is the annotation record for one image.
type AnnotatedFile struct {
	Boxes     []Box  // The boxes, in source order.
	FilePath  string // The annotation file the record was read from.
	ImagePath string // The annotated image. May be relative to the annotation file.
	Width     int    // Image width in pixels.
	Height    int    // Image height in pixels.

	// Raw is the source document for records read from LabelMe JSON. It lets the JSON exporter
	// preserve fields it does not rewrite.
	Raw []byte
}

// ImageBaseName returns the image file name without directory and extension. Both slash and
// backslash separators are handled, since annotation tools on Windows store the latter.
func (f AnnotatedFile) ImageBaseName() string {
	name := f.ImagePath
	if name == "" {
		name = f.FilePath
	}
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}

// ImageFileName returns the image file name without directory.
func (f AnnotatedFile) ImageFileName() string {
	name := strings.ReplaceAll(f.ImagePath, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// cloneBoxes returns a copy of boxes. Attribute maps are shared.
func cloneBoxes(boxes []Box) []Box {
	if boxes == nil {
		return nil
	}
	out := make([]Box, len(boxes))
	copy(out, boxes)
	return out
}

// LabelMapper replaces label (sub-)strings with substitution values.
type LabelMapper []struct{ old, new string }

// NewLabelMapper parses mappings of the form old=new.
func NewLabelMapper(mappings []string) (LabelMapper, error) {
	m := make(LabelMapper, len(mappings))
	for i, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 || a[0] == "" {
			return nil, fmt.Errorf("invalid mapping: %v", v)
		}

		m[i].old = a[0]
		m[i].new = a[1]
	}
	return m, nil
}

// Apply returns a copy of f with the replacements applied, in order, to all labels, and the
// number of labels that changed.
func (m LabelMapper) Apply(f AnnotatedFile) (AnnotatedFile, int) {
	if len(m) == 0 {
		return f, 0
	}

	count := 0
	f.Boxes = cloneBoxes(f.Boxes)
	for i := range f.Boxes {
		b := &f.Boxes[i]

		oldLabel := b.Label
		for _, r := range m {
			b.Label = strings.Replace(b.Label, r.old, r.new, -1)
		}

		if b.Label != oldLabel {
			count++
		}
	}
	return f, count
}

// Labels returns the sorted set of distinct labels used in files.
func Labels(files []AnnotatedFile) []string {
	seen := make(map[string]bool)
	for _, f := range files {
		for _, b := range f.Boxes {
			seen[b.Label] = true
		}
	}

	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
