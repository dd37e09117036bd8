package boxconv

// LabelMe JSON specific functionality.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// LabelMeShape is a single shape within a LabelMe file.
type LabelMeShape struct {
	Label     string          `json:"label"`
	Points    []Point         `json:"points"`
	GroupID   *int            `json:"group_id"`
	ShapeType string          `json:"shape_type"`
	Flags     map[string]bool `json:"flags"`
}

// LabelMeFile defines the LabelMe annotation structure for a single image.
type LabelMeFile struct {
	Version     string          `json:"version,omitempty"`
	Flags       map[string]bool `json:"flags"`
	Shapes      []LabelMeShape  `json:"shapes"`
	ImagePath   string          `json:"imagePath"`
	ImageData   *string         `json:"imageData"`
	ImageHeight int             `json:"imageHeight"`
	ImageWidth  int             `json:"imageWidth"`
}

// labelMeRequiredKeys must be present at the top level of every LabelMe file.
var labelMeRequiredKeys = []string{"imagePath", "imageWidth", "imageHeight", "shapes"}

// ReadLabelMe reads and parses the LabelMe annotation file at path.
//
// Missing required keys, shapes without exactly two points and invalid JSON are reported as
// MalformedInput. The image dimensions are not checked here, that is left to Validate.
func ReadLabelMe(path string) (AnnotatedFile, error) {
	enc, err := readFile(path)
	if err != nil {
		return AnnotatedFile{}, err
	}
	return parseLabelMe(path, enc)
}

// parseLabelMe parses the LabelMe document enc that was read from path.
func parseLabelMe(path string, enc []byte) (AnnotatedFile, error) {
	if !gjson.ValidBytes(enc) {
		return AnnotatedFile{}, newError(MalformedInput, path, "invalid JSON")
	}
	doc := gjson.ParseBytes(enc)
	if !doc.IsObject() {
		return AnnotatedFile{}, newError(MalformedInput, path, "not a JSON object")
	}
	for _, key := range labelMeRequiredKeys {
		if v := doc.Get(key); !v.Exists() || v.Type == gjson.Null {
			return AnnotatedFile{}, newError(MalformedInput, path, "missing key %q", key)
		}
	}
	if !doc.Get("shapes").IsArray() {
		return AnnotatedFile{}, newError(MalformedInput, path, "shapes is not a list")
	}

	var lm LabelMeFile
	if err := json.Unmarshal(enc, &lm); err != nil {
		return AnnotatedFile{}, newError(MalformedInput, path, "failed to parse LabelMe input: %w", err)
	}

	// Convert to the intermediate representation.
	f := AnnotatedFile{
		Boxes:     make([]Box, 0, len(lm.Shapes)),
		FilePath:  path,
		ImagePath: lm.ImagePath,
		Width:     lm.ImageWidth,
		Height:    lm.ImageHeight,
		Raw:       enc,
	}
	for i, s := range lm.Shapes {
		if len(s.Points) != 2 {
			return AnnotatedFile{}, newError(MalformedInput, path,
				"shape %d (%q) has %d points, want 2", i, s.Label, len(s.Points))
		}
		f.Boxes = append(f.Boxes, Box{
			Label:  s.Label,
			Points: [2]Point{s.Points[0], s.Points[1]},
			Source: i,
		})
	}

	return f, nil
}

// EncodeLabelMe re-serializes f as a LabelMe document with canonical points.
//
// If f was read from LabelMe JSON, the source document is edited in place: dropped shapes are
// removed, and only the points and labels that differ from the source are rewritten. Every other
// byte is passed through, so an already canonical file is returned unchanged. Otherwise a new
// document is marshalled.
func EncodeLabelMe(f CleanFile) ([]byte, error) {
	if f.Raw == nil {
		return json.MarshalIndent(toLabelMe(f), "", "  ")
	}

	out := append([]byte(nil), f.Raw...)
	shapes := gjson.GetBytes(out, "shapes").Array()
	kept := make(map[int]bool, len(f.Boxes))

	var err error
	for _, b := range f.Boxes {
		if b.Source < 0 || b.Source >= len(shapes) {
			return nil, fmt.Errorf("box %q refers to missing shape %d", b.Label, b.Source)
		}
		kept[b.Source] = true
		shape := shapes[b.Source]

		if !samePoints(shape.Get("points"), b.Points) {
			out, err = sjson.SetRawBytes(out, shapePath(b.Source, "points"), encodePoints(b.Points))
			if err != nil {
				return nil, err
			}
		}
		if shape.Get("label").String() != b.Label {
			out, err = sjson.SetBytes(out, shapePath(b.Source, "label"), b.Label)
			if err != nil {
				return nil, err
			}
		}
	}

	// Delete from the back so that the remaining indexes stay valid.
	for i := len(shapes) - 1; i >= 0; i-- {
		if kept[i] {
			continue
		}
		out, err = sjson.DeleteBytes(out, "shapes."+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// toLabelMe converts the record to a new LabelMe document.
func toLabelMe(f CleanFile) LabelMeFile {
	lm := LabelMeFile{
		Version:     "5.0.1",
		Flags:       map[string]bool{},
		Shapes:      make([]LabelMeShape, 0, len(f.Boxes)),
		ImagePath:   f.ImageFileName(),
		ImageHeight: f.Height,
		ImageWidth:  f.Width,
	}
	for _, b := range f.Boxes {
		lm.Shapes = append(lm.Shapes, LabelMeShape{
			Label:     b.Label,
			Points:    []Point{b.Points[0], b.Points[1]},
			ShapeType: "rectangle",
			Flags:     map[string]bool{},
		})
	}
	return lm
}

func shapePath(i int, field string) string {
	return "shapes." + strconv.Itoa(i) + "." + field
}

// samePoints reports whether the JSON points value v holds exactly p.
func samePoints(v gjson.Result, p [2]Point) bool {
	a := v.Array()
	if len(a) != 2 {
		return false
	}
	for i, pt := range a {
		xy := pt.Array()
		if len(xy) != 2 || xy[0].Float() != p[i].X || xy[1].Float() != p[i].Y {
			return false
		}
	}
	return true
}

// encodePoints formats p as a compact JSON list of two [x, y] lists.
func encodePoints(p [2]Point) []byte {
	var buf bytes.Buffer
	buf.WriteString("[[")
	buf.WriteString(formatCoord(p[0].X))
	buf.WriteByte(',')
	buf.WriteString(formatCoord(p[0].Y))
	buf.WriteString("],[")
	buf.WriteString(formatCoord(p[1].X))
	buf.WriteByte(',')
	buf.WriteString(formatCoord(p[1].Y))
	buf.WriteString("]]")
	return buf.Bytes()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
