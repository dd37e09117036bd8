package boxconv

// KITTI specific functionality.

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// KITTIAnnotation is a single annotation within a KITTI file.
type KITTIAnnotation struct {
	Coords [4]float64 // x1, y1, x2, y2
	Label  string
	Score  float64 // Optional, linear confidence value. No fixed range.
}

// ReadKitti reads the KITTI label file at labelPath. The image at imagePath provides the
// dimensions.
func ReadKitti(labelPath, imagePath string) (AnnotatedFile, error) {
	lines, err := readLines(labelPath)
	if err != nil {
		return AnnotatedFile{}, err
	}

	img, _, err := decodeImageConfig(imagePath)
	if err != nil {
		return AnnotatedFile{}, newError(IOError, imagePath, "failed to decode the image metadata: %w", err)
	}

	f := AnnotatedFile{
		Boxes:     make([]Box, 0, len(lines)),
		FilePath:  labelPath,
		ImagePath: imagePath,
		Width:     img.Width,
		Height:    img.Height,
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		a, err := parseKittiAnnotation(line)
		if err != nil {
			return AnnotatedFile{}, &Error{Kind: MalformedInput, Path: labelPath, Err: err}
		}

		b := Box{
			Label: a.Label,
			Points: [2]Point{
				{X: a.Coords[0], Y: a.Coords[1]},
				{X: a.Coords[2], Y: a.Coords[3]},
			},
			Source: i,
		}
		if a.Score != 0 {
			b.Attributes = map[string]interface{}{Confidence: a.Score}
		}
		f.Boxes = append(f.Boxes, b)
	}

	return f, nil
}

// parseKittiAnnotation parses the line of values for a single annotation.
func parseKittiAnnotation(line string) (KITTIAnnotation, error) {
	a := KITTIAnnotation{}

	tokens := strings.Fields(line)
	if len(tokens) < 8 {
		return a, fmt.Errorf("insufficient tokens in %q", line)
	}

	a.Label = tokens[0]
	var err error
	for i := 4; i < 8 && err == nil; i++ {
		a.Coords[i-4], err = strconv.ParseFloat(tokens[i], 64)
	}
	if err != nil {
		return a, fmt.Errorf("unexpected values in %q: %w", line, err)
	}
	for _, v := range a.Coords {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return a, fmt.Errorf("non-finite coordinate in %q", line)
		}
	}

	// Parse the optional confidence score.
	if len(tokens) >= 16 {
		a.Score, err = strconv.ParseFloat(tokens[15], 64)
	}
	if err != nil {
		return a, fmt.Errorf("unexpected score format in %q: %w", line, err)
	}

	return a, nil
}

// ToKitti converts the boxes of f to KITTI annotations.
func ToKitti(f CleanFile) []KITTIAnnotation {
	annotations := make([]KITTIAnnotation, len(f.Boxes))
	for i, b := range f.Boxes {
		a := KITTIAnnotation{Coords: b.Coords(), Label: b.Label}

		// Add the optional score.
		if score, ok := b.Attributes[Confidence].(float64); ok {
			a.Score = score
		}

		annotations[i] = a
	}
	return annotations
}

// EncodeKitti formats the annotations as KITTI lines. Spaces in labels are replaced, since the
// format is space separated.
func EncodeKitti(annotations []KITTIAnnotation) []byte {
	var buf bytes.Buffer
	for _, a := range annotations {
		fmt.Fprintf(&buf, "%s 0.0 0 0.0 %.2f %.2f %.2f %.2f 0.0 0.0 0.0 0.0 0.0 0.0 0.0 %f\n",
			strings.ReplaceAll(a.Label, " ", "_"), a.Coords[0], a.Coords[1], a.Coords[2], a.Coords[3],
			a.Score)
	}
	return buf.Bytes()
}
