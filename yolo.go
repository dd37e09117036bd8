package boxconv

// YOLO text format specific functionality.

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// ClassNames maps labels to YOLO class ids by their position.
type ClassNames []string

// ID returns the class id of label, or an *UnknownLabelError.
func (c ClassNames) ID(label string) (int, error) {
	for i, name := range c {
		if name == label {
			return i, nil
		}
	}
	return -1, &UnknownLabelError{Label: label, Box: -1}
}

// LoadClassNames reads the class names from path. A ".pbtxt" file is read as a label map and
// ordered by id, anything else is read as one name per line with blank lines ignored.
func LoadClassNames(path string) (ClassNames, error) {
	if strings.EqualFold(filepath.Ext(path), ".pbtxt") {
		return loadLabelMapClassNames(path)
	}

	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	names := make(ClassNames, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			names = append(names, l)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no class names in %q", path)
	}
	return names, nil
}

// YOLOLine is one YOLO annotation: a class id and a box in normalized center form.
type YOLOLine struct {
	ClassID int
	XCenter float64
	YCenter float64
	Width   float64
	Height  float64
}

func (l YOLOLine) String() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", l.ClassID, l.XCenter, l.YCenter, l.Width, l.Height)
}

// Box returns the corners of l in a width x height image.
func (l YOLOLine) Box(width, height int) [4]float64 {
	w, h := float64(width), float64(height)
	return [4]float64{
		(l.XCenter - l.Width/2) * w,
		(l.YCenter - l.Height/2) * h,
		(l.XCenter + l.Width/2) * w,
		(l.YCenter + l.Height/2) * h,
	}
}

// ToYOLO converts the boxes of f to YOLO lines, in order.
//
// Boxes whose label is not in classes are left out; an *UnknownLabelError is returned for each of
// them, and the caller decides whether that fails the file.
func ToYOLO(f CleanFile, classes ClassNames) ([]YOLOLine, []error) {
	var errs []error
	lines := make([]YOLOLine, 0, len(f.Boxes))
	w, h := float64(f.Width), float64(f.Height)

	for i, b := range f.Boxes {
		id, err := classes.ID(b.Label)
		if err != nil {
			errs = append(errs, &UnknownLabelError{Label: b.Label, Box: i})
			continue
		}

		xmin, ymin, xmax, ymax := b.Points[0].X, b.Points[0].Y, b.Points[1].X, b.Points[1].Y
		lines = append(lines, YOLOLine{
			ClassID: id,
			XCenter: (xmin + xmax) / (2 * w),
			YCenter: (ymin + ymax) / (2 * h),
			Width:   (xmax - xmin) / w,
			Height:  (ymax - ymin) / h,
		})
	}

	return lines, errs
}

// EncodeYOLO returns the newline terminated lines.
func EncodeYOLO(lines []YOLOLine) []byte {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// parseYOLOLine parses the line of values for a single annotation.
func parseYOLOLine(line string) (YOLOLine, error) {
	var l YOLOLine

	tokens := strings.Fields(line)
	if len(tokens) != 5 {
		return l, fmt.Errorf("want 5 tokens in %q", line)
	}

	var err error
	if l.ClassID, err = strconv.Atoi(tokens[0]); err != nil || l.ClassID < 0 {
		return l, fmt.Errorf("invalid class id in %q", line)
	}
	vals := []*float64{&l.XCenter, &l.YCenter, &l.Width, &l.Height}
	for i := 0; i < 4 && err == nil; i++ {
		*vals[i], err = strconv.ParseFloat(tokens[i+1], 64)
	}
	if err != nil {
		return l, fmt.Errorf("unexpected values in %q: %w", line, err)
	}
	for _, v := range vals {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return l, fmt.Errorf("non-finite value in %q", line)
		}
	}

	return l, nil
}

// ReadYOLO reads the YOLO label file at labelPath. The image at imagePath provides the
// dimensions, and classes maps the class ids back to labels.
func ReadYOLO(labelPath, imagePath string, classes ClassNames) (AnnotatedFile, error) {
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
	for i, text := range lines {
		if strings.TrimSpace(text) == "" {
			continue
		}
		l, err := parseYOLOLine(text)
		if err != nil {
			return AnnotatedFile{}, &Error{Kind: MalformedInput, Path: labelPath, Err: err}
		}
		if l.ClassID >= len(classes) {
			return AnnotatedFile{}, newError(UnknownLabel, labelPath,
				"class id %d on line %d has no class name", l.ClassID, i+1)
		}

		c := l.Box(img.Width, img.Height)
		f.Boxes = append(f.Boxes, Box{
			Label:  classes[l.ClassID],
			Points: [2]Point{{X: c[0], Y: c[1]}, {X: c[2], Y: c[3]}},
			Source: i,
		})
	}

	return f, nil
}
