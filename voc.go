package boxconv

// Pascal VOC XML specific functionality.

import (
	"encoding/xml"
	"math"
)

// VOCBndBox is the bounding box of a VOC object in integer pixel coordinates.
type VOCBndBox struct {
	XMin int `xml:"xmin"`
	YMin int `xml:"ymin"`
	XMax int `xml:"xmax"`
	YMax int `xml:"ymax"`
}

// VOCObject is a single object annotation within a VOC file.
type VOCObject struct {
	Name      string    `xml:"name"`
	Pose      string    `xml:"pose"`
	Truncated int       `xml:"truncated"`
	Difficult int       `xml:"difficult"`
	BndBox    VOCBndBox `xml:"bndbox"`
}

// VOCSize is the image size. Depth is left empty when the channel count is unknown.
type VOCSize struct {
	Width  int    `xml:"width"`
	Height int    `xml:"height"`
	Depth  string `xml:"depth"`
}

// VOCAnnotation defines the VOC annotation structure for a single image.
type VOCAnnotation struct {
	XMLName  xml.Name `xml:"annotation"`
	Folder   string   `xml:"folder"`
	Filename string   `xml:"filename"`
	Source   struct {
		Database string `xml:"database"`
	} `xml:"source"`
	Size      VOCSize     `xml:"size"`
	Segmented int         `xml:"segmented"`
	Objects   []VOCObject `xml:"object"`
}

// ToVOC converts the record to a VOC annotation with one object per box.
//
// Corners are converted to integers by flooring the minimum and ceiling the maximum, so a
// non-degenerate box never collapses and never leaves the image.
func ToVOC(f CleanFile, folder, database string) VOCAnnotation {
	a := VOCAnnotation{
		Folder:   folder,
		Filename: f.ImageFileName(),
		Size:     VOCSize{Width: f.Width, Height: f.Height},
		Objects:  make([]VOCObject, 0, len(f.Boxes)),
	}
	a.Source.Database = database

	for _, b := range f.Boxes {
		a.Objects = append(a.Objects, VOCObject{
			Name: b.Label,
			Pose: "Unspecified",
			BndBox: VOCBndBox{
				XMin: int(math.Floor(b.Points[0].X)),
				YMin: int(math.Floor(b.Points[0].Y)),
				XMax: int(math.Ceil(b.Points[1].X)),
				YMax: int(math.Ceil(b.Points[1].Y)),
			},
		})
	}
	return a
}

// EncodeVOC serializes the annotation as an indented XML document. Text content is escaped.
func EncodeVOC(a VOCAnnotation) ([]byte, error) {
	enc, err := xml.MarshalIndent(a, "", "\t")
	if err != nil {
		return nil, err
	}
	return append(enc, '\n'), nil
}

// ReadVOC reads and parses the VOC annotation file at path. All objects are converted.
func ReadVOC(path string) (AnnotatedFile, error) {
	enc, err := readFile(path)
	if err != nil {
		return AnnotatedFile{}, err
	}

	var a VOCAnnotation
	if err := xml.Unmarshal(enc, &a); err != nil {
		return AnnotatedFile{}, newError(MalformedInput, path, "failed to parse VOC input: %w", err)
	}
	if a.Filename == "" {
		return AnnotatedFile{}, newError(MalformedInput, path, "missing filename")
	}

	// Convert to the intermediate representation.
	f := AnnotatedFile{
		Boxes:     make([]Box, len(a.Objects)),
		FilePath:  path,
		ImagePath: a.Filename,
		Width:     a.Size.Width,
		Height:    a.Size.Height,
	}
	for i, o := range a.Objects {
		f.Boxes[i] = Box{
			Label: o.Name,
			Points: [2]Point{
				{X: float64(o.BndBox.XMin), Y: float64(o.BndBox.YMin)},
				{X: float64(o.BndBox.XMax), Y: float64(o.BndBox.YMax)},
			},
			Source: i,
		}
	}
	return f, nil
}
