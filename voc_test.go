package boxconv

import (
	"encoding/xml"
	"path/filepath"
	"strings"
	"testing"
)

func TestToVOCDropsDegenerate(t *testing.T) {
	f := AnnotatedFile{
		ImagePath: "images/car_01.jpg",
		Width:     640,
		Height:    480,
		Boxes:     []Box{box("line", 30, 30, 30, 90)},
	}
	enc, err := EncodeVOC(ToVOC(cleanFile(t, f), "images", "plates"))
	if err != nil {
		t.Fatal(err)
	}

	s := string(enc)
	if strings.Contains(s, "<object>") {
		t.Errorf("degenerate box was exported:\n%s", s)
	}
	for _, want := range []string{"<filename>car_01.jpg</filename>", "<width>640</width>",
		"<height>480</height>", "<folder>images</folder>", "<database>plates</database>"} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %s in:\n%s", want, s)
		}
	}
}

func TestToVOCCorners(t *testing.T) {
	f := AnnotatedFile{
		ImagePath: "car.jpg",
		Width:     100,
		Height:    100,
		Boxes:     []Box{box("a", 10.7, 20.2, 30.1, 40.9), box("b", 5, 5, 5.5, 5.5)},
	}
	a := ToVOC(cleanFile(t, f), "", "")
	want := []VOCBndBox{{XMin: 10, YMin: 20, XMax: 31, YMax: 41}, {XMin: 5, YMin: 5, XMax: 6, YMax: 6}}
	if len(a.Objects) != len(want) {
		t.Fatalf("got %d objects, want %d", len(a.Objects), len(want))
	}
	for i, w := range want {
		if got := a.Objects[i].BndBox; got != w {
			t.Errorf("object %d = %+v, want %+v", i, got, w)
		}
		if a.Objects[i].BndBox.XMin >= a.Objects[i].BndBox.XMax {
			t.Errorf("object %d collapsed", i)
		}
	}
}

func TestEncodeVOCEscapes(t *testing.T) {
	f := AnnotatedFile{
		ImagePath: "a&b.jpg",
		Width:     10,
		Height:    10,
		Boxes:     []Box{box(`<car> & "plate"`, 1, 1, 5, 5)},
	}
	enc, err := EncodeVOC(ToVOC(cleanFile(t, f), "", ""))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(enc), "<car>") {
		t.Errorf("label was not escaped:\n%s", enc)
	}

	var a VOCAnnotation
	if err := xml.Unmarshal(enc, &a); err != nil {
		t.Fatal(err)
	}
	if a.Filename != "a&b.jpg" || len(a.Objects) != 1 || a.Objects[0].Name != `<car> & "plate"` {
		t.Errorf("got %+v", a)
	}
}

func TestReadVOC(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "car_01.xml", `<annotation>
	<folder>images</folder>
	<filename>car_01.jpg</filename>
	<size><width>640</width><height>480</height><depth>3</depth></size>
	<object><name>plate</name><bndbox><xmin>10</xmin><ymin>20</ymin><xmax>50</xmax><ymax>80</ymax></bndbox></object>
	<object><name>car</name><bndbox><xmin>100</xmin><ymin>90</ymin><xmax>300</xmax><ymax>200</ymax></bndbox></object>
</annotation>`)

	f, err := ReadVOC(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.ImagePath != "car_01.jpg" || f.Width != 640 || f.Height != 480 {
		t.Errorf("got %q %dx%d", f.ImagePath, f.Width, f.Height)
	}
	if len(f.Boxes) != 2 || f.Boxes[1].Label != "car" ||
		f.Boxes[1].Coords() != [4]float64{100, 90, 300, 200} {
		t.Errorf("got boxes %+v", f.Boxes)
	}

	bad := writeTestFile(t, dir, "bad.xml", `<annotation><size><width>1</width></size></annotation>`)
	if _, err := ReadVOC(bad); KindOf(err) != MalformedInput {
		t.Errorf("ReadVOC() without filename: error = %v, want MalformedInput", err)
	}
	broken := writeTestFile(t, dir, "broken.xml", `<annotation><filename>`)
	if _, err := ReadVOC(broken); KindOf(err) != MalformedInput {
		t.Errorf("ReadVOC() of broken XML: error = %v, want MalformedInput", err)
	}
	if _, err := ReadVOC(filepath.Join(dir, "missing.xml")); KindOf(err) != IOError {
		t.Errorf("ReadVOC() of missing file: error = %v, want IOError", err)
	}
}
