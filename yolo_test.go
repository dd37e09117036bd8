package boxconv

import (
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"
)

func TestToYOLO(t *testing.T) {
	f := AnnotatedFile{
		ImagePath: "car_01.jpg",
		Width:     640,
		Height:    480,
		Boxes:     []Box{box("plate", 50, 80, 10, 20)},
	}
	lines, errs := ToYOLO(cleanFile(t, f), ClassNames{"plate"})
	if len(errs) != 0 {
		t.Fatal(errs)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines", len(lines))
	}
	if got, want := lines[0].String(), "0 0.046875 0.104167 0.062500 0.125000"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := string(EncodeYOLO(lines)); got != "0 0.046875 0.104167 0.062500 0.125000\n" {
		t.Errorf("EncodeYOLO() = %q", got)
	}
}

func TestYOLORoundTrip(t *testing.T) {
	f := AnnotatedFile{
		Width:  1280,
		Height: 720,
		Boxes:  []Box{box("a", 13.3, 7.9, 411.2, 333.3), box("b", 0, 0, 1280, 720)},
	}
	clean := cleanFile(t, f)
	lines, errs := ToYOLO(clean, ClassNames{"a", "b"})
	if len(errs) != 0 {
		t.Fatal(errs)
	}
	for i, l := range lines {
		// Decode from the six digit text form.
		parsed, err := parseYOLOLine(l.String())
		if err != nil {
			t.Fatal(err)
		}
		got := parsed.Box(f.Width, f.Height)
		want := clean.Boxes[i].Coords()
		for j := range got {
			// One unit in the sixth decimal place, scaled to pixels.
			if math.Abs(got[j]-want[j]) > 1e-6*1280 {
				t.Errorf("box %d coordinate %d: got %v, want %v", i, j, got[j], want[j])
			}
		}
		if got := lines[i].Box(f.Width, f.Height); !closeCoords(got, want, 1e-4) {
			t.Errorf("box %d exact inverse: got %v, want %v", i, got, want)
		}
	}
}

func TestToYOLOUnknownLabel(t *testing.T) {
	f := AnnotatedFile{
		Width:  100,
		Height: 100,
		Boxes:  []Box{box("A", 0, 0, 10, 10), box("Unknown", 0, 0, 10, 10), box("B", 10, 10, 20, 20)},
	}
	lines, errs := ToYOLO(cleanFile(t, f), ClassNames{"A", "B"})
	if len(lines) != 2 || lines[0].ClassID != 0 || lines[1].ClassID != 1 {
		t.Errorf("got lines %v", lines)
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	var ul *UnknownLabelError
	if !errors.As(errs[0], &ul) || ul.Label != "Unknown" || ul.Box != 1 {
		t.Errorf("got %v", errs[0])
	}
	if KindOf(errs[0]) != UnknownLabel {
		t.Errorf("kind = %v", KindOf(errs[0]))
	}
}

func TestYOLOExporterPolicy(t *testing.T) {
	f := cleanFile(t, AnnotatedFile{
		FilePath:  "a.json",
		ImagePath: "a.jpg",
		Width:     100,
		Height:    100,
		Boxes:     []Box{box("A", 0, 0, 10, 10), box("Unknown", 0, 0, 10, 10)},
	})

	dir := t.TempDir()
	warnings, err := NewYOLOExporter(dir, ClassNames{"A", "B"}, SkipUnknownLabel).Export(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 {
		t.Errorf("got %d warnings, want 1", len(warnings))
	}
	if got := readTestFile(t, filepath.Join(dir, "a.txt")); got != "0 0.050000 0.050000 0.100000 0.100000\n" {
		t.Errorf("got %q", got)
	}

	dir = t.TempDir()
	_, err = NewYOLOExporter(dir, ClassNames{"A", "B"}, AbortOnUnknownLabel).Export(f)
	if KindOf(err) != UnknownLabel {
		t.Errorf("error = %v, want UnknownLabel", err)
	}
}

func TestParseYOLOLine(t *testing.T) {
	for _, line := range []string{"", "0 0.5 0.5 0.1", "x 0.5 0.5 0.1 0.1", "-1 0.5 0.5 0.1 0.1",
		"0 0.5 a 0.1 0.1", "0 0.5 0.5 0.1 0.1 7", "0 NaN 0.5 0.1 0.1", "0 0.5 0.5 Inf 0.1"} {
		if _, err := parseYOLOLine(line); err == nil {
			t.Errorf("parseYOLOLine(%q) succeeded, want an error", line)
		}
	}
	l, err := parseYOLOLine(" 2  0.5 0.25 0.1 0.2 ")
	if err != nil {
		t.Fatal(err)
	}
	if l != (YOLOLine{ClassID: 2, XCenter: 0.5, YCenter: 0.25, Width: 0.1, Height: 0.2}) {
		t.Errorf("got %+v", l)
	}
}

func TestReadYOLO(t *testing.T) {
	dir := t.TempDir()
	img := writeTestImage(t, dir, "car.png", 200, 100)
	label := writeTestFile(t, dir, "car.txt", "1 0.5 0.5 0.2 0.4\n\n0 0.1 0.1 0.1 0.1\n")

	f, err := ReadYOLO(label, img, ClassNames{"car", "plate"})
	if err != nil {
		t.Fatal(err)
	}
	if f.Width != 200 || f.Height != 100 {
		t.Errorf("got %dx%d", f.Width, f.Height)
	}
	if len(f.Boxes) != 2 {
		t.Fatalf("got %d boxes", len(f.Boxes))
	}
	if b := f.Boxes[0]; b.Label != "plate" || !closeCoords(b.Coords(), [4]float64{80, 30, 120, 70}, 1e-9) {
		t.Errorf("got %q %v", b.Label, b.Coords())
	}
	if f.Boxes[1].Label != "car" {
		t.Errorf("got %q", f.Boxes[1].Label)
	}

	if _, err := ReadYOLO(label, img, ClassNames{"car"}); KindOf(err) != UnknownLabel {
		t.Errorf("class id out of range: error = %v, want UnknownLabel", err)
	}
	bad := writeTestFile(t, dir, "bad.txt", "0 0.5\n")
	if _, err := ReadYOLO(bad, img, ClassNames{"car"}); KindOf(err) != MalformedInput {
		t.Errorf("short line: error = %v, want MalformedInput", err)
	}
}

func TestLoadClassNames(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "classes.txt", "car\n\n plate \nbus\n")
	got, err := LoadClassNames(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := (ClassNames{"car", "plate", "bus"}); !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
	if id, err := got.ID("bus"); err != nil || id != 2 {
		t.Errorf("ID(bus) = %d, %v", id, err)
	}

	pbtxt := writeTestFile(t, dir, "label_map.pbtxt",
		"item {\n  name: \"plate\"\n  id: 2\n}\nitem {\n  name: \"car\"\n  id: 1\n}\n")
	got, err = LoadClassNames(pbtxt)
	if err != nil {
		t.Fatal(err)
	}
	if want := (ClassNames{"car", "plate"}); !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}

	empty := writeTestFile(t, dir, "empty.txt", "\n\n")
	if _, err := LoadClassNames(empty); err == nil {
		t.Error("want an error for an empty class list")
	}
}
