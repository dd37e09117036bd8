package boxconv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFilesByExtInDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.JSON", "c.jpg", "notes.txt"} {
		writeTestFile(t, dir, name, "")
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0755); err != nil {
		t.Fatal(err)
	}

	files, others, err := filesByExtInDir(dir, ".json")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "a.JSON"), filepath.Join(dir, "b.json")}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("files = %q, want %q", files, want)
	}
	wantOthers := []string{filepath.Join(dir, "c.jpg"), filepath.Join(dir, "notes.txt")}
	if !reflect.DeepEqual(others, wantOthers) {
		t.Errorf("others = %q, want %q", others, wantOthers)
	}

	images, err := ImageFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(images, []string{filepath.Join(dir, "c.jpg")}) {
		t.Errorf("images = %q", images)
	}

	if _, _, err := filesByExtInDir(filepath.Join(dir, "missing"), ""); err == nil {
		t.Error("want an error for a missing directory")
	}
}

func TestPairFiles(t *testing.T) {
	pairs := PairFiles(
		[]string{"labels/a.json", "labels/b.json"},
		[]string{"images/a.png", "images/c.jpg", "images/a.json"},
	)
	want := Pairs{
		"a": {Image: "images/a.png", Annotation: "labels/a.json"},
		"b": {Annotation: "labels/b.json"},
		"c": {Image: "images/c.jpg"},
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Errorf("got %+v, want %+v", pairs, want)
	}
	if img, ok := pairs.Image("other/a.txt"); !ok || img != "images/a.png" {
		t.Errorf("Image(a) = %q, %v", img, ok)
	}
	if _, ok := pairs.Image("labels/b.json"); ok {
		t.Error("Image(b) should not match")
	}
}

func TestSplitPath(t *testing.T) {
	dir, base, ext, err := splitPath(filepath.Join("data", "car.v2.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if dir != "data" || base != "car.v2" || ext != "jpg" {
		t.Errorf("got %q %q %q", dir, base, ext)
	}
	if _, _, _, err := splitPath("README"); err == nil {
		t.Error("want an error for a missing extension")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{newError(MalformedInput, "a.json", "bad"), MalformedInput},
		{fmt.Errorf("wrapped: %w", newError(IOError, "a.json", "bad")), IOError},
		{&UnknownLabelError{Label: "x"}, UnknownLabel},
		{errors.New("plain"), KindUnknown},
		{nil, KindUnknown},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}

	err := newError(ValidationError, "a.json", "invalid image size %dx%d", 0, 0)
	if got := err.Error(); got != `ValidationError: "a.json": invalid image size 0x0` {
		t.Errorf("Error() = %q", got)
	}
}
