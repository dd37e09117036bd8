package boxconv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAssembleDataset(t *testing.T) {
	labels := t.TempDir()
	images := t.TempDir()
	writeTestFile(t, labels, "a.json", labelMeDoc("a.jpg", "plate", 1, 1, 2, 2))
	writeTestFile(t, labels, "b.json", labelMeDoc("b.jpg", "plate", 1, 1, 2, 2))
	writeTestImage(t, images, "a.jpg", 8, 8)
	writeTestImage(t, images, "c.png", 8, 8)

	out := filepath.Join(t.TempDir(), "dataset")
	cfg := Config{InputDir: labels, ImageDir: images}
	report, err := AssembleDataset(cfg, out)
	if err != nil {
		t.Fatal(err)
	}
	if report.Converted != 1 {
		t.Errorf("copied %d pairs, want 1", report.Converted)
	}
	if len(report.Failures) != 1 || filepath.Base(report.Failures[0].Path) != "b.json" ||
		report.Failures[0].Kind != IOError {
		t.Errorf("got failures %+v", report.Failures)
	}

	if got, want := readTestFile(t, filepath.Join(out, "labels", "a.json")),
		readTestFile(t, filepath.Join(labels, "a.json")); got != want {
		t.Error("label file changed while copying")
	}
	for _, p := range []string{filepath.Join(out, "images", "a.jpg")} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %q: %v", p, err)
		}
	}
	for _, p := range []string{filepath.Join(out, "images", "c.png"), filepath.Join(out, "labels", "b.json")} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%q should not be copied", p)
		}
	}
}

func TestAssembleDatasetImagesNextToLabels(t *testing.T) {
	in := t.TempDir()
	writeTestFile(t, in, "a.json", labelMeDoc("a.jpg", "plate", 1, 1, 2, 2))
	writeTestImage(t, in, "a.jpg", 8, 8)

	out := t.TempDir()
	report, err := AssembleDataset(Config{InputDir: in}, out)
	if err != nil {
		t.Fatal(err)
	}
	if report.Converted != 1 || len(report.Failures) != 0 {
		t.Errorf("got %+v", report)
	}
}
