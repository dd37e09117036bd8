package boxconv

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

// writeTestImage writes a uniformly gray PNG or JPEG image of the given size to dir/name.
func writeTestImage(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	img := imaging.New(width, height, color.Gray{Y: 128})
	path := filepath.Join(dir, name)
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("failed to write test image: %v", err)
	}
	return path
}

// writeTestFile writes data to dir/name.
func writeTestFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

// readTestFile returns the contents of the file at path.
func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %q: %v", path, err)
	}
	return string(data)
}

// box returns a box with the given label and corners.
func box(label string, x1, y1, x2, y2 float64) Box {
	return Box{Label: label, Points: [2]Point{{X: x1, Y: y1}, {X: x2, Y: y2}}}
}

// cleanFile validates f and fails the test on error.
func cleanFile(t *testing.T, f AnnotatedFile) CleanFile {
	t.Helper()
	c, err := Validate(f)
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	return c
}

// closeCoords reports whether all coordinates of a and b differ by at most tol.
func closeCoords(a, b [4]float64, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}
