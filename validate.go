package boxconv

import (
	"log"
	"math"
)

// CleanFile is an AnnotatedFile whose boxes are all canonical, non-degenerate and inside the
// image. Only Validate creates it.
type CleanFile struct {
	AnnotatedFile

	Dropped int // Number of degenerate boxes that were removed.
	Clamped int // Number of boxes that were clamped to the image bounds.
}

// Validate canonicalizes all boxes of f, removes degenerate and non-finite ones and clamps the rest to
// [0,Width]x[0,Height]. A box that becomes degenerate through clamping is removed as well. The
// surviving boxes keep their relative order. f is not modified.
//
// A record without a positive width and height is rejected with a ValidationError.
func Validate(f AnnotatedFile) (CleanFile, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return CleanFile{}, newError(ValidationError, f.FilePath,
			"invalid image size %dx%d", f.Width, f.Height)
	}

	clean := CleanFile{AnnotatedFile: f}
	clean.Boxes = make([]Box, 0, len(f.Boxes))
	w, h := float64(f.Width), float64(f.Height)

	for i, b := range f.Boxes {
		if !b.Finite() {
			log.Printf("Dropping box %d (%q) in %q: non-finite coordinates %v",
				i, b.Label, f.FilePath, b.Coords())
			clean.Dropped++
			continue
		}

		b, ok := Canonicalize(b)
		if !ok {
			log.Printf("Dropping degenerate box %d (%q) in %q", i, b.Label, f.FilePath)
			clean.Dropped++
			continue
		}

		clamped := b
		clamped.Points[0].X = clamp(b.Points[0].X, w)
		clamped.Points[0].Y = clamp(b.Points[0].Y, h)
		clamped.Points[1].X = clamp(b.Points[1].X, w)
		clamped.Points[1].Y = clamp(b.Points[1].Y, h)
		if clamped.Points != b.Points {
			clean.Clamped++
			if clamped.Degenerate() {
				log.Printf("Dropping box %d (%q) in %q: outside the %dx%d image",
					i, b.Label, f.FilePath, f.Width, f.Height)
				clean.Dropped++
				continue
			}
			log.Printf("Clamped box %d (%q) in %q from %v to %v",
				i, b.Label, f.FilePath, b.Coords(), clamped.Coords())
		}

		clean.Boxes = append(clean.Boxes, clamped)
	}

	return clean, nil
}

// clamp limits v to [0, max].
func clamp(v, max float64) float64 {
	return math.Min(math.Max(v, 0), max)
}
