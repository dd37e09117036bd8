package boxconv

// Reading licence plates with an external object detector and an external OCR engine.

import (
	"context"
	"fmt"
	"image"
	"log"
	"math"
	"os"
	"strings"

	"github.com/disintegration/imaging"
)

// Detection is an object found by a Detector.
type Detection struct {
	Label      string
	Confidence float64    // Range [0.0, 1.0].
	Coords     [4]float64 // Absolute x1, y1, x2, y2 offsets from the top-left corner.
}

// Detector finds labelled objects in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// TextResult is a piece of text recognised by a TextReader.
type TextResult struct {
	Text       string
	Confidence float64 // Range [0.0, 1.0].
}

// TextReader recognises the text in an image region.
type TextReader interface {
	ReadText(ctx context.Context, img image.Image) ([]TextResult, error)
}

// PlateReader runs a Detector over an image and reads the text of every detected region with a
// TextReader. The result is an annotation record, so it can be exported like any other.
type PlateReader struct {
	Detector Detector
	Reader   TextReader

	// MinConfidence is the minimum detection confidence for a region to be kept and read.
	MinConfidence float64
	// Labels restricts the kept detections to these labels. Empty keeps all.
	Labels []string
	// MinTextHeight upscales regions that are less tall before they are read. Zero disables it.
	MinTextHeight int
}

// DefaultMinConfidence is the detection threshold of NewPlateReader.
const DefaultMinConfidence = 0.6

// NewPlateReader returns a PlateReader with default thresholds.
func NewPlateReader(d Detector, r TextReader) *PlateReader {
	return &PlateReader{
		Detector:      d,
		Reader:        r,
		MinConfidence: DefaultMinConfidence,
		MinTextHeight: 64,
	}
}

// Read detects and reads the plates in the image at imagePath.
//
// Each kept detection becomes a box with the Confidence, DetectedText and TextConfidence
// attributes. Regions that lie entirely outside the image are skipped.
func (p *PlateReader) Read(ctx context.Context, imagePath string) (AnnotatedFile, error) {
	img, err := loadImage(imagePath)
	if err != nil {
		return AnnotatedFile{}, newError(IOError, imagePath, "failed to load the image: %w", err)
	}
	bounds := img.Bounds()

	detections, err := p.Detector.Detect(ctx, img)
	if err != nil {
		return AnnotatedFile{}, newError(InferenceError, imagePath, "detection failed: %w", err)
	}

	f := AnnotatedFile{
		Boxes:     make([]Box, 0, len(detections)),
		FilePath:  imagePath,
		ImagePath: imagePath,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}
	for i, d := range detections {
		if !(d.Confidence >= p.MinConfidence) || !p.keepLabel(d.Label) {
			continue
		}

		b := Box{
			Attributes: map[string]interface{}{Confidence: d.Confidence},
			Label:      d.Label,
			Points: [2]Point{
				{X: d.Coords[0], Y: d.Coords[1]},
				{X: d.Coords[2], Y: d.Coords[3]},
			},
			Source: i,
		}.Canonical()
		if !b.Finite() {
			log.Printf("Detection %d (%q) in %q has non-finite coordinates, skipping", i, d.Label, imagePath)
			continue
		}

		region, ok := p.cropRegion(img, b)
		if !ok {
			log.Printf("Detection %d (%q) in %q is outside the image, skipping", i, d.Label, imagePath)
			continue
		}

		texts, err := p.Reader.ReadText(ctx, region)
		if err != nil {
			return AnnotatedFile{}, newError(InferenceError, imagePath, "text recognition failed: %w", err)
		}
		text, confidence := joinTexts(texts)
		b.Attributes[DetectedText] = text
		b.Attributes[TextConfidence] = confidence
		log.Printf("Read %q in %q (detection %.2f, text %.2f)", text, imagePath, d.Confidence, confidence)

		f.Boxes = append(f.Boxes, b)
	}

	return f, nil
}

// keepLabel reports whether detections with label pass the label filter.
func (p *PlateReader) keepLabel(label string) bool {
	if len(p.Labels) == 0 {
		return true
	}
	for _, l := range p.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// cropRegion returns a copy of the part of img covered by b, clipped to the image bounds and
// upscaled to MinTextHeight. ok is false if nothing of b is inside the image.
func (p *PlateReader) cropRegion(img image.Image, b Box) (region image.Image, ok bool) {
	r := image.Rect(int(math.Round(b.Points[0].X)), int(math.Round(b.Points[0].Y)),
		int(math.Round(b.Points[1].X)), int(math.Round(b.Points[1].Y)))
	r = r.Add(img.Bounds().Min).Intersect(img.Bounds())
	if r.Empty() {
		return nil, false
	}

	region = imaging.Crop(img, r)
	if p.MinTextHeight > 0 && r.Dy() < p.MinTextHeight {
		region = resizeRegion(region, p.MinTextHeight)
	}
	return region, true
}

// resizeRegion scales region so that its height is height, keeping the aspect ratio.
func resizeRegion(region image.Image, height int) image.Image {
	size := region.Bounds().Size()
	if size.X >= size.Y {
		resized, _, _ := resizeImage(region, 0, height, imaging.Box, imaging.Linear)
		return resized
	}
	resized, _, _ := resizeImage(region, height, 0, imaging.Box, imaging.Linear)
	return resized
}

// joinTexts joins the recognised texts in reading order. The confidence is the mean of the
// individual confidences, or zero if there is no text.
func joinTexts(texts []TextResult) (string, float64) {
	parts := make([]string, 0, len(texts))
	var sum float64
	for _, t := range texts {
		if s := strings.TrimSpace(t.Text); s != "" {
			parts = append(parts, s)
			sum += t.Confidence
		}
	}
	if len(parts) == 0 {
		return "", 0
	}
	return strings.Join(parts, " "), sum / float64(len(parts))
}

// ReadPlates reads the plates of all images in cfg.InputDir and exports the results in format
// cfg.To. cfg.From is ignored.
func ReadPlates(ctx context.Context, cfg Config, p *PlateReader) (Report, error) {
	cfg.From = LabelMe
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	classes, err := cfg.LoadClasses()
	if err != nil {
		return Report{}, err
	}

	images, err := ImageFiles(cfg.InputDir)
	if err != nil {
		return Report{}, err
	}
	log.Printf("Reading plates in %d images", len(images))

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return Report{}, fmt.Errorf("cannot create output directory %q: %w", cfg.OutputDir, err)
	}
	exporter, err := NewExporter(cfg, classes)
	if err != nil {
		return Report{}, err
	}

	batch := &Batch{
		Parse: func(path string) (AnnotatedFile, error) {
			return p.Read(ctx, path)
		},
		Exporter: exporter,
		Workers:  cfg.Workers,
	}
	report := batch.Run(images)
	if err := exporter.Close(); err != nil {
		return report, err
	}

	if len(report.Failures) > 0 && cfg.ReportPath != "" {
		if err := WriteReport(cfg.ReportPath, report.Failures); err != nil {
			return report, err
		}
	}
	return report, nil
}
