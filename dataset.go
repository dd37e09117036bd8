package boxconv

// Assembling a training dataset from matched image and annotation files.

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// AssembleDataset copies every annotation file of cfg.InputDir that has a matching image, together
// with that image, into dir/images and dir/labels. Images come from cfg.ImageDir, or from the input
// directory if that is empty. Annotation files without an image are reported as IOError; images
// without an annotation file are skipped.
func AssembleDataset(cfg Config, dir string) (Report, error) {
	if cfg.From == "" {
		cfg.From = LabelMe
	}
	files, _, err := filesByExtInDir(cfg.InputDir, inputExt(cfg.From))
	if err != nil {
		return Report{}, err
	}
	imageDir := cfg.ImageDir
	if imageDir == "" {
		imageDir = cfg.InputDir
	}
	images, _, err := filesByExtInDir(imageDir, "")
	if err != nil {
		return Report{}, err
	}
	pairs := PairFiles(files, images)

	imagesOut := filepath.Join(dir, "images")
	labelsOut := filepath.Join(dir, "labels")
	for _, d := range []string{imagesOut, labelsOut} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return Report{}, fmt.Errorf("cannot create dataset directory %q: %w", d, err)
		}
	}

	names := make([]string, 0, len(pairs))
	for name := range pairs {
		names = append(names, name)
	}
	sort.Strings(names)

	var report Report
	for _, name := range names {
		p := pairs[name]
		switch {
		case p.Annotation == "":
			log.Printf("No annotation file for %q, skipping", p.Image)
			continue
		case p.Image == "":
			report.addFailure(p.Annotation, newError(IOError, p.Annotation, "no corresponding image file"))
			continue
		}

		if err := copyFile(p.Image, filepath.Join(imagesOut, filepath.Base(p.Image))); err != nil {
			report.addFailure(p.Annotation, err)
			continue
		}
		if err := copyFile(p.Annotation, filepath.Join(labelsOut, filepath.Base(p.Annotation))); err != nil {
			report.addFailure(p.Annotation, err)
			continue
		}
		report.Converted++
	}

	log.Printf("Copied %d image and annotation pairs to %s", report.Converted, dir)
	return report, nil
}

// copyFile atomically replaces dst with a copy of src.
func copyFile(src, dst string) error {
	data, err := readFile(src)
	if err != nil {
		return err
	}
	return writeFile(dst, data)
}
