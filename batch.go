package boxconv

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Failure is a file that produced no output, or a box that was left out of one.
type Failure struct {
	Seq  int    // 1-based position in the report.
	Path string // The input file.
	Kind Kind
	Err  error
}

// Report summarises a batch run.
type Report struct {
	Converted int       // Files with a written artifact.
	Dropped   int       // Degenerate boxes removed by validation.
	Clamped   int       // Boxes clamped to the image bounds.
	Failures  []Failure // Files that were not converted, in input order.
	Warnings  []Failure // Boxes left out of converted files, in input order.
}

// addFailure appends a failure for path.
func (r *Report) addFailure(path string, err error) {
	r.Failures = append(r.Failures, Failure{
		Seq:  len(r.Failures) + 1,
		Path: path,
		Kind: KindOf(err),
		Err:  err,
	})
}

// ParserFn parses the annotation file at path into a record.
type ParserFn func(path string) (AnnotatedFile, error)

// Batch converts annotation files one by one. A failing file never stops the batch.
type Batch struct {
	Parse    ParserFn
	Exporter Exporter
	Mapper   LabelMapper
	Workers  int // Number of files converted concurrently. Values < 2 convert sequentially.

	mu      sync.Mutex
	claimed map[string]string // Output base names to the input that claimed them.
}

// result is the outcome of converting a single file.
type result struct {
	clean    CleanFile
	warnings []error
	err      error
}

// Run converts the files at paths. The report lists files in the order of paths regardless of
// the number of workers.
func (b *Batch) Run(paths []string) Report {
	b.claimed = make(map[string]string, len(paths))
	results := make([]result, len(paths))

	numTasks := b.Workers
	if len(paths) < numTasks {
		numTasks = len(paths)
	}
	if numTasks < 2 {
		for i, path := range paths {
			results[i] = b.convert(path)
		}
	} else {
		// Convert concurrently from a work queue. Each result has its own slot.
		workQueue := make(chan int, 2*numTasks)
		var wg sync.WaitGroup
		wg.Add(numTasks)
		for i := 0; i < numTasks; i++ {
			go func() {
				defer wg.Done()
				for idx := range workQueue {
					results[idx] = b.convert(paths[idx])
				}
			}()
		}

		for i := range paths {
			workQueue <- i
		}
		close(workQueue)
		wg.Wait()
	}

	var report Report
	for i, r := range results {
		if r.err != nil {
			log.Printf("Failed to convert %q: %v", paths[i], r.err)
			report.addFailure(paths[i], r.err)
			continue
		}
		report.Converted++
		report.Dropped += r.clean.Dropped
		report.Clamped += r.clean.Clamped
		for _, w := range r.warnings {
			log.Printf("Skipped a box in %q: %v", paths[i], w)
			report.Warnings = append(report.Warnings, Failure{
				Seq:  len(report.Warnings) + 1,
				Path: paths[i],
				Kind: KindOf(w),
				Err:  w,
			})
		}
	}

	return report
}

// convert parses, validates and exports the file at path.
func (b *Batch) convert(path string) result {
	f, err := b.Parse(path)
	if err != nil {
		return result{err: err}
	}

	f, n := b.Mapper.Apply(f)
	if n > 0 {
		log.Printf("The label mappings changed %d labels in %q", n, path)
	}

	clean, err := Validate(f)
	if err != nil {
		return result{err: err}
	}

	if err := b.claim(path, clean.ImageBaseName()); err != nil {
		return result{err: err}
	}

	warnings, err := b.Exporter.Export(clean)
	if err != nil {
		b.release(clean.ImageBaseName())
		return result{err: err}
	}
	return result{clean: clean, warnings: warnings}
}

// claim reserves the output name for path, so that two inputs never write the same artifact.
func (b *Batch) claim(path, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if other, ok := b.claimed[name]; ok {
		return newError(IOError, path, "output %q was already written for %q", name, other)
	}
	b.claimed[name] = path
	return nil
}

// release frees an output name whose export failed, so a later input may still write it.
func (b *Batch) release(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.claimed, name)
}

// Convert runs the conversion described by cfg.
//
// Per-file problems end up in the returned report, and in the report file if cfg.ReportPath is
// set. An error is only returned if the run itself cannot be set up or finished.
func Convert(cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}

	classes, err := cfg.LoadClasses()
	if err != nil {
		return Report{}, err
	}
	mapper, err := NewLabelMapper(cfg.LabelMappings)
	if err != nil {
		return Report{}, err
	}

	files, others, err := filesByExtInDir(cfg.InputDir, inputExt(cfg.From))
	if err != nil {
		return Report{}, err
	}
	log.Printf("Parsing labels for %d files", len(files))

	var pairs Pairs
	if cfg.ImageDir != "" {
		images, _, err := filesByExtInDir(cfg.ImageDir, "")
		if err != nil {
			return Report{}, err
		}
		pairs = PairFiles(files, images)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return Report{}, fmt.Errorf("cannot create output directory %q: %w", cfg.OutputDir, err)
	}
	exporter, err := NewExporter(cfg, classes)
	if err != nil {
		return Report{}, err
	}

	batch := &Batch{
		Parse:    newParser(cfg.From, pairs, classes),
		Exporter: exporter,
		Mapper:   mapper,
		Workers:  cfg.Workers,
	}
	report := batch.Run(files)

	// Other files in the input directory are reported, not silently ignored. Images are expected
	// next to LabelMe files.
	for _, path := range others {
		if isImageFile(path) {
			continue
		}
		report.addFailure(path, newError(MalformedInput, path, "not a %s annotation file", cfg.From))
	}

	if err := exporter.Close(); err != nil {
		return report, err
	}
	log.Printf("Successfully wrote labels for %d files to %s", report.Converted, cfg.OutputDir)

	if len(report.Failures) > 0 {
		log.Printf("%d files were not converted", len(report.Failures))
		if cfg.ReportPath != "" {
			if err := WriteReport(cfg.ReportPath, report.Failures); err != nil {
				return report, err
			}
			log.Printf("The list of files that were not converted is in %s", cfg.ReportPath)
		}
	}

	return report, nil
}

// newParser returns the parser for the input format. Image paths are resolved through pairs
// where possible.
func newParser(format Format, pairs Pairs, classes ClassNames) ParserFn {
	switch format {
	case LabelMe, VOC:
		read := ReadLabelMe
		if format == VOC {
			read = ReadVOC
		}
		return func(path string) (AnnotatedFile, error) {
			f, err := read(path)
			if err != nil {
				return f, err
			}
			f.ImagePath = resolveImagePath(path, f.ImagePath, pairs)
			return f, nil
		}
	case Kitti:
		return func(path string) (AnnotatedFile, error) {
			imagePath, err := matchingImage(path, pairs)
			if err != nil {
				return AnnotatedFile{}, err
			}
			return ReadKitti(path, imagePath)
		}
	case YOLO:
		return func(path string) (AnnotatedFile, error) {
			imagePath, err := matchingImage(path, pairs)
			if err != nil {
				return AnnotatedFile{}, err
			}
			return ReadYOLO(path, imagePath, classes)
		}
	}
	return func(path string) (AnnotatedFile, error) {
		return AnnotatedFile{}, fmt.Errorf("unsupported input format %q", format)
	}
}

// matchingImage returns the image paired with the annotation file at path.
func matchingImage(path string, pairs Pairs) (string, error) {
	imagePath, ok := pairs.Image(path)
	if !ok {
		return "", newError(IOError, path, "no corresponding image file")
	}
	return imagePath, nil
}

// resolveImagePath returns the path of the image referenced as imagePath from the annotation file
// at path: the paired image if there is one, otherwise imagePath relative to the annotation file.
func resolveImagePath(path, imagePath string, pairs Pairs) string {
	if p, ok := pairs.Image(path); ok {
		return p
	}
	if imagePath == "" {
		return ""
	}
	imagePath = filepath.FromSlash(strings.ReplaceAll(imagePath, "\\", "/"))
	if filepath.IsAbs(imagePath) {
		return imagePath
	}
	return filepath.Join(filepath.Dir(path), imagePath)
}

// ReadAll parses the annotation files of cfg.InputDir without validating or converting them.
// Files that cannot be parsed are listed in the report.
func ReadAll(cfg Config) ([]AnnotatedFile, Report, error) {
	if cfg.From == "" {
		cfg.From = LabelMe
	}
	files, _, err := filesByExtInDir(cfg.InputDir, inputExt(cfg.From))
	if err != nil {
		return nil, Report{}, err
	}
	classes, err := cfg.LoadClasses()
	if err != nil {
		return nil, Report{}, err
	}

	var pairs Pairs
	if cfg.ImageDir != "" {
		images, _, err := filesByExtInDir(cfg.ImageDir, "")
		if err != nil {
			return nil, Report{}, err
		}
		pairs = PairFiles(files, images)
	}

	parse := newParser(cfg.From, pairs, classes)
	data := make([]AnnotatedFile, 0, len(files))
	var report Report
	for _, path := range files {
		f, err := parse(path)
		if err != nil {
			log.Printf("Error while parsing, skipping %q: %v", path, err)
			report.addFailure(path, err)
			continue
		}
		data = append(data, f)
	}
	return data, report, nil
}
