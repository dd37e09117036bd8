package boxconv

import (
	"fmt"
	"path/filepath"
)

// Format is an annotation format name.
type Format string

// The known annotation formats.
const (
	LabelMe  Format = "labelme"  // LabelMe JSON, one file per image.
	VOC      Format = "voc"      // Pascal VOC XML, one file per image.
	YOLO     Format = "yolo"     // YOLO text, one file per image.
	Kitti    Format = "kitti"    // KITTI text, one file per image.
	TFRecord Format = "tfrecord" // TFRecord shards with a label map (output only).
)

// UnknownLabelPolicy decides what happens to boxes whose label has no class id.
type UnknownLabelPolicy string

// The unknown label policies.
const (
	SkipUnknownLabel    UnknownLabelPolicy = "skip"  // Leave out the box and report a warning.
	AbortOnUnknownLabel UnknownLabelPolicy = "abort" // Fail the file.
)

// Exporter writes clean records.
//
// Export must be safe for concurrent use with records that have distinct image names. The
// returned warnings describe boxes that were left out without failing the record.
type Exporter interface {
	Export(f CleanFile) (warnings []error, err error)
	Close() error
}

// fileExporter writes one artifact per record, named after the image, into dir.
type fileExporter struct {
	dir    string
	ext    string
	encode func(f CleanFile) ([]byte, []error, error)
}

func (e *fileExporter) Export(f CleanFile) ([]error, error) {
	enc, warnings, err := e.encode(f)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(e.dir, f.ImageBaseName()+e.ext)
	if err := writeFile(path, enc); err != nil {
		return nil, err
	}
	return warnings, nil
}

func (e *fileExporter) Close() error {
	return nil
}

// NewVOCExporter writes <image>.xml files into dir.
func NewVOCExporter(dir, folder, database string) Exporter {
	return &fileExporter{dir: dir, ext: ".xml", encode: func(f CleanFile) ([]byte, []error, error) {
		enc, err := EncodeVOC(ToVOC(f, folder, database))
		return enc, nil, err
	}}
}

// NewYOLOExporter writes <image>.txt files into dir.
func NewYOLOExporter(dir string, classes ClassNames, policy UnknownLabelPolicy) Exporter {
	return &fileExporter{dir: dir, ext: ".txt", encode: func(f CleanFile) ([]byte, []error, error) {
		lines, errs := ToYOLO(f, classes)
		if len(errs) > 0 && policy == AbortOnUnknownLabel {
			return nil, nil, &Error{Kind: UnknownLabel, Path: f.FilePath, Err: errs[0]}
		}
		return EncodeYOLO(lines), errs, nil
	}}
}

// NewLabelMeExporter writes <image>.json files into dir.
func NewLabelMeExporter(dir string) Exporter {
	return &fileExporter{dir: dir, ext: ".json", encode: func(f CleanFile) ([]byte, []error, error) {
		enc, err := EncodeLabelMe(f)
		if err != nil {
			return nil, nil, &Error{Kind: MalformedInput, Path: f.FilePath, Err: err}
		}
		return enc, nil, nil
	}}
}

// NewKittiExporter writes <image>.txt files into dir.
func NewKittiExporter(dir string) Exporter {
	return &fileExporter{dir: dir, ext: ".txt", encode: func(f CleanFile) ([]byte, []error, error) {
		return EncodeKitti(ToKitti(f)), nil, nil
	}}
}

// NewExporter creates the exporter for cfg.To.
func NewExporter(cfg Config, classes ClassNames) (Exporter, error) {
	switch cfg.To {
	case LabelMe:
		return NewLabelMeExporter(cfg.OutputDir), nil
	case VOC:
		return NewVOCExporter(cfg.OutputDir, cfg.Folder, cfg.Database), nil
	case YOLO:
		return NewYOLOExporter(cfg.OutputDir, classes, cfg.UnknownLabels), nil
	case Kitti:
		return NewKittiExporter(cfg.OutputDir), nil
	case TFRecord:
		e, err := NewTFRecordExporter(filepath.Join(cfg.OutputDir, cfg.RecordName), cfg.LabelMapPath,
			cfg.NumShards, classes, cfg.UnknownLabels)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("unsupported output format %q", cfg.To)
}
