package boxconv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config describes one conversion run.
type Config struct {
	InputDir  string `json:"input_dir"`  // Directory with the annotation files.
	ImageDir  string `json:"image_dir"`  // Directory with the images. Optional for labelme and voc.
	OutputDir string `json:"output_dir"` // Directory for the converted annotations.
	From      Format `json:"from"`
	To        Format `json:"to"`

	ClassNames     []string           `json:"class_names"`      // Class names in class id order.
	ClassNamesFile string             `json:"class_names_file"` // Alternative to ClassNames.
	UnknownLabels  UnknownLabelPolicy `json:"unknown_labels"`
	LabelMappings  []string           `json:"label_mappings"` // old=new label replacements.

	Folder   string `json:"folder"`   // VOC folder. Defaults to the base name of InputDir.
	Database string `json:"database"` // VOC source database.

	RecordName   string `json:"record_name"`    // TFRecord file name within OutputDir.
	LabelMapPath string `json:"label_map_path"` // TFRecord label map. Defaults into OutputDir.
	NumShards    int    `json:"num_shards"`

	Workers    int    `json:"workers"`     // Number of files converted concurrently.
	ReportPath string `json:"report_path"` // Failure report, .csv or .xlsx. Empty disables it.
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() Config {
	return Config{
		From:          LabelMe,
		To:            VOC,
		UnknownLabels: SkipUnknownLabel,
		RecordName:    "annotations.record",
		NumShards:     1,
		Workers:       1,
		ReportPath:    "unsaved_files_list.csv",
	}
}

// LoadConfig loads the configuration from a JSON file. Unset fields keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration and fills in derived defaults.
func (c *Config) Validate() error {
	if c.InputDir == "" || c.OutputDir == "" {
		return fmt.Errorf("input and output directories are required")
	}
	c.InputDir = filepath.Clean(c.InputDir)
	c.OutputDir = filepath.Clean(c.OutputDir)
	if c.InputDir == c.OutputDir {
		return fmt.Errorf("the input and output directories cannot be identical")
	}
	if c.ImageDir != "" {
		c.ImageDir = filepath.Clean(c.ImageDir)
	}

	switch c.From {
	case LabelMe, VOC:
	case Kitti, YOLO:
		if c.ImageDir == "" {
			return fmt.Errorf("input format %q requires an image directory", c.From)
		}
	default:
		return fmt.Errorf("unsupported input format %q", c.From)
	}
	switch c.To {
	case LabelMe, VOC, Kitti, TFRecord:
	case YOLO:
		if len(c.ClassNames) == 0 && c.ClassNamesFile == "" {
			return fmt.Errorf("output format %q requires class names", c.To)
		}
	default:
		return fmt.Errorf("unsupported output format %q", c.To)
	}
	if c.From == YOLO && len(c.ClassNames) == 0 && c.ClassNamesFile == "" {
		return fmt.Errorf("input format %q requires class names", c.From)
	}

	switch c.UnknownLabels {
	case "":
		c.UnknownLabels = SkipUnknownLabel
	case SkipUnknownLabel, AbortOnUnknownLabel:
	default:
		return fmt.Errorf("unknown label policy must be %q or %q", SkipUnknownLabel, AbortOnUnknownLabel)
	}

	if c.Folder == "" {
		c.Folder = filepath.Base(c.InputDir)
	}
	if c.RecordName == "" {
		c.RecordName = "annotations.record"
	}
	if c.LabelMapPath == "" {
		c.LabelMapPath = filepath.Join(c.OutputDir, "label_map.pbtxt")
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.Workers < 1 {
		c.Workers = 1
	}

	return nil
}

// LoadClasses returns the configured class names, reading ClassNamesFile if ClassNames is empty.
func (c Config) LoadClasses() (ClassNames, error) {
	if len(c.ClassNames) > 0 {
		return ClassNames(c.ClassNames), nil
	}
	if c.ClassNamesFile == "" {
		return nil, nil
	}
	return LoadClassNames(c.ClassNamesFile)
}

// inputExt returns the annotation file extension of format f.
func inputExt(f Format) string {
	switch f {
	case LabelMe:
		return ".json"
	case VOC:
		return ".xml"
	}
	return ".txt"
}
