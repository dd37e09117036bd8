// Converts bounding box annotations between LabelMe JSON, Pascal VOC XML, YOLO and KITTI text,
// and TFRecord. Boxes are canonicalized and validated on the way.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sensorable/boxconv"
)

var (
	cfg        boxconv.Config // The conversion run.
	listLabels bool           // Only print the labels found in the input.
	datasetDir string         // Only copy the matched image and label pairs here.
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  labelme, voc input options:\t-labels <dir> [-images <dir>]")
		_, _ = fmt.Fprintln(os.Stderr, "  kitti input options:\t\t-labels <dir> -images <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  yolo input options:\t\t-labels <dir> -images <dir> -classes <list>")
		_, _ = fmt.Fprintln(os.Stderr, "  yolo output options:\t\t-labels-out <dir> -classes <list>")
		_, _ = fmt.Fprintln(os.Stderr, "  tfrecord output options:\t-labels-out <dir> [-label-map <file>]"+
			" [-num-shards <n>]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	// An optional config file provides the defaults for all other flags.
	cfg = boxconv.DefaultConfig()
	if path := configPathFromArgs(os.Args[1:]); path != "" {
		var err error
		if cfg, err = boxconv.LoadConfig(path); err != nil {
			printUsageAndExit(err)
		}
	}
	flag.String("config", "", "The JSON configuration file `path`; flags override its values")

	// Format arguments.
	from := flag.String("from", string(cfg.From), "The source `format` {labelme, voc, kitti, yolo}")
	to := flag.String("to", string(cfg.To),
		"The target `format` {labelme, voc, yolo, kitti, tfrecord}")

	// Path arguments.
	flag.StringVar(&cfg.InputDir, "labels", cfg.InputDir, "The `path` to the label input directory")
	flag.StringVar(&cfg.ImageDir, "images", cfg.ImageDir, "The `path` to the image directory")
	flag.StringVar(&cfg.OutputDir, "labels-out", cfg.OutputDir,
		"The `path` to the label output directory")
	flag.StringVar(&cfg.ReportPath, "report", cfg.ReportPath,
		"The `path` of the report listing files that were not converted (.csv or .xlsx; empty"+
			" disables it)")

	// Conversion arguments.
	classes := flag.String("classes", strings.Join(cfg.ClassNames, ","),
		"Comma-separated class names in class id order (yolo)")
	flag.StringVar(&cfg.ClassNamesFile, "classes-file", cfg.ClassNamesFile,
		"The class names file `path`, one name per line or a .pbtxt label map")
	unknown := flag.String("unknown-labels", string(cfg.UnknownLabels),
		"What to do with labels that have no class id {skip, abort}")
	mappings := flag.String("map-labels", strings.Join(cfg.LabelMappings, ","),
		"Comma-separated list of old=new label (sub-)string replacements")
	flag.StringVar(&cfg.Folder, "voc-folder", cfg.Folder,
		"The VOC folder name (defaults to the name of the input directory)")
	flag.StringVar(&cfg.Database, "voc-database", cfg.Database, "The VOC source database name")
	flag.StringVar(&cfg.RecordName, "record-name", cfg.RecordName, "The TFRecord file `name`")
	flag.StringVar(&cfg.LabelMapPath, "label-map", cfg.LabelMapPath,
		"The TFRecord label map file `path` (defaults into the output directory)")
	flag.IntVar(&cfg.NumShards, "num-shards", cfg.NumShards,
		"The number of shard files to create (tfrecord only)")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "The number of files converted concurrently")
	flag.BoolVar(&listLabels, "list-labels", listLabels,
		"Print the distinct labels of the input and exit")
	flag.StringVar(&datasetDir, "dataset", datasetDir,
		"Copy the matched images and labels into `dir`/images and `dir`/labels and exit")

	// Parse and validate flags.
	flag.Parse()

	cfg.From = boxconv.Format(*from)
	cfg.To = boxconv.Format(*to)
	cfg.UnknownLabels = boxconv.UnknownLabelPolicy(*unknown)
	cfg.ClassNames = splitList(*classes)
	cfg.LabelMappings = splitList(*mappings)

	if listLabels || datasetDir != "" {
		if cfg.InputDir == "" {
			printUsageAndExit("Missing label input path argument")
		}
		return
	}
	if err := cfg.Validate(); err != nil {
		printUsageAndExit(err)
	}
}

// configPathFromArgs finds the -config flag before the flag set is parsed.
func configPathFromArgs(args []string) string {
	for i, a := range args {
		a = strings.TrimLeft(a, "-")
		if a == "config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(a, "config=") {
			return strings.TrimPrefix(a, "config=")
		}
	}
	return ""
}

// splitList splits a comma-separated list. An empty string yields nil.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func main() {
	if listLabels {
		data, _, err := boxconv.ReadAll(cfg)
		if err != nil {
			log.Fatal("Failed to parse the input: ", err)
		}
		for _, l := range boxconv.Labels(data) {
			fmt.Println(l)
		}
		return
	}

	if datasetDir != "" {
		report, err := boxconv.AssembleDataset(cfg, datasetDir)
		if err != nil {
			log.Fatal("Failed to assemble the dataset: ", err)
		}
		if len(report.Failures) > 0 {
			log.Printf("%d label files have no image", len(report.Failures))
			os.Exit(2)
		}
		return
	}

	report, err := boxconv.Convert(cfg)
	if err != nil {
		log.Fatal("Conversion failed: ", err)
	}

	log.Printf("Converted %d files; %d failed, %d boxes skipped, %d dropped, %d clamped",
		report.Converted, len(report.Failures), len(report.Warnings), report.Dropped, report.Clamped)
	if len(report.Failures) > 0 {
		os.Exit(2)
	}
}
