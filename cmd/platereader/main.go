// Detects licence plates in a directory of images with a vision model served by Ollama, reads
// their text and writes the results as annotations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/sensorable/boxconv"
	"github.com/sensorable/boxconv/ollama"
)

var (
	cfg = boxconv.DefaultConfig()

	serverURL     string        // The Ollama server.
	model         string        // The vision model.
	minConfidence float64       // Minimum detection confidence.
	labels        []string      // Kept detection labels.
	timeout       time.Duration // Per request timeout.
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  -images <dir> -labels-out <dir> [-to <format>] [-model <name>]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	cfg.To = boxconv.LabelMe
	cfg.ReportPath = "unread_images_list.csv"

	flag.StringVar(&cfg.InputDir, "images", "", "The `path` to the image directory")
	flag.StringVar(&cfg.OutputDir, "labels-out", "", "The `path` to the label output directory")
	to := flag.String("to", string(cfg.To), "The target `format` {labelme, voc, kitti, tfrecord}")
	flag.StringVar(&cfg.ReportPath, "report", cfg.ReportPath,
		"The `path` of the report listing images that could not be read (.csv or .xlsx)")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "The number of images processed concurrently")

	flag.StringVar(&serverURL, "ollama-url", "http://localhost:11434", "The Ollama server `URL`")
	flag.StringVar(&model, "model", "qwen2.5vl:7b", "The vision `model`")
	flag.DurationVar(&timeout, "timeout", 300*time.Second, "The timeout of a single model request")
	flag.Float64Var(&minConfidence, "min-confidence", boxconv.DefaultMinConfidence,
		"The minimum detection confidence in [0.0, 1.0]")
	labelList := flag.String("plate-labels", "", "Comma-separated detection labels to keep (all if empty)")

	flag.Parse()

	cfg.To = boxconv.Format(*to)
	if cfg.To == boxconv.YOLO {
		printUsageAndExit("YOLO output is not supported for plate reading")
	}
	if minConfidence < 0 || minConfidence > 1 {
		printUsageAndExit("Minimum confidence must be in [0.0, 1.0]")
	}
	if *labelList != "" {
		labels = strings.Split(*labelList, ",")
	}
	if err := cfg.Validate(); err != nil {
		printUsageAndExit(err)
	}
}

func main() {
	client, err := ollama.NewClient(serverURL, model)
	if err != nil {
		log.Fatal(err)
	}
	client.Timeout = timeout

	reader := boxconv.NewPlateReader(client, client)
	reader.MinConfidence = minConfidence
	reader.Labels = labels

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := boxconv.ReadPlates(ctx, cfg, reader)
	if err != nil {
		log.Fatal("Plate reading failed: ", err)
	}

	log.Printf("Read plates in %d images; %d failed", report.Converted, len(report.Failures))
	if len(report.Failures) > 0 {
		os.Exit(2)
	}
}
