package boxconv

// TFRecord object detection specific functionality.

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/golang/protobuf/proto"
	"github.com/google/renameio/v2"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
	protos "github.com/sensorable/boxconv/protos"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// TFRecordExporter streams one tf.Example per record into one or more TFRecord shard files and
// maintains the label map that assigns the class ids.
//
// The shards and the label map only replace existing files when Close succeeds.
type TFRecordExporter struct {
	// Customise, if set, may modify the feature map of each record before it is written, as long
	// as all of its values can be converted to tensorflow.Feature.
	Customise func(f CleanFile, m TFFeatureMap)

	mu           sync.Mutex
	shards       []*renameio.PendingFile
	next         int // The index of the shard for the next example.
	labelMapPath string
	labelMap     map[string]int32
	nextLabelID  int32
	fixedLabels  bool // Labels outside the initial label map are unknown.
	abort        bool
}

// NewTFRecordExporter creates the shard files for recordPath. With numShards > 1 the shards are
// named recordPath-00000-of-0000n and examples are distributed round-robin.
//
// If classes is non-empty, class ids are the class name positions plus one and other labels are
// unknown. Otherwise the label map at labelMapPath is loaded if it exists, and new labels are
// assigned the next free id.
func NewTFRecordExporter(recordPath, labelMapPath string, numShards int, classes ClassNames,
	policy UnknownLabelPolicy) (*TFRecordExporter, error) {

	if numShards <= 0 {
		numShards = 1
	}

	e := &TFRecordExporter{
		labelMapPath: labelMapPath,
		nextLabelID:  1,
		abort:        policy == AbortOnUnknownLabel,
	}

	if len(classes) > 0 {
		e.fixedLabels = true
		e.labelMap = make(map[string]int32, len(classes))
		for i, c := range classes {
			e.labelMap[c] = int32(i + 1)
		}
		e.nextLabelID = int32(len(classes) + 1)
	} else if labelMap, maxID, err := loadTFRecordLabelMap(labelMapPath); err == nil {
		// It is not an error if the label map does not exist.
		log.Print("Label map loaded successfully")
		e.labelMap = labelMap
		e.nextLabelID = maxID + 1
	} else if os.IsNotExist(err) {
		log.Print("Creating a new label map")
		e.labelMap = make(map[string]int32)
	} else {
		return nil, newError(IOError, labelMapPath, "failed to read the label map: %w", err)
	}

	for i := 0; i < numShards; i++ {
		shardPath := recordPath
		if numShards > 1 {
			shardPath += fmt.Sprintf("-%05d-of-%05d", i, numShards)
		}
		f, err := renameio.TempFile(filepath.Dir(shardPath), shardPath)
		if err != nil {
			e.cleanup()
			return nil, newError(IOError, shardPath, "failed to create shard: %w", err)
		}
		e.shards = append(e.shards, f)
	}

	return e, nil
}

// Export converts f to a tf.Example and appends it to the next shard.
func (e *TFRecordExporter) Export(f CleanFile) (warnings []error, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, warnings, err := e.toTFRecord(f)
	if err != nil {
		return nil, err
	}
	if len(warnings) > 0 && e.abort {
		return nil, &Error{Kind: UnknownLabel, Path: f.FilePath, Err: warnings[0]}
	}
	if e.Customise != nil {
		e.Customise(f, m)
	}

	tfExample, err := newExample(m)
	if err != nil {
		return nil, &Error{Kind: MalformedInput, Path: f.FilePath, Err: err}
	}

	shard := e.shards[e.next]
	if err := writeTFRecordExample(shard, tfExample); err != nil {
		return nil, newError(IOError, shard.Name(), "failed to write example: %w", err)
	}
	e.next = (e.next + 1) % len(e.shards)

	return warnings, nil
}

// Close replaces the shard files and writes the label map.
func (e *TFRecordExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, shard := range e.shards {
		if err := shard.CloseAtomicallyReplace(); err != nil {
			e.shards = e.shards[i:]
			e.cleanup()
			return newError(IOError, shard.Name(), "failed to write shard: %w", err)
		}
	}
	e.shards = nil

	return saveTFRecordLabelMap(e.labelMapPath, e.labelMap)
}

// cleanup removes the pending shard files.
func (e *TFRecordExporter) cleanup() {
	for _, shard := range e.shards {
		_ = shard.Cleanup()
	}
	e.shards = nil
}

// newExample builds the example. The builder panics on unsupported value types.
func newExample(m TFFeatureMap) (ex *tensorflow.Example, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", r)
		}
	}()
	return example.New(m), nil
}

// classID returns the id for label, assigning a new one if the label map is not fixed.
func (e *TFRecordExporter) classID(label string) (int32, bool) {
	if id, ok := e.labelMap[label]; ok {
		return id, true
	}
	if e.fixedLabels {
		return 0, false
	}
	id := e.nextLabelID
	e.labelMap[label] = id
	e.nextLabelID++
	return id, true
}

// toTFRecord converts the record for a single file to the TFRecord feature map.
func (e *TFRecordExporter) toTFRecord(f CleanFile) (TFFeatureMap, []error, error) {
	// Get the image format.
	img, format, err := decodeImageConfig(f.ImagePath)
	if err != nil {
		return nil, nil, newError(IOError, f.ImagePath, "failed to decode the image metadata: %w", err)
	}
	if img.Width != f.Width || img.Height != f.Height {
		log.Printf("Image %q is %dx%d, annotated as %dx%d", f.ImagePath, img.Width, img.Height,
			f.Width, f.Height)
	}

	// Read the image data.
	imgData, err := readFile(f.ImagePath)
	if err != nil {
		return nil, nil, err
	}

	// Prepare the feature map for the per file data.
	m := make(TFFeatureMap, 16)
	m["image/height"] = f.Height
	m["image/width"] = f.Width
	m["image/filename"] = f.ImageFileName()
	m["image/source_id"] = f.ImagePath
	m["image/encoded"] = imgData
	m["image/format"] = format

	// Prepare the per label data.
	var warnings []error
	numLabels := len(f.Boxes)
	xmins := make([]float32, 0, numLabels)
	ymins := make([]float32, 0, numLabels)
	xmaxs := make([]float32, 0, numLabels)
	ymaxs := make([]float32, 0, numLabels)
	classes := make([]string, 0, numLabels)
	classIDs := make([]int64, 0, numLabels)
	for i, b := range f.Boxes {
		id, ok := e.classID(b.Label)
		if !ok {
			warnings = append(warnings, &UnknownLabelError{Label: b.Label, Box: i})
			continue
		}

		xmins = append(xmins, float32(b.Points[0].X/float64(f.Width)))
		ymins = append(ymins, float32(b.Points[0].Y/float64(f.Height)))
		xmaxs = append(xmaxs, float32(b.Points[1].X/float64(f.Width)))
		ymaxs = append(ymaxs, float32(b.Points[1].Y/float64(f.Height)))
		classes = append(classes, b.Label)
		classIDs = append(classIDs, int64(id))
	}
	m["image/object/bbox/xmin"] = xmins
	m["image/object/bbox/ymin"] = ymins
	m["image/object/bbox/xmax"] = xmaxs
	m["image/object/bbox/ymax"] = ymaxs
	m["image/object/class/text"] = classes
	m["image/object/class/label"] = classIDs

	return m, warnings, nil
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveTFRecordLabelMap converts the labelMap to prototxt format and writes it to path. Items are
// ordered by id.
func saveTFRecordLabelMap(path string, labelMap map[string]int32) error {
	// Copy the label map into the protobuf structure.
	siLabelMap := &protos.StringIntLabelMap{}
	siLabelMap.Item = make([]*protos.StringIntLabelMapItem, 0, len(labelMap))
	for k, v := range labelMap {
		siLabelMap.Item = append(siLabelMap.Item, &protos.StringIntLabelMapItem{
			Name: proto.String(k),
			Id:   proto.Int32(v),
		})
	}
	sort.Slice(siLabelMap.Item, func(i, j int) bool {
		return siLabelMap.Item[i].GetId() < siLabelMap.Item[j].GetId()
	})

	return writeFile(path, []byte(proto.MarshalTextString(siLabelMap)))
}

// loadTFRecordLabelMap loads the label map from path. It also returns the largest ID value
// encountered in the map.
//
// If an error occurs because the file does not exist, then os.IsNotExist will return true for the
// error.
func loadTFRecordLabelMap(path string) (map[string]int32, int32, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	var siLabelMap protos.StringIntLabelMap
	if err := proto.UnmarshalText(string(text), &siLabelMap); err != nil {
		return nil, 0, err
	}

	labelMap := make(map[string]int32, len(siLabelMap.Item))
	var maxID int32
	for _, item := range siLabelMap.Item {
		k, v := item.GetName(), item.GetId()
		if k == "" || v <= 0 {
			return nil, 0, fmt.Errorf("invalid entry: %s: %d", k, v)
		}

		labelMap[k] = v
		maxID = max(maxID, v)
	}

	return labelMap, maxID, nil
}

// loadLabelMapClassNames reads a label map and returns its names ordered by id.
func loadLabelMapClassNames(path string) (ClassNames, error) {
	labelMap, _, err := loadTFRecordLabelMap(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the label map from %q: %w", path, err)
	}

	names := make(ClassNames, 0, len(labelMap))
	for k := range labelMap {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return labelMap[names[i]] < labelMap[names[j]] })
	return names, nil
}
