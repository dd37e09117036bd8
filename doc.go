// Package boxconv converts bounding box annotations between LabelMe JSON, Pascal VOC XML, YOLO
// text, KITTI text and TFRecord.
//
// Every format is read into AnnotatedFile records. Boxes are canonicalized so that the first
// point is the top-left corner, validated against the image size and exported by an Exporter.
// Batch runs the pipeline over many files and collects per-file failures in a Report instead of
// stopping.
package boxconv
