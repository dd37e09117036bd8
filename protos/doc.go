// Package protos holds the label map messages of the TensorFlow object detection API.
package protos

//go:generate protoc --go_out=paths=source_relative:. string_int_label_map.proto
