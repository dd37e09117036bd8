package boxconv

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// reportHeader is the header row of the failure report.
var reportHeader = []string{"Sno", "filename", "kind", "reason"}

// reportSheet is the sheet name used for XLSX reports.
const reportSheet = "Sheet1"

// WriteReport writes the failures to path as a table. The format is XLSX for a ".xlsx" path and
// CSV otherwise.
func WriteReport(path string, failures []Failure) error {
	var enc []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		enc, err = encodeReportXLSX(failures)
	} else {
		enc, err = encodeReportCSV(failures)
	}
	if err != nil {
		return fmt.Errorf("failed to encode the report: %w", err)
	}
	return writeFile(path, enc)
}

// reportRow returns the table row for f.
func reportRow(f Failure) []string {
	return []string{strconv.Itoa(f.Seq), filepath.Base(f.Path), f.Kind.String(), f.Err.Error()}
}

func encodeReportCSV(failures []Failure) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportHeader); err != nil {
		return nil, err
	}
	for _, f := range failures {
		if err := w.Write(reportRow(f)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func encodeReportXLSX(failures []Failure) (enc []byte, err error) {
	x := excelize.NewFile()
	defer closeWithErrCheck(x, &err)

	header := make([]interface{}, len(reportHeader))
	for i, h := range reportHeader {
		header[i] = h
	}
	if err := x.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, f := range failures {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{f.Seq, filepath.Base(f.Path), f.Kind.String(), f.Err.Error()}
		if err := x.SetSheetRow(reportSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := x.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
