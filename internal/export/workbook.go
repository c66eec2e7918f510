package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

type SheetSpec struct {
	Title  string
	Header []string
	Rows   [][]any
}

type Workbook struct {
	File *excelize.File
}

// NewWorkbook — книга с листами в заданном порядке, первый лист занимает место Sheet1.
func NewWorkbook(sheets []SheetSpec) (*Workbook, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook needs at least one sheet")
	}
	f := excelize.NewFile()
	for i, s := range sheets {
		name := s.Title
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("new sheet %q: %w", name, err)
		}
		if err := f.SetSheetRow(name, "A1", &s.Header); err != nil {
			return nil, fmt.Errorf("sheet %q header: %w", name, err)
		}
		for r, row := range s.Rows {
			cell := fmt.Sprintf("A%d", r+2)
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				return nil, fmt.Errorf("sheet %q row %d: %w", name, r+2, err)
			}
		}
		if err := ApplyDefaultExcelFormatting(f, name); err != nil {
			return nil, fmt.Errorf("format sheet %q: %w", name, err)
		}
	}
	f.SetActiveSheet(0)
	return &Workbook{File: f}, nil
}

func (w *Workbook) WriteTo(dst io.Writer) (int64, error) {
	return w.File.WriteTo(dst)
}

func (w *Workbook) Bytes() ([]byte, error) {
	buf, err := w.File.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (w *Workbook) Close() error { return w.File.Close() }
