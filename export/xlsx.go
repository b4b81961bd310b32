package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/warp/site-ledger/generic"
	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the MIME type of WriteXLSX output.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteXLSX writes t as a single-sheet workbook. An empty sheet name uses
// the table name.
func WriteXLSX(w io.Writer, t Table, sheet string) error {
	if sheet == "" {
		sheet = t.Name
	}
	if sheet == "" {
		sheet = "Sheet1"
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet %q: %w", sheet, err)
	}

	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("%s row %d: %d cells for %d columns", t.Name, i, len(row), len(t.Columns))
		}
		cells := make([]any, len(row))
		for j, c := range row {
			cells[j] = cellValue(c)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func cellValue(v any) any {
	switch c := v.(type) {
	case decimal.Decimal:
		return c.InexactFloat64()
	case generic.Date:
		return cellString(c)
	case bool:
		return cellString(c)
	default:
		return v
	}
}
