package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/warp/site-ledger/generic"
)

// WriteCSV writes the header and rows of t. delimiter must be ';' or ','.
func WriteCSV(w io.Writer, t Table, delimiter rune) error {
	if delimiter != ';' && delimiter != ',' {
		return fmt.Errorf("unsupported csv delimiter %q", delimiter)
	}

	cw := csv.NewWriter(w)
	cw.Comma = delimiter

	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("%s row %d: %d cells for %d columns", t.Name, i, len(row), len(t.Columns))
		}
		for j, cell := range row {
			record[j] = cellString(cell)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case int64:
		return strconv.FormatInt(c, 10)
	case int:
		return strconv.Itoa(c)
	case bool:
		if c {
			return "1"
		}
		return "0"
	case decimal.Decimal:
		return c.String()
	case generic.Date:
		if c.IsZero() {
			return ""
		}
		return c.String()
	default:
		return fmt.Sprint(c)
	}
}
