package forecast

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads a forecast worksheet. An empty sheet name selects the
// first sheet of the workbook.
func ReadXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open forecast workbook: %w", err)
	}
	defer f.Close()
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return parseRecords(rows)
}
