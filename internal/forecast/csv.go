package forecast

import (
	"encoding/csv"
	"fmt"
	"os"
)

// ReadCSV reads a comma separated forecast table.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open forecast: %w", err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comment = '#'
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read forecast %s: %w", path, err)
	}
	return parseRecords(records)
}
