/*
csv.go - Header-keyed CSV decoding into import rows

The recognized headers are PRN, Name, Email, Mobile, ParentMobile and
BatchID (case-insensitive); unknown columns are ignored and missing
ones come through empty, which Reconcile then validates. Excel files
are decoded by an external collaborator into the same Row shape.
*/
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ReadCSV decodes a header-keyed CSV stream into import rows.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // ragged rows are a data problem, not a parse error
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	// Column index per recognized field.
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		idx[name] = i
	}

	field := func(record []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}

		rows = append(rows, Row{
			PRN:          field(record, "prn"),
			Name:         field(record, "name"),
			Email:        field(record, "email"),
			Mobile:       field(record, "mobile"),
			ParentMobile: field(record, "parentmobile"),
			BatchID:      field(record, "batchid"),
		})
	}
	return rows, nil
}
