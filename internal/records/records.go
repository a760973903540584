package records

import (
	"encoding/csv"
	"errors"
	"strings"
)

// Record is one parsed input row. Values are kept as raw strings; numeric and
// date interpretation is left to the individual checkers.
type Record struct {
	Index  int
	Fields map[string]string
}

func (r Record) Get(field string) string {
	return r.Fields[field]
}

func (r Record) Has(field string) bool {
	_, ok := r.Fields[field]
	return ok
}

// Table holds the parsed rows together with the header in file order.
type Table struct {
	Headers []string
	Records []Record
}

var ErrNoData = errors.New("no data")

// Parse reads comma-delimited text with a header row. Rows shorter than the
// header are padded with empty strings, longer rows are truncated to the
// header width.
func Parse(data string) (Table, error) {
	if strings.TrimSpace(data) == "" {
		return Table{}, ErrNoData
	}
	reader := csv.NewReader(strings.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return Table{}, err
	}
	if len(rows) == 0 {
		return Table{}, ErrNoData
	}
	headers := rows[0]
	table := Table{Headers: headers}
	for i, row := range rows[1:] {
		fields := make(map[string]string, len(headers))
		for j, header := range headers {
			if j < len(row) {
				fields[header] = row[j]
			} else {
				fields[header] = ""
			}
		}
		table.Records = append(table.Records, Record{Index: i, Fields: fields})
	}
	return table, nil
}

// Group is the set of records sharing one key value, in input order.
type Group struct {
	Key     string
	Records []Record
}

// GroupBy buckets records by the value of the key field, skipping records
// where the key is blank. Group order follows first appearance of each key so
// downstream output stays stable.
func GroupBy(recs []Record, field string) []Group {
	index := map[string]int{}
	var groups []Group
	for _, rec := range recs {
		key := strings.TrimSpace(rec.Get(field))
		if key == "" {
			continue
		}
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, Group{Key: key})
		}
		groups[pos].Records = append(groups[pos].Records, rec)
	}
	return groups
}
