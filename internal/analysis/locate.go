package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hunterwarburton/agentgo/internal/dataset"
)

// LocateEqual returns rows whose cell in col equals value. Numeric columns
// compare numerically; others compare the cell text.
func LocateEqual(ds *dataset.Dataset, col, value string) (any, error) {
	c, err := column(ds, col)
	if err != nil {
		return nil, err
	}
	var match func(i int) bool
	switch c.Type {
	case dataset.TypeNumber:
		target, perr := strconv.ParseFloat(strings.TrimSpace(value), 64)
		match = func(i int) bool { return perr == nil && c.Numbers[i] == target }
	case dataset.TypeBool:
		match = func(i int) bool { return strings.EqualFold(c.Text(i), strings.TrimSpace(value)) }
	default:
		match = func(i int) bool { return c.Text(i) == value }
	}
	return locate(ds, c, match, fmt.Sprintf("%s = %s", col, value)), nil
}

// LocateGreater returns rows whose numeric cell in col is above value.
func LocateGreater(ds *dataset.Dataset, col string, value float64) (any, error) {
	c, err := numericColumn(ds, col)
	if err != nil {
		return nil, err
	}
	cond := fmt.Sprintf("%s > %s", col, strconv.FormatFloat(value, 'f', -1, 64))
	return locate(ds, c, func(i int) bool { return c.Numbers[i] > value }, cond), nil
}

// LocateLess returns rows whose numeric cell in col is below value.
func LocateLess(ds *dataset.Dataset, col string, value float64) (any, error) {
	c, err := numericColumn(ds, col)
	if err != nil {
		return nil, err
	}
	cond := fmt.Sprintf("%s < %s", col, strconv.FormatFloat(value, 'f', -1, 64))
	return locate(ds, c, func(i int) bool { return c.Numbers[i] < value }, cond), nil
}

// locate returns []*Record of matching rows, or the no-match message.
func locate(ds *dataset.Dataset, c *dataset.Column, match func(int) bool, cond string) any {
	var rows []*Record
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) || !match(i) {
			continue
		}
		rows = append(rows, Row(ds, i))
	}
	if len(rows) == 0 {
		return "No matching rows found for the given condition: " + cond
	}
	return rows
}

// Row returns row i as a Record in column order.
func Row(ds *dataset.Dataset, i int) *Record {
	r := NewRecord()
	for _, c := range ds.Columns {
		r.Set(c.Name, CellValue(c, i))
	}
	return r
}
