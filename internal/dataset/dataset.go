// Package dataset holds typed, column-oriented tables loaded from CSV or
// XLSX uploads, and persists them between requests.
package dataset

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrDatasetNotFound   = errors.New("dataset not found")
	ErrUnsupportedFormat = errors.New("unsupported table format")
	ErrEmptyTable        = errors.New("table has no header row")
)

// TimeLayout is the canonical rendering of time cells.
const TimeLayout = "2006-01-02 15:04:05"

// ColumnType is the inferred type of a column.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeNumber
	TypeTime
	TypeBool
)

func (t ColumnType) String() string {
	switch t {
	case TypeNumber:
		return "number"
	case TypeTime:
		return "time"
	case TypeBool:
		return "bool"
	default:
		return "string"
	}
}

// Column stores one typed column. Only the slice matching Type is
// populated; Null marks missing cells.
type Column struct {
	Name    string
	Type    ColumnType
	Numbers []float64
	Strings []string
	Times   []time.Time
	Bools   []bool
	Null    []bool
}

// Len returns the number of rows.
func (c *Column) Len() int { return len(c.Null) }

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool { return c.Null[i] }

// IsNumeric reports whether the column holds numbers.
func (c *Column) IsNumeric() bool { return c.Type == TypeNumber }

// Value returns row i as float64, string, time.Time or bool, or nil when
// the cell is null.
func (c *Column) Value(i int) any {
	if c.Null[i] {
		return nil
	}
	switch c.Type {
	case TypeNumber:
		return c.Numbers[i]
	case TypeTime:
		return c.Times[i]
	case TypeBool:
		return c.Bools[i]
	default:
		return c.Strings[i]
	}
}

// Text returns row i rendered as text; null cells render as "".
func (c *Column) Text(i int) string {
	if c.Null[i] {
		return ""
	}
	switch c.Type {
	case TypeNumber:
		return strconv.FormatFloat(c.Numbers[i], 'f', -1, 64)
	case TypeTime:
		return c.Times[i].Format(TimeLayout)
	case TypeBool:
		return strconv.FormatBool(c.Bools[i])
	default:
		return c.Strings[i]
	}
}

// NonNullNumbers returns the non-null values of a numeric column.
func (c *Column) NonNullNumbers() []float64 {
	out := make([]float64, 0, len(c.Numbers))
	for i, v := range c.Numbers {
		if !c.Null[i] {
			out = append(out, v)
		}
	}
	return out
}

func (c *Column) clone() *Column {
	return &Column{
		Name:    c.Name,
		Type:    c.Type,
		Numbers: append([]float64(nil), c.Numbers...),
		Strings: append([]string(nil), c.Strings...),
		Times:   append([]time.Time(nil), c.Times...),
		Bools:   append([]bool(nil), c.Bools...),
		Null:    append([]bool(nil), c.Null...),
	}
}

// Dataset is a named table of equal-length columns.
type Dataset struct {
	Name    string
	Columns []*Column
}

// Column looks a column up by exact name.
func (d *Dataset) Column(name string) (*Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ColumnNames returns column names in table order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int {
	if len(d.Columns) == 0 {
		return 0
	}
	return d.Columns[0].Len()
}

// NormalizeTimes returns a copy where every time column has become a
// string column formatted with TimeLayout. The receiver is not modified.
func (d *Dataset) NormalizeTimes() *Dataset {
	out := &Dataset{Name: d.Name, Columns: make([]*Column, len(d.Columns))}
	for i, c := range d.Columns {
		if c.Type != TypeTime {
			out.Columns[i] = c.clone()
			continue
		}
		nc := &Column{
			Name:    c.Name,
			Type:    TypeString,
			Strings: make([]string, c.Len()),
			Null:    append([]bool(nil), c.Null...),
		}
		for r := range nc.Strings {
			nc.Strings[r] = c.Text(r)
		}
		out.Columns[i] = nc
	}
	return out
}

var nullTokens = map[string]bool{
	"": true, "na": true, "n/a": true, "nan": true, "null": true, "none": true, "#n/a": true,
}

func isNullCell(s string) bool {
	return nullTokens[strings.ToLower(strings.TrimSpace(s))]
}

var timeLayouts = []string{
	TimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NewColumn infers the type of raw cell text. Numbers win over bools,
// bools over times, and anything else is a string. A column with no
// non-null cells is numeric.
func NewColumn(name string, cells []string) *Column {
	n := len(cells)
	null := make([]bool, n)
	trimmed := make([]string, n)
	for i, s := range cells {
		trimmed[i] = strings.TrimSpace(s)
		null[i] = isNullCell(s)
	}

	if nums, ok := inferNumbers(trimmed, null); ok {
		return &Column{Name: name, Type: TypeNumber, Numbers: nums, Null: null}
	}
	if bools, ok := inferBools(trimmed, null); ok {
		return &Column{Name: name, Type: TypeBool, Bools: bools, Null: null}
	}
	if times, ok := inferTimes(trimmed, null); ok {
		return &Column{Name: name, Type: TypeTime, Times: times, Null: null}
	}
	strs := make([]string, n)
	for i := range cells {
		if !null[i] {
			strs[i] = cells[i]
		}
	}
	return &Column{Name: name, Type: TypeString, Strings: strs, Null: null}
}

func inferNumbers(cells []string, null []bool) ([]float64, bool) {
	out := make([]float64, len(cells))
	for i, s := range cells {
		if null[i] {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func inferBools(cells []string, null []bool) ([]bool, bool) {
	out := make([]bool, len(cells))
	seen := false
	for i, s := range cells {
		if null[i] {
			continue
		}
		switch strings.ToLower(s) {
		case "true":
			out[i] = true
		case "false":
		default:
			return nil, false
		}
		seen = true
	}
	return out, seen
}

func inferTimes(cells []string, null []bool) ([]time.Time, bool) {
	out := make([]time.Time, len(cells))
	seen := false
	for i, s := range cells {
		if null[i] {
			continue
		}
		t, ok := parseTime(s)
		if !ok {
			return nil, false
		}
		out[i] = t
		seen = true
	}
	return out, seen
}

// FromRows builds a dataset from a header row and data rows. Short rows
// are padded with nulls; blank header cells are named Unnamed: <i>.
func FromRows(name string, header []string, rows [][]string) (*Dataset, error) {
	if len(header) == 0 {
		return nil, ErrEmptyTable
	}
	ds := &Dataset{Name: name, Columns: make([]*Column, len(header))}
	for ci, h := range header {
		colName := strings.TrimSpace(h)
		if colName == "" {
			colName = "Unnamed: " + strconv.Itoa(ci)
		}
		cells := make([]string, len(rows))
		for ri, row := range rows {
			if ci < len(row) {
				cells[ri] = row[ci]
			}
		}
		ds.Columns[ci] = NewColumn(colName, cells)
	}
	return ds, nil
}
