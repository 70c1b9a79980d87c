// Package analysis implements the statistics and row lookups that back the
// table tools. Results are JSON-safe: numbers are Float and keyed results
// are ordered Records.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/hunterwarburton/agentgo/internal/dataset"
)

var (
	ErrNotNumeric      = errors.New("column is not numeric")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ColumnNotFoundError reports a column name missing from the dataset.
type ColumnNotFoundError struct {
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("Column '%s' does not exist in the dataframe.", e.Column)
}

func column(ds *dataset.Dataset, name string) (*dataset.Column, error) {
	c, ok := ds.Column(name)
	if !ok {
		return nil, &ColumnNotFoundError{Column: name}
	}
	return c, nil
}

func numericColumn(ds *dataset.Dataset, name string) (*dataset.Column, error) {
	c, err := column(ds, name)
	if err != nil {
		return nil, err
	}
	if !c.IsNumeric() {
		return nil, fmt.Errorf("%w: '%s' has type %s", ErrNotNumeric, name, c.Type)
	}
	return c, nil
}

func single(label string, v any) *Record {
	return NewRecord().Set(label, v)
}

// DescribeColumn summarizes one column. Numeric columns report count,
// mean, std, min, quartiles and max; other columns report count, unique,
// top and freq.
func DescribeColumn(ds *dataset.Dataset, name string) (*Record, error) {
	c, err := column(ds, name)
	if err != nil {
		return nil, err
	}
	return describe(c), nil
}

// DescribeDataset describes every numeric column, or every column when
// none is numeric.
func DescribeDataset(ds *dataset.Dataset) *Record {
	out := NewRecord()
	for _, c := range ds.Columns {
		if c.IsNumeric() {
			out.Set(c.Name, describe(c))
		}
	}
	if out.Len() == 0 {
		for _, c := range ds.Columns {
			out.Set(c.Name, describe(c))
		}
	}
	return out
}

func describe(c *dataset.Column) *Record {
	if c.IsNumeric() {
		x := c.NonNullNumbers()
		sorted := sortedCopy(x)
		r := NewRecord().Set("count", Float(len(x)))
		if len(x) == 0 {
			nan := Float(math.NaN())
			for _, k := range []string{"mean", "std", "min", "25%", "50%", "75%", "max"} {
				r.Set(k, nan)
			}
			return r
		}
		return r.
			Set("mean", Float(stat.Mean(x, nil))).
			Set("std", Float(sampleStdDev(x))).
			Set("min", Float(sorted[0])).
			Set("25%", Float(percentileSorted(sorted, 25))).
			Set("50%", Float(percentileSorted(sorted, 50))).
			Set("75%", Float(percentileSorted(sorted, 75))).
			Set("max", Float(sorted[len(sorted)-1]))
	}

	counts, order, reps := valueCounts(c)
	r := NewRecord().Set("count", Float(nonNullCount(c))).Set("unique", len(order))
	if len(order) == 0 {
		return r.Set("top", nil).Set("freq", nil)
	}
	top := order[0]
	for _, k := range order[1:] {
		if counts[k] > counts[top] {
			top = k
		}
	}
	return r.Set("top", reps[top]).Set("freq", counts[top])
}

// Correlation is the Pearson correlation over rows where both columns are
// non-null.
func Correlation(ds *dataset.Dataset, col1, col2 string) (*Record, error) {
	x, y, err := pairwise(ds, col1, col2)
	if err != nil {
		return nil, err
	}
	v := math.NaN()
	if len(x) >= 2 {
		v = stat.Correlation(x, y, nil)
	}
	return single(fmt.Sprintf("Correlation between %s and %s", col1, col2), Float(v)), nil
}

// Covariance is the sample covariance over pairwise-complete rows.
func Covariance(ds *dataset.Dataset, col1, col2 string) (*Record, error) {
	x, y, err := pairwise(ds, col1, col2)
	if err != nil {
		return nil, err
	}
	v := math.NaN()
	if len(x) >= 2 {
		v = stat.Covariance(x, y, nil)
	}
	return single(fmt.Sprintf("Covariance between %s and %s", col1, col2), Float(v)), nil
}

func pairwise(ds *dataset.Dataset, col1, col2 string) ([]float64, []float64, error) {
	a, err := numericColumn(ds, col1)
	if err != nil {
		return nil, nil, err
	}
	b, err := numericColumn(ds, col2)
	if err != nil {
		return nil, nil, err
	}
	var x, y []float64
	for i := 0; i < a.Len(); i++ {
		if a.IsNull(i) || b.IsNull(i) {
			continue
		}
		x = append(x, a.Numbers[i])
		y = append(y, b.Numbers[i])
	}
	return x, y, nil
}

// Skewness is the bias-corrected sample skewness (G1). It needs at least
// three values and is 0 for a constant column.
func Skewness(ds *dataset.Dataset, name string) (*Record, error) {
	c, err := numericColumn(ds, name)
	if err != nil {
		return nil, err
	}
	x := c.NonNullNumbers()
	v := math.NaN()
	switch {
	case len(x) < 3:
	case sampleStdDev(x) == 0:
		v = 0
	default:
		v = stat.Skew(x, nil)
	}
	return single("Skewness of "+name, Float(v)), nil
}

// Kurtosis is the bias-corrected excess kurtosis (G2). It needs at least
// four values and is 0 for a constant column.
func Kurtosis(ds *dataset.Dataset, name string) (*Record, error) {
	c, err := numericColumn(ds, name)
	if err != nil {
		return nil, err
	}
	x := c.NonNullNumbers()
	v := math.NaN()
	switch {
	case len(x) < 4:
	case sampleStdDev(x) == 0:
		v = 0
	default:
		v = stat.ExKurtosis(x, nil)
	}
	return single("Kurtosis of "+name, Float(v)), nil
}

// Percentile interpolates linearly between the closest ranks of the
// non-null values. p must lie in [0, 100].
func Percentile(ds *dataset.Dataset, name string, p float64) (*Record, error) {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return nil, fmt.Errorf("%w: percentile %v must be between 0 and 100", ErrInvalidArgument, p)
	}
	c, err := numericColumn(ds, name)
	if err != nil {
		return nil, err
	}
	v := percentileSorted(sortedCopy(c.NonNullNumbers()), p)
	label := fmt.Sprintf("%sth percentile of %s", strconv.FormatFloat(p, 'f', -1, 64), name)
	return single(label, Float(v)), nil
}

// CoefficientOfVariation is the population standard deviation over the
// mean. A zero mean yields +Inf.
func CoefficientOfVariation(ds *dataset.Dataset, name string) (*Record, error) {
	c, err := numericColumn(ds, name)
	if err != nil {
		return nil, err
	}
	x := c.NonNullNumbers()
	if len(x) == 0 {
		return single("Coefficient of Variation of "+name, Float(math.NaN())), nil
	}
	mean, std := stat.PopMeanStdDev(x, nil)
	cv := math.Inf(1)
	if mean != 0 {
		cv = std / mean
	}
	return single("Coefficient of Variation of "+name, Float(cv)), nil
}

// MissingValueRatio is the fraction of null cells.
func MissingValueRatio(ds *dataset.Dataset, name string) (*Record, error) {
	c, err := column(ds, name)
	if err != nil {
		return nil, err
	}
	ratio := math.NaN()
	if c.Len() > 0 {
		ratio = float64(c.Len()-nonNullCount(c)) / float64(c.Len())
	}
	return single("Missing Value Ratio of "+name, Float(ratio)), nil
}

// UniqueValues counts distinct non-null values.
func UniqueValues(ds *dataset.Dataset, name string) (*Record, error) {
	c, err := column(ds, name)
	if err != nil {
		return nil, err
	}
	_, order, _ := valueCounts(c)
	return single("Unique Values Count of "+name, len(order)), nil
}

// Mode returns the most frequent non-null value; ties go to the value seen
// first. An all-null column yields a message string instead of a Record.
func Mode(ds *dataset.Dataset, name string) (any, error) {
	c, err := column(ds, name)
	if err != nil {
		return nil, err
	}
	counts, order, reps := valueCounts(c)
	if len(order) == 0 {
		return fmt.Sprintf("No mode found for column '%s'. The column might be empty.", name), nil
	}
	best := order[0]
	for _, k := range order[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return single("Mode of "+name, reps[best]), nil
}

// valueCounts counts non-null cells by their text form. order lists keys
// by first appearance and reps holds the JSON value for each key.
func valueCounts(c *dataset.Column) (map[string]int, []string, map[string]any) {
	counts := make(map[string]int)
	reps := make(map[string]any)
	var order []string
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			continue
		}
		k := c.Text(i)
		if _, ok := counts[k]; !ok {
			order = append(order, k)
			reps[k] = CellValue(c, i)
		}
		counts[k]++
	}
	return counts, order, reps
}

func nonNullCount(c *dataset.Column) int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if !c.IsNull(i) {
			n++
		}
	}
	return n
}

// CellValue converts a cell to a JSON-safe value.
func CellValue(c *dataset.Column, i int) any {
	v := c.Value(i)
	switch t := v.(type) {
	case float64:
		return Float(t)
	case time.Time:
		return t.Format(dataset.TimeLayout)
	default:
		return v
	}
}

func sampleStdDev(x []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.StdDev(x, nil)
}

func sortedCopy(x []float64) []float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	return s
}

// percentileSorted interpolates linearly at rank p/100*(n-1).
func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}
