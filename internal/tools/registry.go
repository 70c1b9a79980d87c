package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hunterwarburton/agentgo/internal/dataset"
	"github.com/hunterwarburton/agentgo/internal/llm"
)

// ToolName identifies one entry of the table tool catalog. The string
// values are what the model sees and must not change.
type ToolName string

const (
	DescribeColumn         ToolName = "describe_column"
	DescribeDataframe      ToolName = "describe_dataframe"
	CalculateCorrelation   ToolName = "calculate_correlation"
	CalculateCovariance    ToolName = "calculate_covariance"
	CalculateSkewness      ToolName = "calculate_skewness"
	CalculateKurtosis      ToolName = "calculate_kurtosis"
	CalculatePercentile    ToolName = "calculate_percentile"
	CalculateCV            ToolName = "calculate_coefficient_of_variation"
	CalculateMissingRatio  ToolName = "calculate_missing_value_ratio"
	CalculateUniqueValues  ToolName = "calculate_unique_values"
	CalculateMode          ToolName = "calculate_mode"
	LocateSpecificValue    ToolName = "locate_specific_value"
	LocateGreaterThanValue ToolName = "locate_greater_than_value"
	LocateLessThanValue    ToolName = "locate_less_than_value"
	PlotLineChart          ToolName = "plot_line_chart"
	PlotBarChart           ToolName = "plot_bar_chart"
	PlotScatterChart       ToolName = "plot_scatter_chart"
	PlotHistogram          ToolName = "plot_histogram"
	PlotBoxPlot            ToolName = "plot_box_plot"
	PlotPieChart           ToolName = "plot_pie_chart"
	GetCurrentTime         ToolName = "get_current_time"
)

// DefaultBins is used when plot_histogram is called without bins.
const DefaultBins = 10

var (
	errUnknownTool  = errors.New("unknown tool")
	errBadArguments = errors.New("bad arguments")
)

// ColumnArgs is the argument set of every single-column tool.
type ColumnArgs struct {
	ColName string `json:"col_name"`
}

// PairArgs is used by correlation and covariance.
type PairArgs struct {
	Col1 string `json:"col1"`
	Col2 string `json:"col2"`
}

type PercentileArgs struct {
	ColName    string  `json:"col_name"`
	Percentile *Number `json:"percentile"`
}

// LocateEqualArgs compares as text; numbers from the model are accepted
// and converted.
type LocateEqualArgs struct {
	Column string `json:"col_name_condition"`
	Value  *Text  `json:"condition_value"`
}

type LocateNumberArgs struct {
	Column string  `json:"col_name_condition"`
	Value  *Number `json:"condition_value"`
}

type ScatterArgs struct {
	XCol string `json:"x_col"`
	YCol string `json:"y_col"`
}

type HistogramArgs struct {
	ColName string `json:"col_name"`
	Bins    Number `json:"bins"`
}

// NoArgs is used by tools without parameters.
type NoArgs struct{}

// Call is a parsed tool invocation. Args holds one of the *Args types
// above, chosen by Name.
type Call struct {
	Name ToolName
	Args any
}

// Number accepts a JSON number or a numeric string.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Text accepts a JSON string, number or boolean.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v.(type) {
	case float64, bool:
		*t = Text(string(b))
		return nil
	}
	return fmt.Errorf("unsupported value %s", b)
}

type param struct {
	name string
	llm.PropertySchema
}

type descriptor struct {
	name     ToolName
	desc     string
	params   []param
	required []string
}

func colParam(desc string) param {
	return param{"col_name", llm.PropertySchema{Type: "string", Description: desc}}
}

// catalog is the fixed tool order presented to the model.
var catalog = []descriptor{
	{DescribeColumn, "Get descriptive statistics (count, mean, std, min, quartiles, max) of one column.",
		[]param{colParam("The column to describe.")}, []string{"col_name"}},
	{DescribeDataframe, "Get descriptive statistics of the whole table.", nil, nil},
	{CalculateCorrelation, "Calculate the Pearson correlation between two numeric columns.",
		[]param{
			{"col1", llm.PropertySchema{Type: "string", Description: "The first column."}},
			{"col2", llm.PropertySchema{Type: "string", Description: "The second column."}},
		}, []string{"col1", "col2"}},
	{CalculateCovariance, "Calculate the covariance between two numeric columns.",
		[]param{
			{"col1", llm.PropertySchema{Type: "string", Description: "The first column."}},
			{"col2", llm.PropertySchema{Type: "string", Description: "The second column."}},
		}, []string{"col1", "col2"}},
	{CalculateSkewness, "Calculate the skewness of a numeric column.",
		[]param{colParam("The numeric column.")}, []string{"col_name"}},
	{CalculateKurtosis, "Calculate the excess kurtosis of a numeric column.",
		[]param{colParam("The numeric column.")}, []string{"col_name"}},
	{CalculatePercentile, "Calculate a percentile of a numeric column.",
		[]param{
			colParam("The numeric column."),
			{"percentile", llm.PropertySchema{Type: "number", Description: "The percentile to compute, between 0 and 100."}},
		}, []string{"col_name", "percentile"}},
	{CalculateCV, "Calculate the coefficient of variation (standard deviation divided by mean) of a numeric column.",
		[]param{colParam("The numeric column.")}, []string{"col_name"}},
	{CalculateMissingRatio, "Calculate the ratio of missing values in a column.",
		[]param{colParam("The column to inspect.")}, []string{"col_name"}},
	{CalculateUniqueValues, "Count the distinct non-missing values in a column.",
		[]param{colParam("The column to inspect.")}, []string{"col_name"}},
	{CalculateMode, "Find the most frequent value in a column.",
		[]param{colParam("The column to inspect.")}, []string{"col_name"}},
	{LocateSpecificValue, "Find the rows where a column equals a value.",
		[]param{
			{"col_name_condition", llm.PropertySchema{Type: "string", Description: "The column to filter on."}},
			{"condition_value", llm.PropertySchema{Type: "string", Description: "The value to match."}},
		}, []string{"col_name_condition", "condition_value"}},
	{LocateGreaterThanValue, "Find the rows where a numeric column is greater than a value.",
		[]param{
			{"col_name_condition", llm.PropertySchema{Type: "string", Description: "The numeric column to filter on."}},
			{"condition_value", llm.PropertySchema{Type: "number", Description: "The lower bound, exclusive."}},
		}, []string{"col_name_condition", "condition_value"}},
	{LocateLessThanValue, "Find the rows where a numeric column is less than a value.",
		[]param{
			{"col_name_condition", llm.PropertySchema{Type: "string", Description: "The numeric column to filter on."}},
			{"condition_value", llm.PropertySchema{Type: "number", Description: "The upper bound, exclusive."}},
		}, []string{"col_name_condition", "condition_value"}},
	{PlotLineChart, "Draw a line chart of a numeric column.",
		[]param{colParam("The numeric column to plot.")}, []string{"col_name"}},
	{PlotBarChart, "Draw a bar chart of a numeric column.",
		[]param{colParam("The numeric column to plot.")}, []string{"col_name"}},
	{PlotScatterChart, "Draw a scatter plot of two numeric columns.",
		[]param{
			{"x_col", llm.PropertySchema{Type: "string", Description: "The column for the x axis."}},
			{"y_col", llm.PropertySchema{Type: "string", Description: "The column for the y axis."}},
		}, []string{"x_col", "y_col"}},
	{PlotHistogram, "Draw a histogram of a numeric column.",
		[]param{
			colParam("The numeric column to plot."),
			{"bins", llm.PropertySchema{Type: "integer", Description: "Number of bins.", Default: DefaultBins}},
		}, []string{"col_name"}},
	{PlotBoxPlot, "Draw a box plot of a numeric column.",
		[]param{colParam("The numeric column to plot.")}, []string{"col_name"}},
	{PlotPieChart, "Draw a pie chart of the value counts of a column.",
		[]param{colParam("The column to plot.")}, []string{"col_name"}},
	{GetCurrentTime, "Get the current date and time.", nil, nil},
}

// Names returns the catalog tool names in order.
func Names() []ToolName {
	out := make([]ToolName, len(catalog))
	for i, d := range catalog {
		out[i] = d.name
	}
	return out
}

// BuildSchema returns the tool catalog for ds. Descriptions carry the
// current column list, so the result must not be reused across datasets.
func BuildSchema(ds *dataset.Dataset) []llm.Tool {
	columns := "Available columns: " + strings.Join(ds.ColumnNames(), ", ") + "."
	tools := make([]llm.Tool, 0, len(catalog))
	for _, d := range catalog {
		props := make(map[string]llm.PropertySchema, len(d.params))
		for _, p := range d.params {
			props[p.name] = p.PropertySchema
		}
		desc := d.desc
		if d.name != GetCurrentTime {
			desc += " " + columns
		}
		tools = append(tools, llm.Tool{
			Type: "function",
			Function: llm.FunctionSchema{
				Name:        string(d.name),
				Description: desc,
				Parameters: llm.ParametersSchema{
					Type:       "object",
					Properties: props,
					Required:   d.required,
				},
			},
		})
	}
	return tools
}

// ParseCall decodes the model's arguments for name into the typed variant.
func ParseCall(name, argsJSON string) (Call, error) {
	call := Call{Name: ToolName(name)}
	raw := []byte(strings.TrimSpace(argsJSON))
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}

	var missing []string
	need := func(field, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, field)
		}
	}

	var err error
	switch call.Name {
	case DescribeColumn, CalculateSkewness, CalculateKurtosis, CalculateCV, CalculateMissingRatio,
		CalculateUniqueValues, CalculateMode, PlotLineChart, PlotBarChart, PlotBoxPlot, PlotPieChart:
		var a ColumnArgs
		err = json.Unmarshal(raw, &a)
		need("col_name", a.ColName)
		call.Args = &a
	case CalculateCorrelation, CalculateCovariance:
		var a PairArgs
		err = json.Unmarshal(raw, &a)
		need("col1", a.Col1)
		need("col2", a.Col2)
		call.Args = &a
	case CalculatePercentile:
		var a PercentileArgs
		err = json.Unmarshal(raw, &a)
		need("col_name", a.ColName)
		if a.Percentile == nil {
			missing = append(missing, "percentile")
		}
		call.Args = &a
	case LocateSpecificValue:
		var a LocateEqualArgs
		err = json.Unmarshal(raw, &a)
		need("col_name_condition", a.Column)
		if a.Value == nil {
			missing = append(missing, "condition_value")
		}
		call.Args = &a
	case LocateGreaterThanValue, LocateLessThanValue:
		var a LocateNumberArgs
		err = json.Unmarshal(raw, &a)
		need("col_name_condition", a.Column)
		if a.Value == nil {
			missing = append(missing, "condition_value")
		}
		call.Args = &a
	case PlotScatterChart:
		var a ScatterArgs
		err = json.Unmarshal(raw, &a)
		need("x_col", a.XCol)
		need("y_col", a.YCol)
		call.Args = &a
	case PlotHistogram:
		a := HistogramArgs{Bins: DefaultBins}
		err = json.Unmarshal(raw, &a)
		need("col_name", a.ColName)
		call.Args = &a
	case DescribeDataframe, GetCurrentTime:
		call.Args = &NoArgs{}
	default:
		return call, fmt.Errorf("%w: %s", errUnknownTool, name)
	}

	if err != nil {
		return call, fmt.Errorf("%w: %s: %v", errBadArguments, name, err)
	}
	if len(missing) > 0 {
		return call, fmt.Errorf("%w: %s: missing %s", errBadArguments, name, strings.Join(missing, ", "))
	}
	return call, nil
}
