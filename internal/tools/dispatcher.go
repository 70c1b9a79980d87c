package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hunterwarburton/agentgo/internal/analysis"
	"github.com/hunterwarburton/agentgo/internal/charts"
	"github.com/hunterwarburton/agentgo/internal/dataset"
	"github.com/hunterwarburton/agentgo/internal/llm"
	"github.com/hunterwarburton/agentgo/internal/logger"
)

// State is a step of a single dispatch.
type State int

const (
	StateAwaitingModel State = iota
	StateDirectAnswer
	StateToolCallRequested
	StateToolExecuted
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateDirectAnswer:
		return "direct_answer"
	case StateToolCallRequested:
		return "tool_call_requested"
	case StateToolExecuted:
		return "tool_executed"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Kind tells which payload field of a Result is set.
type Kind string

const (
	KindText  Kind = "text"
	KindValue Kind = "value"
	KindImage Kind = "image"
	KindError Kind = "error"
)

// ErrorKind classifies a failed tool execution.
type ErrorKind string

const (
	ErrUnknownTool    ErrorKind = "unknown_tool"
	ErrColumnNotFound ErrorKind = "column_not_found"
	ErrBadArguments   ErrorKind = "bad_arguments"
	ErrNotNumeric     ErrorKind = "not_numeric"
	ErrExecution      ErrorKind = "execution_failed"
)

// ToolError is the payload of a KindError result.
type ToolError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ToolError) Error() string { return e.Message }

// Result is the outcome of one dispatch. Exactly one of Text, Value,
// ImagePath and Err is meaningful, as selected by Kind.
type Result struct {
	Kind      Kind
	Tool      ToolName
	Text      string
	Value     any
	ImagePath string
	Err       *ToolError

	// IgnoredCalls counts tool calls after the first one.
	IgnoredCalls int
	// States records the path taken through the dispatch.
	States []State
}

// Content returns the payload as a JSON-friendly value.
func (r *Result) Content() any {
	switch r.Kind {
	case KindValue:
		return r.Value
	case KindImage:
		return r.ImagePath
	case KindError:
		if r.Err != nil {
			return r.Err.Message
		}
		return ""
	}
	return r.Text
}

// Payload renders the tool message handed to the synthesis step.
func (r *Result) Payload() map[string]any {
	return map[string]any{
		"name":    string(r.Tool),
		"role":    "tool",
		"content": r.Content(),
	}
}

// Dispatcher performs one model round over a table's tool catalog.
type Dispatcher struct {
	model     llm.ChatModel
	modelName string
	charts    *charts.Renderer
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher. renderer may be nil, in which case
// plot tools fail with ErrExecution.
func NewDispatcher(model llm.ChatModel, modelName string, renderer *charts.Renderer) *Dispatcher {
	return &Dispatcher{
		model:     model,
		modelName: modelName,
		charts:    renderer,
		now:       time.Now,
	}
}

// WithClock replaces the time source used by get_current_time.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch asks the tool model about question and executes at most one
// tool call against ds. Only a failed model call is returned as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, question string, ds *dataset.Dataset) (*Result, error) {
	states := []State{StateAwaitingModel}

	messages := []llm.Message{
		{Role: "system", Content: llm.ToolSystemPrompt},
		{Role: "user", Content: question},
	}
	resp, err := d.model.ChatCompletion(ctx, d.modelName, messages, BuildSchema(ds))
	if err != nil {
		return nil, fmt.Errorf("tool model call failed: %w", err)
	}

	calls := resp.Message.ToolCalls
	if len(calls) == 0 {
		logger.ToolDebug("Model answered directly without a tool call")
		return &Result{
			Kind:   KindText,
			Text:   resp.Message.Content,
			States: append(states, StateDirectAnswer, StateDone),
		}, nil
	}

	states = append(states, StateToolCallRequested)
	first := calls[0]
	if len(calls) > 1 {
		logger.ToolWarn("Model requested %d tool calls; executing only '%s'", len(calls), first.Function.Name)
	}

	result := d.Execute(ctx, first.Function.Name, first.Function.Arguments, ds)
	result.IgnoredCalls = len(calls) - 1
	result.States = append(states, StateToolExecuted, StateDone)
	return result, nil
}

// Execute parses and runs a single tool call. Failures, including a panic
// inside a tool, are reported in the returned Result, never as a Go error.
func (d *Dispatcher) Execute(ctx context.Context, name, argsJSON string, ds *dataset.Dataset) (res *Result) {
	logger.ToolDebug("Executing tool '%s' with arguments %s", name, argsJSON)
	defer func() {
		if r := recover(); r != nil {
			logger.ToolError("Tool '%s' panicked: %v", name, r)
			res = errorResult(ToolName(name), ErrExecution, fmt.Sprintf("Tool %s failed: %v", name, r))
		}
	}()

	call, err := ParseCall(name, argsJSON)
	if err != nil {
		var r *Result
		if errors.Is(err, errUnknownTool) {
			r = errorResult(call.Name, ErrUnknownTool, fmt.Sprintf("Tool %s not found.", name))
		} else {
			r = errorResult(call.Name, ErrBadArguments, err.Error())
		}
		logger.ToolWarn("Tool '%s' rejected: %s", name, r.Err.Message)
		return r
	}

	if err := ctx.Err(); err != nil {
		return errorResult(call.Name, ErrExecution, err.Error())
	}

	r, err := d.run(call, ds)
	if err != nil {
		r = classify(call.Name, err)
		logger.ToolWarn("Tool '%s' failed: %v", name, err)
		return r
	}
	r.Tool = call.Name
	logger.ToolInfo("Tool '%s' executed (%s)", name, r.Kind)
	return r
}

func (d *Dispatcher) run(call Call, ds *dataset.Dataset) (*Result, error) {
	switch a := call.Args.(type) {
	case *ColumnArgs:
		return d.runColumn(call.Name, a.ColName, ds)
	case *PairArgs:
		if call.Name == CalculateCorrelation {
			return value(analysis.Correlation(ds, a.Col1, a.Col2))
		}
		return value(analysis.Covariance(ds, a.Col1, a.Col2))
	case *PercentileArgs:
		return value(analysis.Percentile(ds, a.ColName, float64(*a.Percentile)))
	case *LocateEqualArgs:
		return textOrValue(analysis.LocateEqual(ds, a.Column, string(*a.Value)))
	case *LocateNumberArgs:
		if call.Name == LocateGreaterThanValue {
			return textOrValue(analysis.LocateGreater(ds, a.Column, float64(*a.Value)))
		}
		return textOrValue(analysis.LocateLess(ds, a.Column, float64(*a.Value)))
	case *ScatterArgs:
		return d.plot(func(r *charts.Renderer) (string, error) { return r.Scatter(ds, a.XCol, a.YCol) })
	case *HistogramArgs:
		if math.Abs(float64(a.Bins)) > math.MaxInt32 {
			return nil, fmt.Errorf("%w: bins out of range", analysis.ErrInvalidArgument)
		}
		bins := int(a.Bins)
		if float64(bins) != float64(a.Bins) {
			return nil, fmt.Errorf("%w: bins must be an integer", analysis.ErrInvalidArgument)
		}
		return d.plot(func(r *charts.Renderer) (string, error) { return r.Histogram(ds, a.ColName, bins) })
	case *NoArgs:
		if call.Name == GetCurrentTime {
			return &Result{Kind: KindText, Text: "Current time: " + d.now().Format(dataset.TimeLayout) + "."}, nil
		}
		return &Result{Kind: KindValue, Value: analysis.DescribeDataset(ds)}, nil
	}
	return nil, fmt.Errorf("no handler for %s", call.Name)
}

func (d *Dispatcher) runColumn(name ToolName, col string, ds *dataset.Dataset) (*Result, error) {
	switch name {
	case DescribeColumn:
		return value(analysis.DescribeColumn(ds, col))
	case CalculateSkewness:
		return value(analysis.Skewness(ds, col))
	case CalculateKurtosis:
		return value(analysis.Kurtosis(ds, col))
	case CalculateCV:
		return value(analysis.CoefficientOfVariation(ds, col))
	case CalculateMissingRatio:
		return value(analysis.MissingValueRatio(ds, col))
	case CalculateUniqueValues:
		return value(analysis.UniqueValues(ds, col))
	case CalculateMode:
		return textOrValue(analysis.Mode(ds, col))
	case PlotLineChart:
		return d.plot(func(r *charts.Renderer) (string, error) { return r.Line(ds, col) })
	case PlotBarChart:
		return d.plot(func(r *charts.Renderer) (string, error) { return r.Bar(ds, col) })
	case PlotBoxPlot:
		return d.plot(func(r *charts.Renderer) (string, error) { return r.Box(ds, col) })
	case PlotPieChart:
		return d.plot(func(r *charts.Renderer) (string, error) { return r.Pie(ds, col) })
	}
	return nil, fmt.Errorf("no handler for %s", name)
}

func (d *Dispatcher) plot(render func(*charts.Renderer) (string, error)) (*Result, error) {
	if d.charts == nil {
		return nil, errors.New("chart rendering is not configured")
	}
	path, err := render(d.charts)
	if err != nil {
		return nil, err
	}
	return &Result{Kind: KindImage, ImagePath: path}, nil
}

func value(rec *analysis.Record, err error) (*Result, error) {
	if err != nil {
		return nil, err
	}
	return &Result{Kind: KindValue, Value: rec}, nil
}

// textOrValue handles operations that answer with a message string when
// there is nothing to report.
func textOrValue(v any, err error) (*Result, error) {
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		return &Result{Kind: KindText, Text: s}, nil
	}
	return &Result{Kind: KindValue, Value: v}, nil
}

func classify(tool ToolName, err error) *Result {
	var cnf *analysis.ColumnNotFoundError
	switch {
	case errors.As(err, &cnf):
		return errorResult(tool, ErrColumnNotFound, cnf.Error())
	case errors.Is(err, analysis.ErrNotNumeric):
		return errorResult(tool, ErrNotNumeric, err.Error())
	case errors.Is(err, analysis.ErrInvalidArgument):
		return errorResult(tool, ErrBadArguments, err.Error())
	}
	return errorResult(tool, ErrExecution, err.Error())
}

func errorResult(tool ToolName, kind ErrorKind, msg string) *Result {
	return &Result{Kind: KindError, Tool: tool, Err: &ToolError{Kind: kind, Message: msg}}
}
