// Package charts renders table columns to PNG files.
package charts

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/wcharczuk/go-chart/v2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/hunterwarburton/agentgo/internal/analysis"
	"github.com/hunterwarburton/agentgo/internal/dataset"
	"github.com/hunterwarburton/agentgo/internal/logger"
)

// Kind names the chart type; it is part of the output file name.
type Kind string

const (
	KindLine      Kind = "line_chart"
	KindBar       Kind = "bar_chart"
	KindScatter   Kind = "scatter_plot"
	KindHistogram Kind = "histogram"
	KindBox       Kind = "box_plot"
	KindPie       Kind = "pie_chart"
)

var ErrNoData = errors.New("no values to plot")

// MaxHistogramBins caps bins for small columns. A column with more values
// may use up to one bin per value.
const MaxHistogramBins = 1000

// Renderer writes charts into one directory.
type Renderer struct {
	dir    string
	width  vg.Length
	height vg.Length
}

// NewRenderer creates dir if needed.
func NewRenderer(dir string) (*Renderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chart dir: %w", err)
	}
	return &Renderer{dir: dir, width: 8 * vg.Inch, height: 5 * vg.Inch}, nil
}

// Dir returns the output directory.
func (r *Renderer) Dir() string { return r.dir }

func (r *Renderer) path(column string, kind Kind) string {
	safe := strings.Map(func(c rune) rune {
		if c == '/' || c == '\\' || c == os.PathSeparator || c < 0x20 {
			return '_'
		}
		return c
	}, column)
	return filepath.Join(r.dir, fmt.Sprintf("%s_%s_%s.png", uuid.NewString(), safe, kind))
}

func numeric(ds *dataset.Dataset, name string) (*dataset.Column, error) {
	c, ok := ds.Column(name)
	if !ok {
		return nil, &analysis.ColumnNotFoundError{Column: name}
	}
	if !c.IsNumeric() {
		return nil, fmt.Errorf("%w: '%s' has type %s", analysis.ErrNotNumeric, name, c.Type)
	}
	return c, nil
}

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	return p
}

func (r *Renderer) save(p *plot.Plot, column string, kind Kind) (string, error) {
	out := r.path(column, kind)
	if err := p.Save(r.width, r.height, out); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", kind, err)
	}
	logger.Debug("Rendered %s for %s to %s", kind, column, out)
	return out, nil
}

func randomColorIndex() int { return rand.IntN(7) }

// Line plots the column against its row index, skipping nulls.
func (r *Renderer) Line(ds *dataset.Dataset, col string) (string, error) {
	c, err := numeric(ds, col)
	if err != nil {
		return "", err
	}
	var pts plotter.XYs
	for i := 0; i < c.Len(); i++ {
		if !c.IsNull(i) {
			pts = append(pts, plotter.XY{X: float64(i), Y: c.Numbers[i]})
		}
	}
	if len(pts) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoData, col)
	}
	p := newPlot("Line Chart of "+col, "Index", col)
	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", err
	}
	line.Color = plotutil.Color(randomColorIndex())
	p.Add(line)
	return r.save(p, col, KindLine)
}

// Bar draws one bar per row; null cells draw as zero.
func (r *Renderer) Bar(ds *dataset.Dataset, col string) (string, error) {
	c, err := numeric(ds, col)
	if err != nil {
		return "", err
	}
	if c.Len() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoData, col)
	}
	values := make(plotter.Values, c.Len())
	for i := range values {
		if !c.IsNull(i) {
			values[i] = c.Numbers[i]
		}
	}
	p := newPlot("Bar Chart of "+col, "Index", col)
	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return "", err
	}
	bars.Color = plotutil.Color(randomColorIndex())
	bars.LineStyle.Width = 0
	p.Add(bars)
	return r.save(p, col, KindBar)
}

// Scatter plots rows where both columns are non-null.
func (r *Renderer) Scatter(ds *dataset.Dataset, xCol, yCol string) (string, error) {
	x, err := numeric(ds, xCol)
	if err != nil {
		return "", err
	}
	y, err := numeric(ds, yCol)
	if err != nil {
		return "", err
	}
	var pts plotter.XYs
	for i := 0; i < x.Len(); i++ {
		if !x.IsNull(i) && !y.IsNull(i) {
			pts = append(pts, plotter.XY{X: x.Numbers[i], Y: y.Numbers[i]})
		}
	}
	if len(pts) == 0 {
		return "", fmt.Errorf("%w: %s vs %s", ErrNoData, xCol, yCol)
	}
	p := newPlot(fmt.Sprintf("Scatter Plot of %s vs %s", xCol, yCol), xCol, yCol)
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return "", err
	}
	s.GlyphStyle.Color = plotutil.Color(randomColorIndex())
	s.GlyphStyle.Radius = vg.Points(4)
	p.Add(s)
	return r.save(p, xCol+"_vs_"+yCol, KindScatter)
}

// Histogram bins the non-null values.
func (r *Renderer) Histogram(ds *dataset.Dataset, col string, bins int) (string, error) {
	if bins <= 0 {
		return "", fmt.Errorf("%w: bins must be positive, got %d", analysis.ErrInvalidArgument, bins)
	}
	c, err := numeric(ds, col)
	if err != nil {
		return "", err
	}
	values := plotter.Values(c.NonNullNumbers())
	if len(values) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoData, col)
	}
	if limit := max(len(values), MaxHistogramBins); bins > limit {
		return "", fmt.Errorf("%w: bins must be at most %d, got %d", analysis.ErrInvalidArgument, limit, bins)
	}
	p := newPlot("Histogram of "+col, col, "count")
	h, err := plotter.NewHist(values, bins)
	if err != nil {
		return "", err
	}
	h.FillColor = plotutil.Color(randomColorIndex())
	p.Add(h)
	return r.save(p, col, KindHistogram)
}

// Box draws a box plot of the non-null values.
func (r *Renderer) Box(ds *dataset.Dataset, col string) (string, error) {
	c, err := numeric(ds, col)
	if err != nil {
		return "", err
	}
	values := plotter.Values(c.NonNullNumbers())
	if len(values) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoData, col)
	}
	p := newPlot("Box Plot of "+col, "", col)
	box, err := plotter.NewBoxPlot(vg.Points(40), 0, values)
	if err != nil {
		return "", err
	}
	box.FillColor = plotutil.Color(randomColorIndex())
	p.Add(box)
	p.NominalX(col)
	return r.save(p, col, KindBox)
}

// Pie shows the share of each distinct non-null value of any column.
func (r *Renderer) Pie(ds *dataset.Dataset, col string) (string, error) {
	c, ok := ds.Column(col)
	if !ok {
		return "", &analysis.ColumnNotFoundError{Column: col}
	}
	counts := make(map[string]int)
	var order []string
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			continue
		}
		k := c.Text(i)
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}
	if len(order) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoData, col)
	}

	values := make([]chart.Value, len(order))
	for i, k := range order {
		values[i] = chart.Value{Label: k, Value: float64(counts[k])}
	}
	pie := chart.PieChart{
		Title:  "Pie Chart of " + col,
		Width:  800,
		Height: 800,
		Values: values,
	}

	out := r.path(col, KindPie)
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := pie.Render(chart.PNG, f); err != nil {
		f.Close()
		os.Remove(out)
		return "", fmt.Errorf("failed to render pie chart: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	logger.Debug("Rendered %s for %s to %s", KindPie, col, out)
	return out, nil
}
