package charts

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/agentgo/internal/analysis"
	"github.com/hunterwarburton/agentgo/internal/dataset"
)

const salesCSV = `region,sales,units
north,10,1
south,20,3
north,30,2
east,,4
`

func fixture(t *testing.T) (*Renderer, *dataset.Dataset) {
	t.Helper()
	r, err := NewRenderer(filepath.Join(t.TempDir(), "tmp"))
	require.NoError(t, err)
	ds, err := dataset.LoadCSV("sales", strings.NewReader(salesCSV))
	require.NoError(t, err)
	return r, ds
}

var pngName = regexp.MustCompile(`^[0-9a-f-]{36}_.+_[a-z_]+\.png$`)

func TestRenderAllKinds(t *testing.T) {
	r, ds := fixture(t)

	tests := []struct {
		name   string
		render func() (string, error)
		suffix string
	}{
		{"line", func() (string, error) { return r.Line(ds, "sales") }, "_sales_line_chart.png"},
		{"bar", func() (string, error) { return r.Bar(ds, "sales") }, "_sales_bar_chart.png"},
		{"scatter", func() (string, error) { return r.Scatter(ds, "sales", "units") }, "_sales_vs_units_scatter_plot.png"},
		{"histogram", func() (string, error) { return r.Histogram(ds, "units", 3) }, "_units_histogram.png"},
		{"box", func() (string, error) { return r.Box(ds, "sales") }, "_sales_box_plot.png"},
		{"pie", func() (string, error) { return r.Pie(ds, "region") }, "_region_pie_chart.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.render()
			require.NoError(t, err)
			assert.Equal(t, r.Dir(), filepath.Dir(out))
			assert.True(t, strings.HasSuffix(out, tt.suffix), out)
			assert.Regexp(t, pngName, filepath.Base(out))

			info, err := os.Stat(out)
			require.NoError(t, err)
			assert.Positive(t, info.Size())
		})
	}
}

func TestRenderErrors(t *testing.T) {
	r, ds := fixture(t)

	_, err := r.Line(ds, "missing")
	var cnf *analysis.ColumnNotFoundError
	assert.ErrorAs(t, err, &cnf)

	_, err = r.Box(ds, "region")
	assert.ErrorIs(t, err, analysis.ErrNotNumeric)

	_, err = r.Histogram(ds, "sales", 0)
	assert.ErrorIs(t, err, analysis.ErrInvalidArgument)

	_, err = r.Histogram(ds, "sales", 1e15)
	assert.ErrorIs(t, err, analysis.ErrInvalidArgument)

	_, err = r.Histogram(ds, "sales", MaxHistogramBins)
	assert.NoError(t, err)

	_, err = r.Pie(ds, "missing")
	assert.ErrorAs(t, err, &cnf)
}

func TestUniqueFileNames(t *testing.T) {
	r, ds := fixture(t)
	a, err := r.Line(ds, "sales")
	require.NoError(t, err)
	b, err := r.Line(ds, "sales")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
