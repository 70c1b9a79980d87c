package dataset

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const salesCSV = `region,sales,date,active
north,10,2024-01-01,true
south,20,2024-01-02 08:30:00,false
,30,,TRUE
`

func TestLoadCSVInfersTypes(t *testing.T) {
	ds, err := LoadCSV("sales", strings.NewReader(salesCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "sales", "date", "active"}, ds.ColumnNames())
	assert.Equal(t, 3, ds.NumRows())

	tests := []struct {
		col  string
		want ColumnType
	}{
		{"region", TypeString},
		{"sales", TypeNumber},
		{"date", TypeTime},
		{"active", TypeBool},
	}
	for _, tt := range tests {
		c, ok := ds.Column(tt.col)
		require.True(t, ok, tt.col)
		assert.Equal(t, tt.want, c.Type, tt.col)
	}

	region, _ := ds.Column("region")
	assert.True(t, region.IsNull(2))
	assert.Nil(t, region.Value(2))

	sales, _ := ds.Column("sales")
	assert.Equal(t, []float64{10, 20, 30}, sales.NonNullNumbers())
	assert.Equal(t, "20", sales.Text(1))

	active, _ := ds.Column("active")
	assert.Equal(t, true, active.Value(2))
}

func TestNewColumnNulls(t *testing.T) {
	c := NewColumn("x", []string{"1.5", "NaN", "", "N/A", "2"})
	require.Equal(t, TypeNumber, c.Type)
	assert.Equal(t, []bool{false, true, true, true, false}, c.Null)
	assert.True(t, math.IsNaN(c.Numbers[1]))

	empty := NewColumn("y", []string{"", ""})
	assert.Equal(t, TypeNumber, empty.Type)
	assert.Empty(t, empty.NonNullNumbers())

	mixed := NewColumn("z", []string{"1", "two"})
	assert.Equal(t, TypeString, mixed.Type)
}

func TestNormalizeTimesReturnsCopy(t *testing.T) {
	ds, err := LoadCSV("sales", strings.NewReader(salesCSV))
	require.NoError(t, err)

	norm := ds.NormalizeTimes()
	date, _ := norm.Column("date")
	assert.Equal(t, TypeString, date.Type)
	assert.Equal(t, "2024-01-01 00:00:00", date.Value(0))
	assert.Equal(t, "2024-01-02 08:30:00", date.Value(1))
	assert.Nil(t, date.Value(2))

	orig, _ := ds.Column("date")
	assert.Equal(t, TypeTime, orig.Type)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), orig.Value(0))

	normSales, _ := norm.Column("sales")
	normSales.Numbers[0] = 99
	origSales, _ := ds.Column("sales")
	assert.Equal(t, float64(10), origSales.Numbers[0])
}

func TestLoadFileRouting(t *testing.T) {
	_, err := LoadFile("legacy.xls", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	ds, err := LoadFile("dir/Sales.CSV", strings.NewReader(salesCSV))
	require.NoError(t, err)
	assert.Equal(t, "Sales", ds.Name)
}

func TestLoadCSVShortRowsAndBOM(t *testing.T) {
	ds, err := LoadCSV("t", strings.NewReader("\ufeffa,b\n1\n2,x\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ds.ColumnNames())
	b, _ := ds.Column("b")
	assert.True(t, b.IsNull(0))
}

func TestLoadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"name", "score"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"ann", 3}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"bob", 4.5}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	ds, err := LoadFile("scores.xlsx", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "scores", ds.Name)
	score, ok := ds.Column("score")
	require.True(t, ok)
	assert.Equal(t, TypeNumber, score.Type)
	assert.Equal(t, []float64{3, 4.5}, score.NonNullNumbers())
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	ds, err := LoadCSV("sales", strings.NewReader(salesCSV))
	require.NoError(t, err)
	require.NoError(t, store.Save(ds))

	loaded, err := store.Load("sales")
	require.NoError(t, err)
	assert.Equal(t, ds.ColumnNames(), loaded.ColumnNames())
	sales, _ := loaded.Column("sales")
	assert.Equal(t, []float64{10, 20, 30}, sales.NonNullNumbers())

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"sales"}, names)

	_, err = store.Load("missing")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
	_, err = store.Load("../etc/passwd")
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	require.NoError(t, store.Purge())
	names, err = store.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}
