package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/agentgo/internal/history"
)

type fakeCatalog struct {
	tables []string
	docs   map[string][]string
}

func (f fakeCatalog) Tables() ([]string, error) { return f.tables, nil }

func (f fakeCatalog) Documents(_ context.Context, db string) ([]string, error) {
	return f.docs[db], nil
}

type fakeHistory struct {
	entries []history.Entry
	err     error
	gotUser string
}

func (f *fakeHistory) Recent(_ context.Context, user string, _ int) ([]history.Entry, error) {
	f.gotUser = user
	return f.entries, f.err
}

func TestIsTableFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"sales.csv", true},
		{"Sales.XLSX", true},
		{"report.docx", false},
		{"notes.txt", false},
		{"old.xls", false},
		{"noext", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isTableFile(tt.name), tt.name)
	}
}

func TestDescribeSources(t *testing.T) {
	b := &Bot{
		deps: Deps{Catalog: fakeCatalog{
			tables: []string{"sales"},
			docs:   map[string][]string{"test": {"handbook"}},
		}},
		sessions: NewSessionStore("test"),
	}
	b.sessions.Update(7, func(s *Session) { s.Table = "sales" })

	out := b.describeSources(context.Background(), 7)
	assert.Contains(t, out, "Tables:\n  • sales\n")
	assert.Contains(t, out, "Documents in test:\n  • handbook\n")
	assert.Contains(t, out, "Active table: sales\nActive document: (none)")

	out = b.describeSources(context.Background(), 8)
	assert.Contains(t, out, "Active table: (none)")
}

func TestDescribeHistory(t *testing.T) {
	long := strings.Repeat("x", 200)
	h := &fakeHistory{entries: []history.Entry{
		{Query: "plot sales", Image: true},
		{Query: "mean?", Answer: long},
	}}
	b := &Bot{deps: Deps{History: h}}

	out := b.describeHistory(context.Background(), 42)
	assert.Equal(t, "42", h.gotUser)
	assert.Contains(t, out, "1. plot sales\n   [chart]\n")
	assert.Contains(t, out, "2. mean?\n   "+long[:120]+"...\n")

	cjk := "a" + strings.Repeat("销售额", 60)
	b = &Bot{deps: Deps{History: &fakeHistory{entries: []history.Entry{{Query: "总额?", Answer: cjk}}}}}
	out = b.describeHistory(context.Background(), 42)
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, string([]rune(cjk)[:120])+"...")

	b = &Bot{deps: Deps{History: &fakeHistory{}}}
	assert.Equal(t, "No questions yet.", b.describeHistory(context.Background(), 1))

	b = &Bot{deps: Deps{History: &fakeHistory{err: errors.New("locked")}}}
	assert.Equal(t, "Sorry, I couldn't read your history.", b.describeHistory(context.Background(), 1))

	b = &Bot{}
	assert.Equal(t, "History is not enabled.", b.describeHistory(context.Background(), 1))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"abcdefghijk", 3, "abc..."},
		{"销售额增长", 2, "销售..."},
		{"", 5, ""},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		assert.Equal(t, tt.want, got, tt.in)
		assert.True(t, utf8.ValidString(got))
	}
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"hello"}, splitMessage("hello", 4096))

	long := strings.Repeat("数据", 3000)
	parts := splitMessage(long, 4096)
	require.Len(t, parts, 2)
	assert.Equal(t, long, strings.Join(parts, ""))
	for _, p := range parts {
		assert.LessOrEqual(t, len(utf16.Encode([]rune(p))), 4096)
		assert.True(t, utf8.ValidString(p))
	}

	lines := strings.Repeat("line of text\n", 10)
	parts = splitMessage(lines, 30)
	for _, p := range parts[:len(parts)-1] {
		assert.True(t, strings.HasSuffix(p, "\n"), "part %q should end at a newline", p)
	}
	assert.Equal(t, lines, strings.Join(parts, ""))

	emoji := strings.Repeat("📈", 5)
	parts = splitMessage(emoji, 4)
	assert.Equal(t, []string{"📈📈", "📈📈", "📈"}, parts)

	assert.Equal(t, []string{"📈"}, splitMessage("📈", 1))
}
