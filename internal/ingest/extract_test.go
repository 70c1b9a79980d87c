package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF lays out objs as numbered objects 1..n with a matching xref
// table. Object 1 must be the catalog.
func buildPDF(objs ...string) []byte {
	var sb strings.Builder
	sb.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = sb.Len()
		fmt.Fprintf(&sb, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := sb.Len()
	fmt.Fprintf(&sb, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&sb, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&sb, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return []byte(sb.String())
}

func writePDF(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestPDFExtractorRejectsBrokenPageTree(t *testing.T) {
	tests := []struct {
		name string
		objs []string
	}{
		{"kid points to missing object", []string{
			"<< /Type /Catalog /Pages 2 0 R >>",
			"<< /Type /Pages /Kids [9 0 R] /Count 1 >>",
		}},
		{"count larger than kids", []string{
			"<< /Type /Catalog /Pages 2 0 R >>",
			"<< /Type /Pages /Kids [3 0 R] /Count 2 >>",
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		}},
		{"no page tree", []string{
			"<< /Type /Catalog >>",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePDF(t, buildPDF(tt.objs...))

			done := make(chan error, 1)
			go func() {
				_, err := PDFExtractor{Timeout: 5 * time.Second}.Extract(context.Background(), path)
				done <- err
			}()
			select {
			case err := <-done:
				assert.ErrorIs(t, err, ErrMalformedPDF)
			case <-time.After(10 * time.Second):
				t.Fatal("Extract did not return")
			}
		})
	}
}

func TestGuarded(t *testing.T) {
	text, err := guarded(context.Background(), time.Second, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", text)

	_, err = guarded(context.Background(), time.Second, func() (string, error) { panic("bad xref") })
	assert.ErrorIs(t, err, ErrMalformedPDF)
	assert.Contains(t, err.Error(), "bad xref")

	block := make(chan struct{})
	defer close(block)
	hang := func() (string, error) { <-block; return "", nil }

	_, err = guarded(context.Background(), 20*time.Millisecond, hang)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = guarded(ctx, time.Minute, hang)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUploadDocumentsMalformedPDF(t *testing.T) {
	f := newFixture(t, nil)
	data := buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [9 0 R] /Count 1 >>",
	)

	results, err := f.in.UploadDocuments(context.Background(), UploadRequest{
		Files: []File{{Name: "broken.pdf", Reader: strings.NewReader(string(data))}},
	})
	assert.ErrorIs(t, err, ErrMalformedPDF)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrMalformedPDF)
	assert.Zero(t, results[0].Chunks)
	f.assertSpoolEmpty(t)
}
