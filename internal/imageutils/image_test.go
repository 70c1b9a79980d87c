package imageutils

import (
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 255, A: 255})
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestIsImagePath(t *testing.T) {
	tests := map[string]bool{
		"chart.png":       true,
		"/tmp/photo.JPG":  true,
		"scan.jpeg":       true,
		"report.pdf":      false,
		"noextension":     false,
		"archive.png.zip": false,
	}
	for path, want := range tests {
		assert.Equal(t, want, IsImagePath(path), path)
	}
}

func TestEncodeBase64(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.png")
	writePNG(t, path)

	enc, err := EncodeBase64(path)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	orig, _ := os.ReadFile(path)
	assert.Equal(t, orig, raw)

	_, err = EncodeBase64(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestReEncodeToJPEG(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "c.png")
	writePNG(t, src)

	out, size, err := ReEncodeToJPEG(src, 80)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "c_reencoded.jpg"), out)
	assert.Positive(t, size)

	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))
	_, _, err = ReEncodeToJPEG(bad, 80)
	assert.Error(t, err)
}
