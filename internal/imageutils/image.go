// Package imageutils holds helpers for chart images handed back to users.
package imageutils

import (
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/hunterwarburton/agentgo/internal/logger"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// IsImagePath reports whether path has an image extension we handle.
func IsImagePath(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// EncodeBase64 reads the file at path and returns its standard base64
// encoding.
func EncodeBase64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ReEncodeToJPEG decodes the image at inputPath and writes it as a JPEG
// with the given quality next to the original. It returns the new path
// and size. The output file is removed if anything fails after it is
// created.
func ReEncodeToJPEG(inputPath string, quality int) (newPath string, newSize int64, err error) {
	inputFile, err := os.Open(inputPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open input file %s: %w", inputPath, err)
	}
	defer inputFile.Close()

	img, format, err := image.Decode(inputFile)
	if err != nil {
		logger.Warn("Failed to decode image %s (format: %s): %v", inputPath, format, err)
		return "", 0, fmt.Errorf("failed to decode image: %w", err)
	}
	logger.Debug("Decoded image %s, original format: %s", inputPath, format)

	ext := filepath.Ext(inputPath)
	baseName := strings.TrimSuffix(filepath.Base(inputPath), ext)
	newPath = filepath.Join(filepath.Dir(inputPath), baseName+"_reencoded.jpg")

	outputFile, err := os.Create(newPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create output file %s: %w", newPath, err)
	}
	defer func() {
		if closeErr := outputFile.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", newPath, closeErr)
		}
		if err != nil {
			os.Remove(newPath)
			newPath = ""
			newSize = 0
		}
	}()

	if err = jpeg.Encode(outputFile, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", 0, fmt.Errorf("failed to encode image %s to JPEG: %w", newPath, err)
	}

	info, err := outputFile.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat output file %s: %w", newPath, err)
	}
	newSize = info.Size()

	logger.Info("Re-encoded %s to %s (%d bytes, quality %d)", inputPath, newPath, newSize, quality)
	return newPath, newSize, nil
}
