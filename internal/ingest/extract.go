package ingest

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// Extractor turns a file on disk into plain text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, path string) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// DocxExtractor reads word/document.xml and returns one line per
// paragraph. Paragraphs holding a drawing or picture are skipped.
type DocxExtractor struct{}

func (DocxExtractor) Extract(_ context.Context, path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open document.xml: %w", err)
		}
		defer rc.Close()
		paras, err := docxParagraphs(rc)
		if err != nil {
			return "", err
		}
		return strings.Join(paras, "\n"), nil
	}
	return "", errors.New("docx has no word/document.xml")
}

func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		paras   []string
		buf     strings.Builder
		depth   int
		inText  bool
		drawing bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return paras, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "p":
				if depth == 0 {
					buf.Reset()
					drawing = false
				}
				depth++
			case "t":
				inText = true
			case "tab":
				buf.WriteByte('\t')
			case "br", "cr":
				buf.WriteByte('\n')
			case "drawing", "pict":
				drawing = true
			}
		case xml.EndElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				depth--
				if depth == 0 && !drawing {
					paras = append(paras, buf.String())
				}
			}
		case xml.CharData:
			if inText && depth > 0 {
				buf.Write(t)
			}
		}
	}
}

// DefaultExtractTimeout bounds a single PDF extraction.
const DefaultExtractTimeout = 2 * time.Minute

const maxPageTreeDepth = 64

// ErrMalformedPDF is returned when the page tree cannot be walked.
var ErrMalformedPDF = errors.New("malformed pdf")

// PDFExtractor reads the text layer of every page. The parser runs on its
// own goroutine and is abandoned when ctx ends or Timeout elapses.
type PDFExtractor struct {
	Timeout time.Duration
}

func (e PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}
	return guarded(ctx, timeout, func() (string, error) { return readPDF(ctx, path) })
}

// guarded runs fn on a separate goroutine, turning a panic into an error
// and giving up when ctx is done or timeout passes.
func guarded(ctx context.Context, timeout time.Duration, fn func() (string, error)) (string, error) {
	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: parser panic: %v", ErrMalformedPDF, r)}
			}
		}()
		text, err := fn()
		done <- outcome{text: text, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case o := <-done:
		return o.text, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("pdf extraction timed out after %s", timeout)
	}
}

func readPDF(ctx context.Context, path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	root := r.Trailer().Key("Root").Key("Pages")
	if _, err := countPages(root, 0); err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// countPages walks a Pages node and checks that every kid is a page or a
// page tree and that each declared Count matches its leaves. Reader.Page
// never returns on a tree that breaks either rule.
func countPages(node pdf.Value, depth int) (int, error) {
	if depth > maxPageTreeDepth {
		return 0, fmt.Errorf("%w: page tree deeper than %d", ErrMalformedPDF, maxPageTreeDepth)
	}
	if node.Key("Type").Name() != "Pages" {
		return 0, fmt.Errorf("%w: missing page tree", ErrMalformedPDF)
	}
	kids := node.Key("Kids")
	if kids.Kind() != pdf.Array {
		return 0, fmt.Errorf("%w: page tree has no kids", ErrMalformedPDF)
	}
	total := 0
	for i := 0; i < kids.Len(); i++ {
		kid := kids.Index(i)
		switch kid.Key("Type").Name() {
		case "Page":
			total++
		case "Pages":
			n, err := countPages(kid, depth+1)
			if err != nil {
				return 0, err
			}
			total += n
		default:
			return 0, fmt.Errorf("%w: kid %d is neither a page nor a page tree", ErrMalformedPDF, i)
		}
	}
	if declared := int(node.Key("Count").Int64()); declared != total {
		return 0, fmt.Errorf("%w: page count %d does not match %d pages", ErrMalformedPDF, declared, total)
	}
	return total, nil
}

// TextExtractor reads the file as UTF-8 text.
type TextExtractor struct{}

func (TextExtractor) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}

var (
	inlineSpace = regexp.MustCompile(`[ \t\x{3000}\x{00a0}]+`)
	imageNoise  = []string{"Image Format", "Dimensions", "ColorSpace", "ExifIFD"}
)

// CleanText collapses runs of spaces, drops blank lines and drops lines
// that are image metadata left behind by office exports.
func CleanText(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
		if line == "" || containsAny(line, imageNoise) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
