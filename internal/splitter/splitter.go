// Package splitter breaks document text into ordered, size-bounded chunks
// with overlap. Splitting is recursive over a hierarchy of separators from
// paragraph breaks down to clause punctuation, and each separator stays
// attached to the end of the piece it terminates.
package splitter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Chunk is one bounded segment of a source document.
type Chunk struct {
	Text        string `json:"text"`
	SourceLabel string `json:"source_label,omitempty"`
}

// ErrInvalidParams is returned for non-positive sizes or an overlap that
// does not fit inside a chunk.
var ErrInvalidParams = errors.New("invalid splitter parameters")

// DefaultSeparators runs from paragraph to clause boundaries and covers both
// CJK and Latin punctuation.
var DefaultSeparators = []*regexp.Regexp{
	regexp.MustCompile(`\n\n`),
	regexp.MustCompile(`\n`),
	regexp.MustCompile(`。|！|？`),
	regexp.MustCompile(`\.\s|!\s|\?\s`),
	regexp.MustCompile(`；|;\s`),
	regexp.MustCompile(`，|,\s`),
}

// Splitter is safe for concurrent use.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []*regexp.Regexp
}

// New returns a Splitter using DefaultSeparators.
func New(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidParams, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidParams, chunkOverlap, chunkSize)
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}, nil
}

// SplitText is a convenience wrapper around New and Split.
func SplitText(text string, chunkSize, chunkOverlap int) ([]string, error) {
	s, err := New(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	return s.Split(text), nil
}

// Split returns the ordered chunk texts. No chunk is whitespace-only, so
// whitespace-only input yields nil.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	chunks := s.split(text, s.separators)
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

// SplitDocument splits text and labels each chunk with its source. When
// prefix is set the label is also written into the text as "[label] : ".
func (s *Splitter) SplitDocument(label, text string, prefix bool) []Chunk {
	parts := s.Split(text)
	chunks := make([]Chunk, 0, len(parts))
	for _, p := range parts {
		if prefix {
			p = fmt.Sprintf("[%s] : %s", label, p)
		}
		chunks = append(chunks, Chunk{Text: p, SourceLabel: label})
	}
	return chunks
}

func (s *Splitter) split(text string, separators []*regexp.Regexp) []string {
	sep := separators[len(separators)-1]
	var rest []*regexp.Regexp
	for i, candidate := range separators {
		if candidate.MatchString(text) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var chunks, small []string
	for _, piece := range splitKeepingSeparator(text, sep) {
		if runeLen(piece) < s.chunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			chunks = append(chunks, s.merge(small)...)
			small = nil
		}
		if len(rest) == 0 {
			// Atomic unit larger than a chunk: emitted whole, never truncated.
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, rest)...)
		}
	}
	if len(small) > 0 {
		chunks = append(chunks, s.merge(small)...)
	}
	return chunks
}

// merge packs pieces shorter than the chunk size into chunks, carrying
// whole trailing pieces of up to chunkOverlap runes into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var (
		chunks  []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, ""))
			for total > s.chunkOverlap || (total+n > s.chunkSize && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, ""))
	}
	return chunks
}

// splitKeepingSeparator splits text after every match of sep, so each
// separator ends the piece before it. Empty pieces are dropped and
// whitespace-only pieces are folded into a neighbour.
func splitKeepingSeparator(text string, sep *regexp.Regexp) []string {
	var (
		pieces  []string
		pending string
	)
	add := func(piece string) {
		switch {
		case strings.TrimSpace(piece) != "":
			pieces = append(pieces, pending+piece)
			pending = ""
		case len(pieces) > 0:
			pieces[len(pieces)-1] += piece
		default:
			pending += piece
		}
	}
	start := 0
	for _, loc := range sep.FindAllStringIndex(text, -1) {
		if loc[1] > start {
			add(text[start:loc[1]])
			start = loc[1]
		}
	}
	if start < len(text) {
		add(text[start:])
	}
	if pending != "" {
		pieces = append(pieces, pending)
	}
	return pieces
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
