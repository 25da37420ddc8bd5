// Package scanner is the pattern-matching backend handed to the grammar
// engine. A Scanner holds a list of patterns and answers one question: which
// of them matches earliest in a string, starting from a given offset.
package scanner

import (
	"unicode/utf8"

	"github.com/apparentlymart/go-textseg/v13/textseg"
)

// Backend creates scanners and matchable strings. The grammar engine only
// talks to regular expressions through this interface.
type Backend interface {
	CreateScanner(patterns []string) (Scanner, error)
	CreateMatchableString(text string) *MatchableString
}

// Scanner searches a MatchableString for the earliest match among its
// patterns.
type Scanner interface {
	// FindNextMatch returns the match starting earliest at or after byte
	// offset start. Ties go to the lowest pattern index. A nil match with a
	// nil error means no pattern matched.
	FindNextMatch(s *MatchableString, start int) (*Match, error)
}

// CaptureIndex is a capture group's byte range within the searched string.
type CaptureIndex struct {
	Start   int
	End     int
	Matched bool
}

// Len is the byte length of the capture.
func (c CaptureIndex) Len() int {
	return c.End - c.Start
}

// Match is the result of a successful scan. Captures[0] is the whole match.
type Match struct {
	PatternIndex int
	Captures     []CaptureIndex
}

func (m *Match) Start() int {
	return m.Captures[0].Start
}

func (m *Match) End() int {
	return m.Captures[0].End
}

// MatchableString is a string prepared for repeated scanning: its runes are
// decoded once and offsets can be translated in both directions.
type MatchableString struct {
	text string
	// runes is the decoded text
	runes []rune
	// byteOfRune[i] is the byte offset of rune i; byteOfRune[len(runes)] == len(text)
	byteOfRune []int
	// runeOfByte[b] is the index of the rune containing byte b
	runeOfByte []int
}

// NewMatchableString decodes text for scanning.
func NewMatchableString(text string) *MatchableString {
	s := &MatchableString{
		text:       text,
		runes:      make([]rune, 0, utf8.RuneCountInString(text)),
		byteOfRune: make([]int, 0, len(text)+1),
		runeOfByte: make([]int, len(text)+1),
	}
	for b, r := range text {
		s.byteOfRune = append(s.byteOfRune, b)
		s.runes = append(s.runes, r)
	}
	s.byteOfRune = append(s.byteOfRune, len(text))

	for i := 0; i < len(s.runes); i++ {
		for b := s.byteOfRune[i]; b < s.byteOfRune[i+1]; b++ {
			s.runeOfByte[b] = i
		}
	}
	s.runeOfByte[len(text)] = len(s.runes)
	return s
}

// Content returns the original text.
func (s *MatchableString) Content() string {
	return s.text
}

// Len is the length of the text in bytes.
func (s *MatchableString) Len() int {
	return len(s.text)
}

// Runes returns the decoded text. Callers must not modify it.
func (s *MatchableString) Runes() []rune {
	return s.runes
}

// RuneIndex converts a byte offset to a rune index.
func (s *MatchableString) RuneIndex(byteOffset int) int {
	if byteOffset <= 0 {
		return 0
	}
	if byteOffset >= len(s.runeOfByte) {
		return len(s.runes)
	}
	return s.runeOfByte[byteOffset]
}

// ByteOffset converts a rune index to a byte offset.
func (s *MatchableString) ByteOffset(runeIndex int) int {
	if runeIndex <= 0 {
		return 0
	}
	if runeIndex >= len(s.byteOfRune) {
		return len(s.text)
	}
	return s.byteOfRune[runeIndex]
}

// Advance returns the offset just past the user-perceived character (grapheme
// cluster) starting at byte offset pos.
func (s *MatchableString) Advance(pos int) int {
	if pos >= len(s.text) {
		return len(s.text)
	}
	n, _, err := textseg.ScanGraphemeClusters([]byte(s.text[pos:]), true)
	if err != nil || n <= 0 {
		_, size := utf8.DecodeRuneInString(s.text[pos:])
		return pos + size
	}
	return pos + n
}
