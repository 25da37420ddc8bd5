// Package tmlanguage models the JSON form of a TextMate grammar.
//
// Unlike a plain map-based decoding, object-valued fields (the repository and
// the capture tables) keep the order their keys appear in the source file, so
// anything that walks a grammar sees its rules in a reproducible order.
package tmlanguage

import (
	"encoding/json"

	"gitlab.com/tozd/go/errors"
)

// Grammar is a decoded *.tmLanguage.json document.
type Grammar struct {
	Name              string      `json:"name,omitempty"`
	ScopeName         string      `json:"scopeName"`
	FileTypes         []string    `json:"fileTypes,omitempty"`
	FirstLineMatch    string      `json:"firstLineMatch,omitempty"`
	InjectionSelector string      `json:"injectionSelector,omitempty"`
	Patterns          []*Rule     `json:"patterns,omitempty"`
	Repository        *Repository `json:"repository,omitempty"`
}

// Rule is a single grammar rule. Which fields are set decides what kind of
// rule it is: include, match, begin/end, begin/while or a plain container of
// patterns.
type Rule struct {
	Name                string      `json:"name,omitempty"`
	ContentName         string      `json:"contentName,omitempty"`
	Comment             string      `json:"comment,omitempty"`
	Include             string      `json:"include,omitempty"`
	Match               string      `json:"match,omitempty"`
	Begin               string      `json:"begin,omitempty"`
	End                 string      `json:"end,omitempty"`
	While               string      `json:"while,omitempty"`
	Captures            *Captures   `json:"captures,omitempty"`
	BeginCaptures       *Captures   `json:"beginCaptures,omitempty"`
	EndCaptures         *Captures   `json:"endCaptures,omitempty"`
	WhileCaptures       *Captures   `json:"whileCaptures,omitempty"`
	Patterns            []*Rule     `json:"patterns,omitempty"`
	Repository          *Repository `json:"repository,omitempty"`
	ApplyEndPatternLast Flag        `json:"applyEndPatternLast,omitempty"`
	Disabled            Flag        `json:"disabled,omitempty"`
}

// UnmarshalGrammar decodes a grammar and checks that it names its scope.
func UnmarshalGrammar(data []byte) (*Grammar, error) {
	var g Grammar
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, errors.Errorf("unmarshaling grammar: %w", err)
	}
	if g.ScopeName == "" {
		return nil, errors.Errorf("grammar %q has no scopeName", g.Name)
	}
	return &g, nil
}

// Marshal encodes the grammar back to JSON, preserving key order.
func (g *Grammar) Marshal() ([]byte, error) {
	return json.Marshal(g)
}

// Flag decodes the loose booleans found in grammars, which may be written as
// true/false or as 1/0.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true", "1":
		*f = true
	case "false", "0", "null":
		*f = false
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.Errorf("invalid flag value %s", data)
		}
		*f = n != 0
	}
	return nil
}
