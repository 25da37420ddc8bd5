// Package config loads tmhighlight settings from a YAML or HCL file.
package config

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/spf13/afero"
	"github.com/walteh/tmhighlight/pkg/highlight"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// Config is the file format. In YAML:
//
//	styles:
//	  - pattern: ^comment
//	    declaration: "color: gray;"
//	grammar_dirs: [./grammars]
//	extensions:
//	  tmpl: source.go
//
// and in HCL:
//
//	style {
//	  pattern     = "^comment"
//	  declaration = "color: gray;"
//	}
//	grammar_dirs = ["${config_dir}/grammars"]
//	extensions   = { tmpl = "source.go" }
type Config struct {
	// Styles replaces the default style table when non-empty. Order matters:
	// the first matching entry wins.
	Styles []*StyleEntry `yaml:"styles,omitempty" hcl:"style,block"`

	// GrammarDirs are searched for *.tmLanguage.json files. Relative paths
	// are taken from the config file's directory.
	GrammarDirs []string `yaml:"grammar_dirs,omitempty" hcl:"grammar_dirs,optional"`

	// Extensions maps a file extension to a grammar scope, ahead of the
	// built-in mapping.
	Extensions map[string]string `yaml:"extensions,omitempty" hcl:"extensions,optional"`
}

type StyleEntry struct {
	Pattern     string `yaml:"pattern" hcl:"pattern,attr"`
	Declaration string `yaml:"declaration" hcl:"declaration,attr"`
}

// LoadConfig reads path from fs. Files ending in .yaml or .yml are YAML;
// anything else is parsed as HCL.
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	dir := filepath.Dir(path)

	var cfg Config
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, errors.Errorf("parsing YAML: %w", err)
		}
	} else {
		parser := hclparse.NewParser()
		hclFile, diags := parser.ParseHCL(data, path)
		if diags.HasErrors() {
			return nil, errors.Errorf("parsing HCL: %s", diags.Error())
		}

		evalCtx := &hcl.EvalContext{
			Variables: map[string]cty.Value{
				"config_dir": cty.StringVal(dir),
			},
		}
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &cfg); diags.HasErrors() {
			return nil, errors.Errorf("decoding HCL: %s", diags.Error())
		}
	}

	for i, d := range cfg.GrammarDirs {
		if d != "" && !filepath.IsAbs(d) {
			cfg.GrammarDirs[i] = filepath.Join(dir, d)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks everything that can be checked without compiling.
func (c *Config) Validate() error {
	for i, s := range c.Styles {
		if s == nil || s.Pattern == "" {
			return errors.Errorf("style %d: pattern is required", i)
		}
	}
	for i, d := range c.GrammarDirs {
		if d == "" {
			return errors.Errorf("grammar_dirs %d: empty path", i)
		}
	}
	for ext, scope := range c.Extensions {
		if scope == "" {
			return errors.Errorf("extension %s: empty scope", ext)
		}
	}
	return nil
}

// StyleTable compiles the configured styles, or returns the default table
// when none are configured.
func (c *Config) StyleTable() (highlight.StyleTable, error) {
	if c == nil || len(c.Styles) == 0 {
		return highlight.DefaultStyleTable(), nil
	}
	table := make(highlight.StyleTable, 0, len(c.Styles))
	for i, s := range c.Styles {
		r, err := highlight.NewStyleRule(s.Pattern, s.Declaration)
		if err != nil {
			return nil, errors.Errorf("style %d: %w", i, err)
		}
		table = append(table, r)
	}
	return table, nil
}
