package debug_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/walteh/tmhighlight/pkg/debug"
)

func TestSplitFuncName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantPkg string
		wantFn  string
	}{
		{name: "test_method", in: "github.com/walteh/tmhighlight/pkg/textmate.(*Grammar).TokenizeLine", wantPkg: "github.com/walteh/tmhighlight/pkg/textmate", wantFn: "(*Grammar).TokenizeLine"},
		{name: "test_func", in: "main.run", wantPkg: "main", wantFn: "run"},
		{name: "test_no_dot", in: "weird", wantPkg: "weird", wantFn: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, fn := debug.SplitFuncName(tt.in)
			assert.Equal(t, tt.wantPkg, pkg)
			assert.Equal(t, tt.wantFn, fn)
		})
	}
}

func TestFormatCaller(t *testing.T) {
	assert.Equal(t, "pkg/x:file.go:12", debug.FormatCaller("pkg/x", "/src/pkg/x/file.go", 12, false))
	assert.Equal(t, "file.go", debug.FileNameOfPath("file.go"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := debug.NewLogger(&buf, debug.LoggerOptions{Level: zerolog.InfoLevel, RunID: "abc", Caller: true})

	logger.Debug().Msg("hidden")
	logger.Info().Str("scope", "source.go").Msg("loaded grammar")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "loaded grammar")
	assert.Contains(t, out, "run=abc")
	assert.Contains(t, out, "scope=source.go")
}
