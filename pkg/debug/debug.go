// Package debug builds the zerolog loggers used by the command line tools.
package debug

import (
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	Level zerolog.Level
	// Color enables ANSI colors in the console output.
	Color bool
	// RunID is attached to every event when set.
	RunID string
	// Caller adds the calling file and line to every event.
	Caller bool
}

// NewLogger returns a human-readable logger writing to w.
func NewLogger(w io.Writer, opts LoggerOptions) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:     w,
		NoColor: !opts.Color,
	}

	ctx := zerolog.New(out).Level(opts.Level).With()
	if opts.RunID != "" {
		ctx = ctx.Str("run", opts.RunID)
	}

	logger := ctx.Logger().Hook(CustomTimeHook{WithColor: opts.Color})
	if opts.Caller {
		logger = logger.Hook(CustomCallerHook{WithColor: opts.Color})
	}
	return logger
}

// skipFrames reads the frame count set by Event.CallerSkipFrame, which
// zerolog keeps unexported.
func skipFrames(e *zerolog.Event) int {
	v := reflect.ValueOf(e).Elem()
	field := v.FieldByName("skipFrame")
	if field.IsValid() && field.CanAddr() {
		return int(field.Int())
	}
	return 0
}

type CustomTimeHook struct {
	WithColor bool
	Format    string
}

func (t CustomTimeHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	format := t.Format
	if format == "" {
		// millisecond precision, no timezone
		format = "2006-01-02T15:04:05.0000Z"
	}
	e.Str("time", time.Now().Format(format))
}

type CustomCallerHook struct {
	WithColor bool
}

func (c CustomCallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	pc, file, line, ok := runtime.Caller(skipFrames(e) + 3)
	if !ok {
		return
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return
	}
	pkg, _ := SplitFuncName(fn.Name())
	e.Str("caller", FormatCaller(pkg, file, line, c.WithColor))
}

// SplitFuncName splits a runtime function name such as
// "github.com/x/y/pkg.(*T).Method" into its package path and the rest.
func SplitFuncName(name string) (pkg, function string) {
	lastSlash := strings.LastIndexByte(name, '/')
	if lastSlash < 0 {
		lastSlash = 0
	}
	firstDot := strings.IndexByte(name[lastSlash:], '.')
	if firstDot < 0 {
		return name, ""
	}
	firstDot += lastSlash

	pkg = name[:firstDot]
	function = name[firstDot+1:]
	return pkg, function
}

func FormatCaller(pkg, path string, line int, colorize bool) string {
	file := FileNameOfPath(path)
	if colorize {
		file = color.New(color.Bold).Sprint(file)
		num := color.New(color.FgHiRed, color.Bold).Sprintf("%d", line)
		sep := color.New(color.Faint).Sprint(":")
		return fmt.Sprintf("%s%s%s%s%s", pkg, sep, file, sep, num)
	}
	return fmt.Sprintf("%s:%s:%d", pkg, file, line)
}

func FileNameOfPath(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
