// Package diff renders readable differences between values in test failures.
package diff

import (
	"strings"

	"github.com/k0kubun/pp/v3"
	"github.com/kylelemons/godebug/diff"
)

// DiffExportedOnly pretty-prints want and got, exported fields only, and
// returns a line diff of the two. It returns "" when they print the same.
func DiffExportedOnly[T any](want T, got T) string {
	return render(Printer(true), want, got)
}

// Diff is DiffExportedOnly including unexported fields.
func Diff[T any](want T, got T) string {
	return render(Printer(false), want, got)
}

// Printer is a colorless pp printer, as used for diffs and grammar dumps.
func Printer(exportedOnly bool) *pp.PrettyPrinter {
	printer := pp.New()
	printer.SetExportedOnly(exportedOnly)
	printer.SetColoringEnabled(false)
	return printer
}

func render(printer *pp.PrettyPrinter, want, got any) string {
	d := diff.Diff(printer.Sprint(got), printer.Sprint(want))
	if d == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nto convert ACTUAL ⏩️ EXPECTED:\n\n")
	b.WriteString("add:    ➕\n")
	b.WriteString("remove: ➖\n\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(d, "\n-", "\n➖"), "\n+", "\n➕"))
	return b.String()
}
