// Package printer writes colored CLI output for storyctl.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

var (
	Out    io.Writer = os.Stdout
	ErrOut io.Writer = os.Stderr
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
)

// Success prints a green line prefixed with a checkmark.
func Success(format string, a ...any) {
	green.Fprintf(Out, "✓ %s\n", fmt.Sprintf(format, a...))
}

func Info(format string, a ...any) {
	fmt.Fprintf(Out, format+"\n", a...)
}

func Warning(format string, a ...any) {
	yellow.Fprintf(ErrOut, "⚠️  %s\n", fmt.Sprintf(format, a...))
}

func Heading(format string, a ...any) {
	bold.Fprintf(Out, format+"\n", a...)
}

// Field prints an indented "label: value" pair with the label in cyan.
func Field(label string, value any) {
	cyan.Fprintf(Out, "  %s: ", label)
	fmt.Fprintf(Out, "%v\n", value)
}

// Error prints a title, explanation and suggestions to stderr and returns an
// error carrying only the title, for cobra to propagate.
func Error(title, explanation string, suggestions []string) error {
	red.Fprintf(ErrOut, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(ErrOut, "%s\n", explanation)
	}
	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(ErrOut, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(ErrOut, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(ErrOut, "  %d. %s\n", i+1, s)
		}
	}
	return fmt.Errorf("%s", title)
}

// Table writes tab-aligned rows under an upper-cased header.
func Table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(header, "\t")))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	tw.Flush()
}
