package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// printer writes the human-readable status lines of a command.
type printer struct {
	out     io.Writer
	okColor *color.Color
	info    *color.Color
	warning *color.Color
	failure *color.Color
}

func newPrinter(cmd *cobra.Command, out io.Writer) *printer {
	p := &printer{
		out:     out,
		okColor: color.New(color.FgGreen, color.Bold),
		info:    color.New(color.FgCyan),
		warning: color.New(color.FgYellow),
		failure: color.New(color.FgRed, color.Bold),
	}

	// rootCmd rejects bad modes before running. The rejection itself is
	// still printed, in auto mode.
	mode, err := colorMode(cmd)
	if err != nil {
		mode = "auto"
	}

	useColor := mode == "on" || (mode == "auto" && isTerminal(out))

	for _, c := range []*color.Color{p.okColor, p.info, p.warning, p.failure} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}

func (p *printer) ok(format string, args ...any) {
	p.okColor.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) note(format string, args ...any) {
	p.info.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) warn(format string, args ...any) {
	p.warning.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) fail(format string, args ...any) {
	p.failure.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) plain(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}
