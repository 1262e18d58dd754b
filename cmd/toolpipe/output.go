package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// isTTY reports whether w is an interactive terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printer renders command output. Colors are only emitted on terminals.
type printer struct {
	out io.Writer
	err io.Writer
	tty bool
}

func newPrinter(out, errOut io.Writer) *printer {
	tty := isTTY(out)
	if !tty {
		color.NoColor = true
	}
	return &printer{out: out, err: errOut, tty: tty}
}

func (p *printer) println(args ...any) {
	fmt.Fprintln(p.out, args...)
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) success(format string, args ...any) {
	fmt.Fprintln(p.out, green("✓ "+fmt.Sprintf(format, args...)))
}

func (p *printer) warn(format string, args ...any) {
	fmt.Fprintln(p.err, yellow("! "+fmt.Sprintf(format, args...)))
}

func (p *printer) failure(format string, args ...any) {
	fmt.Fprintln(p.err, red("✗ "+fmt.Sprintf(format, args...)))
}

// json writes v indented on terminals and compact otherwise.
func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetEscapeHTML(false)
	if p.tty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// table writes rows as borderless aligned columns.
func (p *printer) table(header []string, rows [][]string) {
	t := tablewriter.NewWriter(p.out)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(true)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator("")
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	t.AppendBulk(rows)
	t.Render()
}
