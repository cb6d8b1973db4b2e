package chatcmder

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	threadStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
)

// printer writes replies, rendering markdown when out is a terminal.
type printer struct {
	out      io.Writer
	renderer *glamour.TermRenderer
}

func newPrinter(out io.Writer, raw bool) *printer {
	p := &printer{out: out}
	if raw {
		return p
	}

	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p
	}

	width := 80
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
		width = w - 4
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err == nil {
		p.renderer = r
	}
	return p
}

func (p *printer) styled() bool {
	return p.renderer != nil
}

func (p *printer) header(threadID string) {
	if p.styled() {
		fmt.Fprintln(p.out, threadStyle.Render("thread "+threadID))
		return
	}
	fmt.Fprintf(p.out, "thread %s\n", threadID)
}

func (p *printer) reply(text string) {
	if !p.styled() {
		fmt.Fprintf(p.out, "assistant: %s\n", text)
		return
	}

	rendered, err := p.renderer.Render(text)
	if err != nil {
		rendered = text + "\n"
	}
	fmt.Fprintln(p.out, labelStyle.Render("assistant"))
	fmt.Fprint(p.out, strings.TrimLeft(rendered, "\n"))
}
