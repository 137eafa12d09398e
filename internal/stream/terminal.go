package stream

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Terminal renders to a line-oriented writer. Growing block text is written
// as a suffix; text that changes earlier characters is reprinted on a new line.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	open  bool
	shown string
}

// NewTerminal creates a renderer that writes to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// User prints the operator's message.
func (t *Terminal) User(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLine()
	fmt.Fprintf(t.out, "You: %s\n", text)
}

// NewBlock ends the previous block's line and starts a fresh one.
func (t *Terminal) NewBlock() Block {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLine()
	return terminalBlock{t: t}
}

// Notice prints a tool-invocation notice on its own line.
func (t *Terminal) Notice(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLine()
	fmt.Fprintf(t.out, "  > %s\n", text)
	t.shown = ""
}

// Finish terminates any partially written line.
func (t *Terminal) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLine()
}

func (t *Terminal) closeLine() {
	if t.open {
		fmt.Fprintln(t.out)
		t.open = false
	}
	t.shown = ""
}

func (t *Terminal) render(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.open && strings.HasPrefix(text, t.shown):
		io.WriteString(t.out, text[len(t.shown):])
	default:
		if t.open {
			fmt.Fprintln(t.out)
		}
		io.WriteString(t.out, text)
	}
	t.open = true
	t.shown = text
}

type terminalBlock struct {
	t *Terminal
}

func (b terminalBlock) Render(text string) {
	b.t.render(text)
}
