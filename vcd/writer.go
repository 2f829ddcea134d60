// Package vcd writes traces in the value change dump format.
package vcd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sarchlab/simtrace/tracing"
)

// Writer is a tracing.Sink that writes a VCD file.
type Writer struct {
	timescale Timescale
	version   string
	now       func() time.Time
	create    func(path string) (io.WriteCloser, error)
	remove    func(path string) error

	path string
	file io.WriteCloser
	buf  *bufio.Writer

	ids    []string
	widths []int
	last   []uint64
	frames uint64
}

// Builder builds VCD writers.
type Builder struct {
	timescale Timescale
	version   string
	now       func() time.Time
	create    func(path string) (io.WriteCloser, error)
	remove    func(path string) error
}

// MakeBuilder creates a builder with the default timescale.
func MakeBuilder() Builder {
	return Builder{
		timescale: DefaultTimescale,
		version:   "simtrace",
		now:       time.Now,
		create: func(path string) (io.WriteCloser, error) {
			return os.Create(path)
		},
		remove: os.Remove,
	}
}

// WithTimescale sets the timescale written in the header.
func (b Builder) WithTimescale(ts Timescale) Builder {
	b.timescale = ts
	return b
}

// WithVersion sets the version string written in the header.
func (b Builder) WithVersion(v string) Builder {
	b.version = v
	return b
}

// WithClock sets the clock used for the $date section.
func (b Builder) WithClock(now func() time.Time) Builder {
	b.now = now
	return b
}

// WithCreateFunc replaces how the destination is created and how it is removed
// when the trace is discarded. The default creates (or truncates) a file and
// removes it.
func (b Builder) WithCreateFunc(
	create func(path string) (io.WriteCloser, error),
	remove func(path string) error,
) Builder {
	b.create = create
	b.remove = remove

	return b
}

// Build creates a writer.
func (b Builder) Build() *Writer {
	return &Writer{
		timescale: b.timescale,
		version:   b.version,
		now:       b.now,
		create:    b.create,
		remove:    b.remove,
	}
}

// Open creates the destination and writes the header.
func (w *Writer) Open(h tracing.Header) error {
	if w.file != nil {
		return errors.Errorf("vcd: %s: already open", h.Path)
	}

	if err := w.timescale.Validate(); err != nil {
		return errors.Wrap(err, "vcd")
	}

	f, err := w.create(h.Path)
	if err != nil {
		return errors.Wrap(err, "vcd: create")
	}

	w.path = h.Path
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.ids = make([]string, len(h.Signals))
	w.widths = make([]int, len(h.Signals))
	w.last = make([]uint64, len(h.Signals))
	w.frames = 0

	for _, s := range h.Signals {
		w.ids[s.Index] = IDCode(s.Index)
		w.widths[s.Index] = s.Width
	}

	w.writeHeader(h)

	if err := w.buf.Flush(); err != nil {
		return errors.Wrapf(err, "vcd: write header (discard: %v)", w.Discard())
	}

	return nil
}

// Discard closes the destination and removes it, leaving no partial trace.
func (w *Writer) Discard() error {
	if w.file == nil {
		return errors.New("vcd: discard a writer that is not open")
	}

	closeErr := w.file.Close()
	w.file = nil
	w.buf = nil

	if err := w.remove(w.path); err != nil {
		return errors.Wrap(err, "vcd: remove")
	}

	return errors.Wrap(closeErr, "vcd: close")
}

func (w *Writer) writeHeader(h tracing.Header) {
	fmt.Fprintf(w.buf, "$date\n\t%s\n$end\n", w.now().Format(time.ANSIC))
	fmt.Fprintf(w.buf, "$version\n\t%s\n$end\n", w.version)

	if h.SessionID != "" {
		fmt.Fprintf(w.buf, "$comment\n\tsession %s\n$end\n", h.SessionID)
	}

	fmt.Fprintf(w.buf, "$timescale %s $end\n", w.timescale)

	root := buildScopeTree(h.Signals)
	for _, child := range root.children {
		w.writeScope(child, h.Signals)
	}

	fmt.Fprint(w.buf, "$enddefinitions $end\n")
}

func (w *Writer) writeScope(n *scopeNode, signals []tracing.Signal) {
	fmt.Fprintf(w.buf, "$scope module %s $end\n", n.name)

	for _, idx := range n.vars {
		s := signals[idx]
		if s.Width == 1 {
			fmt.Fprintf(w.buf, "$var wire 1 %s %s $end\n", w.ids[s.Index], s.Name)
			continue
		}

		fmt.Fprintf(w.buf, "$var wire %d %s %s [%d:0] $end\n",
			s.Width, w.ids[s.Index], s.Name, s.Width-1)
	}

	for _, child := range n.children {
		w.writeScope(child, signals)
	}

	fmt.Fprint(w.buf, "$upscope $end\n")
}

// WriteFrame writes the timestamp and the values that changed since the
// previous frame. The first frame dumps every value.
func (w *Writer) WriteFrame(f tracing.Frame) error {
	if w.file == nil {
		return errors.New("vcd: write to a closed writer")
	}

	if len(f.Values) != len(w.ids) {
		return errors.Errorf("vcd: frame has %d values, header declared %d",
			len(f.Values), len(w.ids))
	}

	fmt.Fprintf(w.buf, "#%d\n", f.Time)

	if w.frames == 0 {
		fmt.Fprint(w.buf, "$dumpvars\n")

		for i, v := range f.Values {
			w.writeValue(i, v)
		}

		fmt.Fprint(w.buf, "$end\n")
	} else {
		for i, v := range f.Values {
			if v != w.last[i] {
				w.writeValue(i, v)
			}
		}
	}

	copy(w.last, f.Values)
	w.frames++

	return nil
}

func (w *Writer) writeValue(i int, v uint64) {
	if w.widths[i] == 1 {
		fmt.Fprintf(w.buf, "%d%s\n", v&1, w.ids[i])
		return
	}

	fmt.Fprintf(w.buf, "b%s %s\n", strconv.FormatUint(v, 2), w.ids[i])
}

// Close flushes the buffered output and closes the destination.
func (w *Writer) Close() error {
	if w.file == nil {
		return errors.New("vcd: close a writer that is not open")
	}

	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	w.file = nil
	w.buf = nil

	if flushErr != nil {
		return errors.Wrap(flushErr, "vcd: flush")
	}

	return errors.Wrap(closeErr, "vcd: close")
}

// IDCode returns the short identifier of the n-th signal. Identifiers use the
// printable ASCII characters from '!' to '~'.
func IDCode(n int) string {
	const (
		first = '!'
		base  = '~' - '!' + 1
	)

	var sb strings.Builder

	for {
		sb.WriteByte(byte(first + n%base))

		n = n/base - 1
		if n < 0 {
			break
		}
	}

	return sb.String()
}

type scopeNode struct {
	name     string
	vars     []int
	children []*scopeNode
	index    map[string]*scopeNode
}

func newScopeNode(name string) *scopeNode {
	return &scopeNode{name: name, index: make(map[string]*scopeNode)}
}

func (n *scopeNode) child(name string) *scopeNode {
	c, ok := n.index[name]
	if !ok {
		c = newScopeNode(name)
		n.index[name] = c
		n.children = append(n.children, c)
	}

	return c
}

// buildScopeTree groups signals by scope, keeping the order in which scopes
// and signals were first declared. Signals without a scope go under TOP.
func buildScopeTree(signals []tracing.Signal) *scopeNode {
	root := newScopeNode("")

	for i, s := range signals {
		scope := s.Scope
		if len(scope) == 0 {
			scope = []string{"TOP"}
		}

		n := root
		for _, name := range scope {
			n = n.child(name)
		}

		n.vars = append(n.vars, i)
	}

	return root
}
