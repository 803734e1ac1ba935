// Package proctree reconstructs the process forest from the output of the
// platform's process-listing tool.
package proctree

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedLine reports a listing line that does not match the expected
// "name ppid pid" layout. It means the tool's output format has diverged.
var ErrMalformedLine = errors.New("malformed process listing line")

// ProcessInfo is one node of the forest. Children are owned in encounter
// order; Parent is a back-reference into the same map.
type ProcessInfo struct {
	Name string
	PID  int
	// PPID is the parent id reported by the tool, even when no parent is
	// linked.
	PPID     int
	Parent   *ProcessInfo
	Children []*ProcessInfo

	listed bool
}

// Placeholder reports whether the node was only ever referenced as a parent.
func (p *ProcessInfo) Placeholder() bool {
	return !p.listed
}

// ByName groups processes sharing a name.
type ByName map[string][]*ProcessInfo

var linePattern = regexp.MustCompile(`^(?:(.*?)\s+)?(\d+)\s+(\d+)$`)

// ParseLine splits one data line into name, parent id and id.
func ParseLine(line string) (name string, ppid, pid int, err error) {
	trimmed := strings.TrimSpace(line)
	m := linePattern.FindStringSubmatch(trimmed)
	if m == nil {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	ppid, err = strconv.Atoi(m[2])
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: %q: %v", ErrMalformedLine, line, err)
	}
	pid, err = strconv.Atoi(m[3])
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: %q: %v", ErrMalformedLine, line, err)
	}
	return strings.TrimSpace(m[1]), ppid, pid, nil
}

// Builder links processes incrementally. Lines may reference parents that
// have not been seen yet; those parents start as placeholders and are
// completed in place when their own line arrives.
type Builder struct {
	nodes map[int]*ProcessInfo
	order []*ProcessInfo
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{nodes: make(map[int]*ProcessInfo)}
}

func (b *Builder) node(pid int) *ProcessInfo {
	if n, ok := b.nodes[pid]; ok {
		return n
	}
	n := &ProcessInfo{PID: pid}
	b.nodes[pid] = n
	b.order = append(b.order, n)
	return n
}

// Add records one process. A process that names itself as parent is kept
// rootless.
func (b *Builder) Add(name string, ppid, pid int) {
	n := b.node(pid)
	if n.listed {
		return
	}
	n.Name = name
	n.PPID = ppid
	n.listed = true

	if ppid == pid {
		return
	}
	parent := b.node(ppid)
	n.Parent = parent
	parent.Children = append(parent.Children, n)
}

// AddLine parses and records one data line. Blank lines are ignored.
func (b *Builder) AddLine(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	name, ppid, pid, err := ParseLine(line)
	if err != nil {
		return err
	}
	b.Add(name, ppid, pid)
	return nil
}

// Map returns every node keyed by id, placeholders included.
func (b *Builder) Map() map[int]*ProcessInfo {
	return b.nodes
}

// ByName groups every node by name in the order nodes were first seen.
// Placeholders that were never completed are grouped under "".
func (b *Builder) ByName() ByName {
	index := make(ByName)
	for _, n := range b.order {
		index[n.Name] = append(index[n.Name], n)
	}
	return index
}

// Parse reads a listing: a header line followed by one line per process.
func Parse(r io.Reader) (*Builder, error) {
	b := NewBuilder()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		if err := b.AddLine(scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read process listing: %w", err)
	}
	return b, nil
}

// Roots returns the processes without a linked parent, sorted by id.
func Roots(nodes map[int]*ProcessInfo) []*ProcessInfo {
	roots := make([]*ProcessInfo, 0)
	for _, n := range nodes {
		if n.Parent == nil {
			roots = append(roots, n)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].PID < roots[j].PID })
	return roots
}

// Walk visits the forest depth first, children in encounter order. Nodes
// reachable more than once are visited only the first time.
func Walk(roots []*ProcessInfo, visit func(p *ProcessInfo, depth int)) {
	seen := make(map[*ProcessInfo]bool)
	var walk func(p *ProcessInfo, depth int)
	walk = func(p *ProcessInfo, depth int) {
		if seen[p] {
			return
		}
		seen[p] = true
		visit(p, depth)
		for _, c := range p.Children {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
}
