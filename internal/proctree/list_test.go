package proctree

import (
	"context"
	"errors"
	"os"
	stdruntime "runtime"
	"strings"
	"testing"
	"time"

	ps "github.com/mitchellh/go-ps"

	"github.com/Paintersrp/portexec/internal/resolve"
)

func fakeLister(t *testing.T, script string) *Lister {
	t.Helper()
	if stdruntime.GOOS == "windows" {
		t.Skip("uses a POSIX shell as the listing tool")
	}
	return &Lister{Command: &Command{Name: "sh", Args: []string{"-c", script}}}
}

const fakeListing = `printf 'Name  ParentProcessId  ProcessId\nroot  0  1\nworker  1  2\nworker  1  3\n'`

func TestListingCommand(t *testing.T) {
	win := ListingCommand(resolve.PlatformWindows)
	if win.String() != "wmic process get Name,ParentProcessId,ProcessId" {
		t.Fatalf("unexpected windows command %q", win)
	}
	posix := ListingCommand(resolve.PlatformPosix)
	if posix.String() != "ps -A -o comm,ppid,pid" {
		t.Fatalf("unexpected posix command %q", posix)
	}
}

func TestListByID(t *testing.T) {
	l := fakeLister(t, fakeListing)
	nodes, err := l.ListByID(context.Background())
	if err != nil {
		t.Fatalf("ListByID: %v", err)
	}
	if len(nodes[1].Children) != 2 || nodes[3].Parent != nodes[1] {
		t.Fatalf("unexpected forest: %+v", nodes[1])
	}
}

func TestListByName(t *testing.T) {
	l := fakeLister(t, fakeListing)
	index, err := l.ListByName(context.Background())
	if err != nil {
		t.Fatalf("ListByName: %v", err)
	}
	if got := index["worker"]; len(got) != 2 || got[0].PID != 2 || got[1].PID != 3 {
		t.Fatalf("unexpected worker group %v", got)
	}
	if got := index[""]; len(got) != 1 || got[0].PID != 0 {
		t.Fatalf("expected the unlisted parent under the empty name, got %v", got)
	}
}

func TestListToolFailure(t *testing.T) {
	l := fakeLister(t, "echo boom >&2; exit 5")
	_, err := l.ListByID(context.Background())
	if !errors.Is(err, ErrListingFailed) {
		t.Fatalf("expected ErrListingFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "sh exited with code 5") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected tool name, code and stderr in %q", err)
	}
}

func TestListToolMissing(t *testing.T) {
	l := &Lister{Command: &Command{Name: "portexec-missing-lister"}}
	_, err := l.ListByName(context.Background())
	if !errors.Is(err, ErrListingFailed) || !strings.Contains(err.Error(), "portexec-missing-lister") {
		t.Fatalf("expected a listing failure naming the tool, got %v", err)
	}
}

func TestListMalformedOutput(t *testing.T) {
	l := fakeLister(t, `printf 'header\nbroken\n'`)
	if _, err := l.ListByID(context.Background()); !errors.Is(err, ErrMalformedLine) {
		t.Fatalf("expected ErrMalformedLine, got %v", err)
	}
}

func receive(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without a result")
		}
		if _, more := <-ch; more {
			t.Fatalf("expected exactly one result")
		}
		return res
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for listing")
	}
	return Result{}
}

func TestStartListByID(t *testing.T) {
	l := fakeLister(t, fakeListing)
	res := receive(t, l.StartListByID(context.Background()))
	if res.Err != nil {
		t.Fatalf("StartListByID: %v", res.Err)
	}
	if res.Processes[2].Parent != res.Processes[1] {
		t.Fatalf("unexpected forest")
	}
}

func TestStartListByNameLargeOutput(t *testing.T) {
	// More output than a pipe buffer holds, so the reader must run while the
	// tool is still writing.
	l := fakeLister(t, `echo header; i=2; while [ $i -le 20000 ]; do echo "worker 1 $i"; i=$((i+1)); done`)
	res := receive(t, l.StartListByName(context.Background()))
	if res.Err != nil {
		t.Fatalf("StartListByName: %v", res.Err)
	}
	if got := len(res.Names["worker"]); got != 19999 {
		t.Fatalf("expected 19999 workers, got %d", got)
	}
}

func TestStartListFailure(t *testing.T) {
	l := fakeLister(t, "exit 2")
	res := receive(t, l.StartListByID(context.Background()))
	if !errors.Is(res.Err, ErrListingFailed) {
		t.Fatalf("expected ErrListingFailed, got %v", res.Err)
	}
}

type fakeProcess struct {
	pid, ppid int
	name      string
}

func (p fakeProcess) Pid() int           { return p.pid }
func (p fakeProcess) PPid() int          { return p.ppid }
func (p fakeProcess) Executable() string { return p.name }

func TestListNativeFromTable(t *testing.T) {
	table := func() ([]ps.Process, error) {
		return []ps.Process{
			fakeProcess{pid: 10, ppid: 1, name: "child"},
			fakeProcess{pid: 1, ppid: 0, name: "init"},
		}, nil
	}
	b, err := listNative(table)
	if err != nil {
		t.Fatalf("listNative: %v", err)
	}
	nodes := b.Map()
	if nodes[10].Parent != nodes[1] || nodes[1].Name != "init" {
		t.Fatalf("unexpected forest from process table")
	}

	_, err = listNative(func() ([]ps.Process, error) { return nil, errors.New("denied") })
	if !errors.Is(err, ErrListingFailed) {
		t.Fatalf("expected ErrListingFailed, got %v", err)
	}
}

func TestListNativeIncludesSelf(t *testing.T) {
	if stdruntime.GOOS != "linux" && stdruntime.GOOS != "darwin" && stdruntime.GOOS != "windows" {
		t.Skip("process table not supported")
	}
	b, err := ListNative()
	if err != nil {
		t.Fatalf("ListNative: %v", err)
	}
	if _, ok := b.Map()[os.Getpid()]; !ok {
		t.Fatalf("expected the current process in the table")
	}
}
