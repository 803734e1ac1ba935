package proctree

import (
	"errors"
	"strings"
	"testing"
)

func TestParseLinksParentsAndPlaceholders(t *testing.T) {
	listing := strings.Join([]string{
		"Name  ParentProcessId  ProcessId",
		"root  0  1",
		"child  1  2",
	}, "\n")

	b, err := Parse(strings.NewReader(listing))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	nodes := b.Map()
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}

	root, child, zero := nodes[1], nodes[2], nodes[0]
	if child.Parent != root {
		t.Fatalf("expected node 1 to be the parent of node 2")
	}
	if len(root.Children) != 1 || root.Children[0] != child {
		t.Fatalf("expected node 1 to own node 2, got %v", root.Children)
	}
	if zero == nil || zero.Name != "" || zero.Parent != nil || !zero.Placeholder() {
		t.Fatalf("expected node 0 to be an unnamed placeholder root, got %+v", zero)
	}
	if root.Parent != zero {
		t.Fatalf("expected node 0 to parent node 1")
	}

	index := b.ByName()
	total := 0
	for _, group := range index {
		total += len(group)
	}
	if total != len(nodes) {
		t.Fatalf("expected every node in the name index, got %d of %d", total, len(nodes))
	}
	if unnamed := index[""]; len(unnamed) != 1 || unnamed[0] != zero {
		t.Fatalf("expected node 0 under the empty name, got %v", unnamed)
	}
	if len(index["root"]) != 1 || len(index["child"]) != 1 {
		t.Fatalf("unexpected name index %v", index)
	}

	roots := Roots(nodes)
	if len(roots) != 1 || roots[0] != zero {
		t.Fatalf("expected a single root, got %v", roots)
	}
}

func TestParseCompletesPlaceholderInPlace(t *testing.T) {
	b, err := Parse(strings.NewReader("COMMAND PPID PID\nchild 7 8\nparent 1 7\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	nodes := b.Map()
	parent := nodes[7]
	if parent.Name != "parent" || parent.Placeholder() {
		t.Fatalf("expected placeholder to be completed, got %+v", parent)
	}
	if nodes[8].Parent != parent || len(parent.Children) != 1 {
		t.Fatalf("expected the completed node to keep its children")
	}
	if parent.Parent != nodes[1] {
		t.Fatalf("expected the completed node to gain a parent")
	}
}

func TestParseSelfParented(t *testing.T) {
	b, err := Parse(strings.NewReader("Name ParentProcessId ProcessId\nSystem Idle Process  0  0\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	idle := b.Map()[0]
	if idle.Name != "System Idle Process" {
		t.Fatalf("expected name with spaces, got %q", idle.Name)
	}
	if idle.Parent != nil || len(idle.Children) != 0 {
		t.Fatalf("self-parented process must not link to itself: %+v", idle)
	}
	if idle.PPID != 0 {
		t.Fatalf("expected reported ppid to be kept, got %d", idle.PPID)
	}
}

func TestByNameGroupsInEncounterOrder(t *testing.T) {
	b, err := Parse(strings.NewReader("COMMAND PPID PID\nworker 1 30\ninit 0 1\nworker 1 12\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	index := b.ByName()
	workers := index["worker"]
	if len(workers) != 2 || workers[0].PID != 30 || workers[1].PID != 12 {
		t.Fatalf("unexpected worker group: %v", workers)
	}
	if unnamed := index[""]; len(unnamed) != 1 || unnamed[0].PID != 0 {
		t.Fatalf("expected the placeholder for pid 0 under the empty name, got %v", unnamed)
	}
	if len(index["init"]) != 1 {
		t.Fatalf("expected init to be indexed")
	}
}

func TestParseMalformedLine(t *testing.T) {
	cases := []string{
		"COMMAND PPID PID\nbash 1\n",
		"COMMAND PPID PID\nbash\n",
		"COMMAND PPID PID\ninit 0 1\nbash 1 two\n",
	}
	for _, listing := range cases {
		if _, err := Parse(strings.NewReader(listing)); !errors.Is(err, ErrMalformedLine) {
			t.Errorf("Parse(%q) error = %v, want ErrMalformedLine", listing, err)
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line      string
		name      string
		ppid, pid int
	}{
		{line: "  sshd   1  842  ", name: "sshd", ppid: 1, pid: 842},
		{line: "kworker/0:1 2 17", name: "kworker/0:1", ppid: 2, pid: 17},
		{line: "python3 3 12 40", name: "python3 3", ppid: 12, pid: 40},
		{line: "0 5", name: "", ppid: 0, pid: 5},
	}
	for _, tt := range tests {
		name, ppid, pid, err := ParseLine(tt.line)
		if err != nil {
			t.Fatalf("ParseLine(%q): %v", tt.line, err)
		}
		if name != tt.name || ppid != tt.ppid || pid != tt.pid {
			t.Errorf("ParseLine(%q) = %q %d %d", tt.line, name, ppid, pid)
		}
	}
}

func TestBlankLinesIgnored(t *testing.T) {
	b, err := Parse(strings.NewReader("COMMAND PPID PID\n\ninit 0 1\n   \n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(b.ByName()["init"]) != 1 {
		t.Fatalf("expected init to be parsed")
	}
}

func TestWalkDepthFirst(t *testing.T) {
	b, err := Parse(strings.NewReader("h\na 0 1\nb 1 2\nc 2 3\nd 1 4\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var got []string
	Walk(Roots(b.Map()), func(p *ProcessInfo, depth int) {
		got = append(got, strings.Repeat(".", depth)+p.Name)
	})
	want := []string{"", ".a", "..b", "...c", "..d"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("walk order = %v, want %v", got, want)
	}
}
