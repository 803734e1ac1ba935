package tui

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/portexec/internal/proctree"
)

func sampleNodes(t *testing.T) map[int]*proctree.ProcessInfo {
	t.Helper()
	b, err := proctree.Parse(strings.NewReader("COMMAND PPID PID\ninit 0 1\nsshd 1 20\nbash 20 31\nworker 1 40\nworker 40 41\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return b.Map()
}

func newTestUI(t *testing.T) *UI {
	t.Helper()
	nodes := sampleNodes(t)
	return New(func(context.Context) (map[int]*proctree.ProcessInfo, error) {
		return nodes, nil
	}, WithRefreshInterval(0))
}

func labels(node *tview.TreeNode) []string {
	var out []string
	node.Walk(func(n, parent *tview.TreeNode) bool {
		if parent != nil {
			out = append(out, n.GetText())
		}
		return true
	})
	return out
}

func TestBuildTreeMirrorsForest(t *testing.T) {
	root := BuildTree(proctree.Roots(sampleNodes(t)), nil)
	got := strings.Join(labels(root), ",")
	want := "0 <unlisted>,1 init,20 sshd,31 bash,40 worker,41 worker"
	if got != want {
		t.Fatalf("tree labels = %q want %q", got, want)
	}
}

func TestBuildTreeFilterKeepsAncestors(t *testing.T) {
	root := BuildTree(proctree.Roots(sampleNodes(t)), regexp.MustCompile("^bash$"))
	got := strings.Join(labels(root), ",")
	want := "0 <unlisted>,1 init,20 sshd,31 bash"
	if got != want {
		t.Fatalf("filtered labels = %q want %q", got, want)
	}

	empty := BuildTree(proctree.Roots(sampleNodes(t)), regexp.MustCompile("nothing"))
	if len(empty.GetChildren()) != 0 {
		t.Fatalf("expected no nodes for a filter without matches")
	}
}

func TestRenderKeepsSelection(t *testing.T) {
	ui := newTestUI(t)
	nodes := sampleNodes(t)
	ui.render(nodes)

	if ui.selected != 0 {
		t.Fatalf("expected first process selected, got %d", ui.selected)
	}

	ui.tree.GetRoot().Walk(func(node, parent *tview.TreeNode) bool {
		if p, ok := node.GetReference().(*proctree.ProcessInfo); ok && p.PID == 31 {
			ui.tree.SetCurrentNode(node)
			ui.selectNode(node)
			return false
		}
		return true
	})
	ui.render(sampleNodes(t))

	current, ok := ui.tree.GetCurrentNode().GetReference().(*proctree.ProcessInfo)
	if !ok || current.PID != 31 {
		t.Fatalf("expected selection to survive a refresh")
	}
	if !strings.Contains(ui.details.GetText(true), "bash") {
		t.Fatalf("expected details for bash, got %q", ui.details.GetText(true))
	}
}

func TestHandleKeyOpensFilterPrompt(t *testing.T) {
	ui := newTestUI(t)
	ui.app.SetFocus(ui.tree)

	slash := tcell.NewEventKey(tcell.KeyRune, '/', tcell.ModNone)
	if res := ui.handleKey(slash); res != nil {
		t.Fatalf("expected filter shortcut to be consumed")
	}
	if _, ok := ui.app.GetFocus().(*tview.InputField); !ok {
		t.Fatalf("expected filter input to have focus, got %T", ui.app.GetFocus())
	}

	q := tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)
	if res := ui.handleKey(q); res != q {
		t.Fatalf("keys should reach the filter input while it is open")
	}
}

func TestApplyFilter(t *testing.T) {
	ui := newTestUI(t)
	ui.render(sampleNodes(t))

	ui.applyFilter("worker")
	got := labels(ui.tree.GetRoot())
	if len(got) != 4 {
		t.Fatalf("expected ancestors and two workers, got %v", got)
	}
	if !strings.Contains(ui.status.GetText(true), "2 shown") && !strings.Contains(ui.status.GetText(true), "4 shown") {
		t.Fatalf("unexpected status %q", ui.status.GetText(true))
	}

	ui.applyFilter("(")
	if !ui.pages.HasPage(filterPageName) {
		t.Fatalf("expected an error modal for an invalid expression")
	}
	if ui.filter != "worker" {
		t.Fatalf("invalid expression must not replace the filter, got %q", ui.filter)
	}
}

func TestDescribe(t *testing.T) {
	nodes := sampleNodes(t)
	text := Describe(nodes[20])
	for _, want := range []string{"20", "sshd", "1 init", "31 bash"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in %q", want, text)
		}
	}
	if !strings.Contains(Describe(nodes[0]), "unlisted") {
		t.Errorf("expected placeholder marker")
	}
}
