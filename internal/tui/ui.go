// Package tui renders the process forest in an interactive terminal view.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/portexec/internal/cliutil"
	"github.com/Paintersrp/portexec/internal/proctree"
)

const (
	treeTitle              = "Processes"
	detailsTitle           = "Details"
	filterPageName         = "filter"
	defaultRefreshInterval = 2 * time.Second
)

// Source produces a fresh process map.
type Source func(ctx context.Context) (map[int]*proctree.ProcessInfo, error)

// Option configures UI behaviour.
type Option func(*UI)

// WithRefreshInterval sets how often the forest is reloaded. Zero or a
// negative value disables automatic refresh.
func WithRefreshInterval(d time.Duration) Option {
	return func(u *UI) {
		u.interval = d
	}
}

// UI is the interactive process-forest viewer backed by tview.
type UI struct {
	app     *tview.Application
	pages   *tview.Pages
	tree    *tview.TreeView
	details *tview.TextView
	status  *tview.TextView

	source   Source
	interval time.Duration

	mu         sync.RWMutex
	nodes      map[int]*proctree.ProcessInfo
	filter     string
	filterExpr *regexp.Regexp
	selected   int

	refreshMu sync.Mutex
	ctx       context.Context

	stopOnce sync.Once
	done     chan struct{}
}

// New builds the viewer. Nothing is loaded until Run.
func New(source Source, opts ...Option) *UI {
	app := tview.NewApplication()

	tree := tview.NewTreeView()
	tree.SetBorder(true).SetTitle(treeTitle)

	details := tview.NewTextView().SetDynamicColors(true)
	details.SetBorder(true).SetTitle(detailsTitle)

	status := tview.NewTextView().SetDynamicColors(true)

	body := tview.NewFlex().
		AddItem(tree, 0, 3, true).
		AddItem(details, 0, 1, false)
	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(status, 1, 0, false)

	pages := tview.NewPages().AddPage("main", layout, true, true)

	ui := &UI{
		app:      app,
		pages:    pages,
		tree:     tree,
		details:  details,
		status:   status,
		source:   source,
		interval: defaultRefreshInterval,
		selected: -1,
		ctx:      context.Background(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ui)
	}

	tree.SetChangedFunc(func(node *tview.TreeNode) {
		ui.selectNode(node)
	})
	tree.SetSelectedFunc(func(node *tview.TreeNode) {
		node.SetExpanded(!node.IsExpanded())
	})

	app.SetRoot(pages, true)
	app.SetInputCapture(ui.handleKey)
	ui.setStatus("loading...")
	return ui
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Run loads the forest and runs the application until Stop is invoked, the
// user quits or ctx is cancelled.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	u.refreshMu.Lock()
	u.ctx = ctx
	u.refreshMu.Unlock()

	go func() {
		if err := u.reload(ctx); err != nil {
			u.app.QueueUpdateDraw(func() { u.setStatus(fmt.Sprintf("[red]%v", err)) })
		}
		if u.interval <= 0 {
			return
		}
		ticker := time.NewTicker(u.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := u.reload(ctx); err != nil {
					u.app.QueueUpdateDraw(func() { u.setStatus(fmt.Sprintf("[red]%v", err)) })
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		u.Stop()
	}()

	err := u.app.Run()
	u.Stop()
	return err
}

// Stop terminates the application loop.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) reload(ctx context.Context) error {
	nodes, err := u.source(ctx)
	if err != nil {
		return err
	}
	u.app.QueueUpdateDraw(func() { u.render(nodes) })
	return nil
}

func (u *UI) manualReload() {
	u.refreshMu.Lock()
	ctx := u.ctx
	u.refreshMu.Unlock()
	go func() {
		if err := u.reload(ctx); err != nil {
			u.app.QueueUpdateDraw(func() { u.setStatus(fmt.Sprintf("[red]%v", err)) })
		}
	}()
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if u.pages.HasPage(filterPageName) {
		return event
	}
	switch event.Key() {
	case tcell.KeyEscape:
		u.applyFilter("")
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			go u.Stop()
			return nil
		case 'r', 'R':
			u.manualReload()
			return nil
		case '/':
			u.showFilterPrompt()
			return nil
		case 'c':
			u.setExpanded(false)
			return nil
		case 'e':
			u.setExpanded(true)
			return nil
		}
	}
	return event
}

// render replaces the tree with nodes, keeping the selected process when it
// is still present.
func (u *UI) render(nodes map[int]*proctree.ProcessInfo) {
	u.mu.Lock()
	u.nodes = nodes
	expr := u.filterExpr
	selected := u.selected
	u.mu.Unlock()

	root := BuildTree(proctree.Roots(nodes), expr)
	u.tree.SetRoot(root)

	current := root
	if selected >= 0 {
		root.Walk(func(node, parent *tview.TreeNode) bool {
			if p, ok := node.GetReference().(*proctree.ProcessInfo); ok && p.PID == selected {
				current = node
				return false
			}
			return true
		})
	}
	if current == root && len(root.GetChildren()) > 0 {
		current = root.GetChildren()[0]
	}
	u.tree.SetCurrentNode(current)
	u.selectNode(current)

	shown := 0
	root.Walk(func(node, parent *tview.TreeNode) bool {
		if node != root {
			shown++
		}
		return true
	})
	u.setStatus(u.statusLine(len(nodes), shown))
}

func (u *UI) statusLine(total, shown int) string {
	u.mu.RLock()
	filter := u.filter
	u.mu.RUnlock()
	line := fmt.Sprintf(" %d processes", total)
	if filter != "" {
		line += fmt.Sprintf(", %d shown for /%s/", shown, filter)
	}
	return line + "  [gray](q quit, r refresh, / filter, e/c expand/collapse)"
}

func (u *UI) setStatus(text string) {
	u.status.SetText(text)
}

func (u *UI) selectNode(node *tview.TreeNode) {
	if node == nil {
		return
	}
	p, ok := node.GetReference().(*proctree.ProcessInfo)
	if !ok {
		u.details.SetText("")
		return
	}
	u.mu.Lock()
	u.selected = p.PID
	u.mu.Unlock()
	u.details.SetText(Describe(p))
}

func (u *UI) setExpanded(expanded bool) {
	root := u.tree.GetRoot()
	if root == nil {
		return
	}
	root.Walk(func(node, parent *tview.TreeNode) bool {
		if node != root {
			node.SetExpanded(expanded)
		}
		return true
	})
}

func (u *UI) showFilterPrompt() {
	u.mu.RLock()
	current := u.filter
	u.mu.RUnlock()

	input := tview.NewInputField().
		SetLabel("Name regex: ").
		SetText(current).
		SetFieldWidth(40)

	form := tview.NewForm().
		AddFormItem(input).
		AddButton("Apply", func() {
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.tree)
			u.applyFilter(input.GetText())
		}).
		AddButton("Cancel", func() {
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.tree)
		})
	form.SetBorder(true).SetTitle("Filter Processes")

	grid := tview.NewGrid().
		SetColumns(0, 60, 0).
		SetRows(0, 7, 0).
		AddItem(form, 1, 1, 1, 1, 0, 0, true)

	u.pages.AddPage(filterPageName, grid, true, true)
	u.app.SetFocus(input)
}

func (u *UI) applyFilter(expr string) {
	expr = strings.TrimSpace(expr)
	var re *regexp.Regexp
	if expr != "" {
		var err error
		re, err = regexp.Compile(expr)
		if err != nil {
			u.showErrorModal(fmt.Sprintf("Invalid filter: %v", err))
			return
		}
	}

	u.mu.Lock()
	u.filter = expr
	u.filterExpr = re
	nodes := u.nodes
	u.mu.Unlock()
	if nodes != nil {
		u.render(nodes)
	}
}

func (u *UI) showErrorModal(message string) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.tree)
		})
	u.pages.RemovePage(filterPageName)
	u.pages.AddPage(filterPageName, modal, true, true)
}

// BuildTree converts the forest into tview nodes under a synthetic root.
// With a filter only matching processes and their ancestors are kept.
func BuildTree(roots []*proctree.ProcessInfo, filter *regexp.Regexp) *tview.TreeNode {
	root := tview.NewTreeNode("processes").SetSelectable(false)
	seen := make(map[*proctree.ProcessInfo]bool)
	for _, r := range roots {
		if node := buildNode(r, filter, seen); node != nil {
			root.AddChild(node)
		}
	}
	return root
}

func buildNode(p *proctree.ProcessInfo, filter *regexp.Regexp, seen map[*proctree.ProcessInfo]bool) *tview.TreeNode {
	if seen[p] {
		return nil
	}
	seen[p] = true

	node := tview.NewTreeNode(tview.Escape(cliutil.NodeLabel(p))).
		SetReference(p).
		SetSelectable(true)
	if p.Placeholder() {
		node.SetColor(tcell.ColorGray)
	}
	for _, c := range p.Children {
		if child := buildNode(c, filter, seen); child != nil {
			node.AddChild(child)
		}
	}
	if filter != nil && !filter.MatchString(p.Name) && len(node.GetChildren()) == 0 {
		return nil
	}
	if filter != nil && filter.MatchString(p.Name) {
		node.SetColor(tcell.ColorYellow)
	}
	return node
}

// Describe renders the details pane for a process.
func Describe(p *proctree.ProcessInfo) string {
	var b strings.Builder
	name := tview.Escape(p.Name)
	if p.Placeholder() {
		name = "[gray]<unlisted>[-]"
	}
	fmt.Fprintf(&b, "[::b]PID[::-]      %d\n", p.PID)
	fmt.Fprintf(&b, "[::b]Name[::-]     %s\n", name)
	if p.Parent != nil {
		fmt.Fprintf(&b, "[::b]Parent[::-]   %s\n", cliutil.NodeLabel(p.Parent))
	} else if !p.Placeholder() {
		fmt.Fprintf(&b, "[::b]Parent[::-]   none (reported %d)\n", p.PPID)
	}
	fmt.Fprintf(&b, "[::b]Children[::-] %d\n", len(p.Children))
	for _, c := range p.Children {
		fmt.Fprintf(&b, "  %s\n", tview.Escape(cliutil.NodeLabel(c)))
	}
	return b.String()
}
