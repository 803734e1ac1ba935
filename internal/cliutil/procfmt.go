package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"

	"github.com/Paintersrp/portexec/internal/proctree"
	"github.com/Paintersrp/portexec/internal/spawn"
)

// ProcessRecord is the flat, encodable view of a process.
type ProcessRecord struct {
	PID         int    `json:"pid"`
	PPID        int    `json:"ppid"`
	Name        string `json:"name"`
	Children    []int  `json:"children,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// NewProcessRecord flattens a node.
func NewProcessRecord(p *proctree.ProcessInfo) ProcessRecord {
	rec := ProcessRecord{PID: p.PID, PPID: p.PPID, Name: p.Name, Placeholder: p.Placeholder()}
	for _, c := range p.Children {
		rec.Children = append(rec.Children, c.PID)
	}
	return rec
}

// ProcessRecords flattens a forest ordered by id.
func ProcessRecords(nodes map[int]*proctree.ProcessInfo) []ProcessRecord {
	records := make([]ProcessRecord, 0, len(nodes))
	for _, n := range nodes {
		records = append(records, NewProcessRecord(n))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].PID < records[j].PID })
	return records
}

// WriteProcessTable renders records as aligned columns.
func WriteProcessTable(w io.Writer, records []ProcessRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tPPID\tCHILDREN\tNAME")
	for _, rec := range records {
		name := rec.Name
		if rec.Placeholder {
			name = "<unlisted>"
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", rec.PID, rec.PPID, len(rec.Children), name)
	}
	return tw.Flush()
}

// WriteNameTable renders a by-name index, names sorted and ids in
// encounter order. Unlisted parents share the "<unlisted>" row.
func WriteNameTable(w io.Writer, index proctree.ByName) error {
	names := make([]string, 0, len(index))
	for name := range index {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCOUNT\tPIDS")
	for _, name := range names {
		pids := make([]string, len(index[name]))
		for i, p := range index[name] {
			pids[i] = fmt.Sprint(p.PID)
		}
		label := name
		if label == "" {
			label = "<unlisted>"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", label, len(pids), strings.Join(pids, ","))
	}
	return tw.Flush()
}

// EncodeJSON writes v as indented JSON.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NameRecords converts a by-name index into encodable records.
func NameRecords(index proctree.ByName) map[string][]ProcessRecord {
	out := make(map[string][]ProcessRecord, len(index))
	for name, group := range index {
		records := make([]ProcessRecord, len(group))
		for i, p := range group {
			records[i] = NewProcessRecord(p)
		}
		out[name] = records
	}
	return out
}

// WriteTree renders the forest indented two spaces per level.
func WriteTree(w io.Writer, roots []*proctree.ProcessInfo) error {
	var err error
	proctree.Walk(roots, func(p *proctree.ProcessInfo, depth int) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), NodeLabel(p))
	})
	return err
}

// NodeLabel is the one-line description of a process used in trees.
func NodeLabel(p *proctree.ProcessInfo) string {
	if p.Placeholder() {
		return fmt.Sprintf("%d <unlisted>", p.PID)
	}
	return fmt.Sprintf("%d %s", p.PID, p.Name)
}

// ExitSummary describes a finished child for humans.
func ExitSummary(code int, signal string, termination spawn.Termination, d time.Duration) string {
	var b strings.Builder
	switch {
	case termination != spawn.TerminationNone:
		fmt.Fprintf(&b, "terminated (%s)", termination)
	case signal != "":
		fmt.Fprintf(&b, "terminated by signal %q", signal)
	default:
		fmt.Fprintf(&b, "exited with code %d", code)
	}
	if d > 0 {
		fmt.Fprintf(&b, " after %s", units.HumanDuration(d))
	}
	return b.String()
}
