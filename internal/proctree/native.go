package proctree

import (
	"fmt"
	"time"

	ps "github.com/mitchellh/go-ps"

	"github.com/Paintersrp/portexec/internal/metrics"
)

const sourceNative = "native"

// ListNative builds the forest from the OS process table without spawning a
// listing tool.
func ListNative() (*Builder, error) {
	return listNative(ps.Processes)
}

func listNative(processes func() ([]ps.Process, error)) (*Builder, error) {
	started := time.Now()
	procs, err := processes()
	if err != nil {
		return nil, fmt.Errorf("%w: read process table: %w", ErrListingFailed, err)
	}
	b := NewBuilder()
	for _, p := range procs {
		b.Add(p.Executable(), p.PPid(), p.Pid())
	}
	metrics.ObserveListing(sourceNative, len(b.Map()), time.Since(started))
	return b, nil
}
