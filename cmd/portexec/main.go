package main

import (
	"github.com/Paintersrp/portexec/internal/cli"
	"github.com/Paintersrp/portexec/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
