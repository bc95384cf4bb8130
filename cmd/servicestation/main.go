package main

import (
	"github.com/Paintersrp/servicestation/internal/cli"
	"github.com/Paintersrp/servicestation/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
