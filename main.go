package main

import (
	"github.com/chronostore/chronostore/cmd"
	"github.com/chronostore/chronostore/pkg/cslog"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

func main() {
	undo, err := maxprocs.Set()
	defer undo()
	if err != nil {
		cslog.Warn("maxprocs set error", zap.Error(err))
	}

	cmd.Execute()
}
