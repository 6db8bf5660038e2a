// Package main runs line commands against a sheet server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	sheetctlcmd "github.com/louisbranch/charsheet/internal/cmd/sheetctl"
	entrypoint "github.com/louisbranch/charsheet/internal/platform/cmd"
	"github.com/louisbranch/charsheet/internal/platform/config"
)

func main() {
	cfg, err := sheetctlcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSheetCtl, func(ctx context.Context) error {
		return sheetctlcmd.Run(ctx, cfg, os.Stdin, os.Stdout, os.Stderr)
	})
	if err != nil {
		stop()
		config.Exitf("sheetctl: %v", err)
	}
}
