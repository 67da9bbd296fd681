package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vikashloomba/mcp-fleet-go/pkg/mcpmgr"
)

func main() {
	configPath := flag.String("config", "mcp.json", "path to an mcpServers JSON file")
	hold := flag.Bool("hold", false, "keep sessions open until interrupted")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	opts, err := mcpmgr.OptionsFromEnv()
	if err != nil {
		logger.Error("read environment", "error", err)
		os.Exit(1)
	}
	if opts.ClientName == "" {
		opts.ClientName = "fleet-example"
	}
	opts.Logger = logger
	registry := prometheus.NewRegistry()
	opts.Registerer = registry

	fleet, err := mcpmgr.NewFleet(opts)
	if err != nil {
		logger.Error("create fleet", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := fleet.LoadAndInitialize(ctx, *configPath)
	if err != nil {
		logger.Error("load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, err := range result.Release.Release() {
			logger.Warn("release", "error", err)
		}
	}()

	for _, out := range result.Outcomes {
		if out.Failure != nil {
			fmt.Printf("%-24s %-16s FAILED %s\n", out.Name, out.Transport, out.Failure.Kind)
			continue
		}
		server := "unknown"
		if info := out.Session.Info.ServerInfo; info != nil {
			server = info.Name + " " + info.Version
		}
		fmt.Printf("%-24s %-16s ok     %s\n", out.Name, out.Transport, server)
		for _, notice := range out.Notices {
			fmt.Printf("%-24s note: %s\n", "", notice)
		}
	}

	if families, err := registry.Gather(); err == nil {
		for _, mf := range families {
			logger.Debug("metric", "name", mf.GetName(), "series", len(mf.GetMetric()))
		}
	}

	if *hold {
		<-ctx.Done()
	}
}
