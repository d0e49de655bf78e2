// Command counter runs the counter demo: a document with a template label,
// increment/reset buttons and a snapshot-backed count.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "embed"

	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/engine"
	"github.com/go-loom/loom/pkg/render"
	"github.com/go-loom/loom/pkg/snapshot"
	"github.com/go-loom/loom/showcase"
)

//go:embed counter.yaml
var counterYAML []byte

func main() {
	cfg, err := showcase.LoadConfig("counter")
	if err != nil {
		showcase.NewLogger(showcase.Config{}).Fatal().Err(err).Msg("config")
	}
	logger := showcase.NewLogger(cfg)

	doc, err := document.DecodeYAML(counterYAML)
	if err != nil {
		logger.Fatal().Err(err).Msg("decode document")
	}

	adapter := &showcase.ConsoleAdapter{Logger: logger}
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithAdapter(adapter),
	}
	if cfg.Placeholder != "" {
		opts = append(opts, engine.WithPlaceholder(cfg.Placeholder))
	}

	var snaps snapshot.Store
	if cfg.SnapshotPath != "" {
		if cfg.SnapshotDriver == "sqlite" {
			snaps, err = snapshot.OpenSQLite(cfg.SnapshotPath)
		} else {
			snaps, err = snapshot.OpenBolt(cfg.SnapshotPath)
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("open snapshot store")
		}
		defer snaps.Close()
		opts = append(opts, engine.WithSnapshotStore(snaps))
	}

	e := engine.New(opts...)
	adapter.Engine = e

	ctx := context.Background()
	if snaps != nil {
		if err := e.RestoreSnapshot(ctx); err != nil {
			logger.Warn().Err(err).Msg("snapshot restore")
		}
	}
	if err := e.LoadDocument(doc); err != nil {
		logger.Fatal().Err(err).Msg("load document")
	}

	if cfg.DebugPort >= 0 {
		port, err := e.StartDebugServer(cfg.DebugPort)
		if err != nil {
			logger.Fatal().Err(err).Msg("debug server")
		}
		defer e.StopDebugServer()
		logger.Info().Int("port", port).Msg("debug server listening")
	}

	// Tap the increment button once a second until interrupted.
	var onTap document.ActionRef
	render.Walk(e.Render(), func(n *render.Node) bool {
		if button, ok := n.Content.(render.ButtonContent); ok && n.ID == "inc" {
			onTap = button.OnTap
		}
		return true
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.Dispatch(ctx, onTap); err != nil {
				logger.Error().Err(err).Msg("dispatch")
			}
		case <-stop:
			if snaps != nil {
				if version, err := e.SaveSnapshot(ctx); err != nil {
					logger.Error().Err(err).Msg("snapshot save")
				} else {
					logger.Info().Uint64("version", version).Msg("state saved")
				}
			}
			return
		}
	}
}
