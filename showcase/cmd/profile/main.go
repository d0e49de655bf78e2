// Command profile runs the profile demo: two-way inputs, a local-state
// disclosure scope, a data-source avatar and a host-handled save action.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/engine"
	"github.com/go-loom/loom/pkg/render"
	"github.com/go-loom/loom/pkg/state"
	"github.com/go-loom/loom/showcase"
)

//go:embed profile.yaml
var profileYAML []byte

func main() {
	cfg, err := showcase.LoadConfig("profile")
	if err != nil {
		showcase.NewLogger(showcase.Config{}).Fatal().Err(err).Msg("config")
	}
	logger := showcase.NewLogger(cfg)

	doc, err := document.DecodeYAML(profileYAML)
	if err != nil {
		logger.Fatal().Err(err).Msg("decode document")
	}

	adapter := &showcase.ConsoleAdapter{Logger: logger}
	e := engine.New(
		engine.WithLogger(logger),
		engine.WithAdapter(adapter),
		engine.WithActionHandler("profile.save", func(_ context.Context, s *state.Store, _ *document.Action, params map[string]state.Value) error {
			name, _ := params["name"].AsString()
			email, _ := params["email"].AsString()
			logger.Info().Str("name", name).Str("email", email).Msg("profile saved")
			s.Set("user.savedAt", state.String("just now"))
			return nil
		}),
	)
	adapter.Engine = e

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

	ctx := context.Background()

	// Simulate a session: edit the name through the input's binding, expand
	// the details scope, then save.
	var nameBind, detailsBind string
	var saveTap document.ActionRef
	render.Walk(e.Render(), func(n *render.Node) bool {
		switch n.ID {
		case "name":
			nameBind = n.Content.(render.InputContent).BindPath
		case "details-toggle":
			detailsBind = n.Content.(render.ToggleContent).BindPath
		case "save":
			saveTap = n.Content.(render.ButtonContent).OnTap
		}
		return true
	})

	if err := e.WriteBack(nameBind, state.String("Ada L.")); err != nil {
		logger.Error().Err(err).Msg("write back")
	}
	if err := e.WriteBack(detailsBind, state.Bool(true)); err != nil {
		logger.Error().Err(err).Msg("write back")
	}
	if err := e.Dispatch(ctx, saveTap); err != nil {
		logger.Error().Err(err).Msg("dispatch save")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}
