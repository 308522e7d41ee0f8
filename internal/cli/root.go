package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/example/langfocus/internal/app"
	"github.com/example/langfocus/internal/config"
	"github.com/example/langfocus/internal/logger"
	"github.com/spf13/cobra"
)

// Env loads configuration and wires the application for a command
type Env struct {
	LoadConfig func() (*config.Config, error)
}

// NewRootCmd creates the top-level "langfocus" command and registers all
// subcommands
func NewRootCmd(env *Env) *cobra.Command {
	if env == nil {
		env = &Env{}
	}
	if env.LoadConfig == nil {
		env.LoadConfig = config.Load
	}

	root := &cobra.Command{
		Use:           "langfocus",
		Short:         "Language technique trainer bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(env),
		newRemindersCmd(env),
		newCatalogCmd(env),
	)
	return root
}

// open loads the configuration and wires the app in the given mode
func (e *Env) open(ctx context.Context, mode app.Mode) (*app.App, error) {
	cfg, err := e.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a, err := app.New(ctx, cfg, log, mode)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

func closeApp(a *app.App) {
	a.Close()
	a.Log.Sync()
}

func nowUTC() time.Time { return time.Now().UTC() }
