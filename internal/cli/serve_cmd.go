package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/langfocus/internal/app"
	"github.com/spf13/cobra"
)

func newServeCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the reminder scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := env.open(ctx, app.ModeServe)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if err := a.Start(ctx); err != nil {
				return err
			}
			a.Log.Info("langfocus is running, press Ctrl+C to stop")

			<-ctx.Done()
			a.Log.Info("shutting down")
			a.Stop()
			return nil
		},
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
