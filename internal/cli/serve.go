package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/revroom/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and presence server",
	Long: `Start an HTTP server hosting presence rooms and the diff engine.

Endpoints:
  GET  /health                  Health check
  POST /api/parse               Parse a patch into lines and projections
  POST /api/enrich              Merge files with ranking and clustering
  GET  /api/rooms               Active rooms and their member counts
  GET  /api/rooms/{room}/ws     Presence WebSocket for one room`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "address to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	log := cfg.Log.Logger(os.Stderr)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return api.New(cfg.Server, log).ListenAndServe(ctx)
}
