package commands

import (
	"github.com/bl4ck0w1/forkhound/internal/api"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored results and scan submission over HTTP",
		Long: `Start the HTTP API:
  GET  /healthz            liveness and active scan count
  GET  /results            stored results (?protocol= or ?level=)
  GET  /results/{scanID}   one stored result
  POST /scans              {"targets":[{"protocol":{...},"source_path":"..."}]}
  GET  /metrics            prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (defaults to api.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}

	// the API always exposes /metrics, so runtime collectors are registered too
	cfg.Metrics.Enabled = true
	metrics := newMetrics(cfg)
	scanner := newScanner(cfg, metrics)

	apiCfg := api.Config{
		Addr:         cfg.API.Addr,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		apiCfg.Addr = addr
	}

	ctx, cancel := signalContext()
	defer cancel()

	server := api.NewServer(apiCfg, scanner, st.results, metrics, logrus.StandardLogger(), Version)
	return server.ListenAndServe(ctx)
}
