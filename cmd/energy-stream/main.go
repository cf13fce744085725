package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YaganovValera/energy-stream/internal/app"
	"github.com/YaganovValera/energy-stream/internal/config"
	"github.com/YaganovValera/energy-stream/internal/session"
	"github.com/YaganovValera/energy-stream/pkg/configloader"
	"github.com/YaganovValera/energy-stream/pkg/logger"
)

// flag → ключ конфига
var flagBindings = map[string]string{
	"local":           "local",
	"display.all":     "all",
	"display.verbose": "verbose",
	"display.pings":   "pings",
	"export.enabled":  "export",
	"display.scroll":  "scroll",
	"ws_url":          "url",
	"http.addr":       "http-addr",
	"logging.level":   "log-level",
	"logging.file":    "log-file",
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile     string
		printConfig bool
	)

	cmd := &cobra.Command{
		Use:   "energy-stream [api_key]",
		Short: "Live OilPriceAPI energy prices over WebSocket",
		Long: "Connects to the OilPriceAPI ActionCable endpoint, subscribes to EnergyPricesChannel\n" +
			"and shows live prices. The API key can also be set with OILPRICEAPI_API_KEY.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []configloader.Option{configloader.WithFlags(cmd.Flags(), flagBindings)}
			if len(args) == 1 {
				opts = append(opts, configloader.WithValue("api_key", args[0]))
			}

			// 1. Конфиг
			cfg, err := config.Load(cfgFile, opts...)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if printConfig {
				configloader.PrintConfig(cmd.ErrOrStderr(), cfg.Redacted())
			}

			// 2. Логгер (stderr или --log-file; дашборд на stdout)
			log, err := logger.New(logger.Config{
				Level:   cfg.Logging.Level,
				DevMode: cfg.Logging.DevMode,
				File:    cfg.Logging.File,
			})
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()

			// 3. Контекст с отменой по сигналам
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// 4. Основное приложение
			return app.Run(ctx, cfg, log, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgFile, "config", "", "path to config file (yaml)")
	f.BoolVar(&printConfig, "print-config", false, "print the effective config to stderr")
	f.BoolP("local", "l", false, "connect to "+config.LocalURL)
	f.BoolP("all", "a", false, "show drilling intelligence and well permits")
	f.BoolP("verbose", "v", false, "log ping intervals and full update bodies")
	f.BoolP("pings", "p", false, "log every ping")
	f.BoolP("export", "e", false, "export the activity log on exit")
	f.BoolP("scroll", "s", false, "print log lines instead of the dashboard")
	f.String("url", "", "override the WebSocket URL")
	f.String("http-addr", "", "serve /metrics, /snapshot, /healthz and /readyz on this address")
	f.String("log-level", logger.DefaultLevel, "debug | info | warn | error")
	f.String("log-file", "", "write the diagnostic log to this file instead of stderr")
	return cmd
}

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	if err == nil {
		return
	}
	if errors.Is(err, session.ErrReconnectBudgetExhausted) {
		fmt.Fprintln(os.Stderr, "giving up:", err)
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(1)
}
