package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Agrid-Dev/tadox/cmd/app"
	"github.com/Agrid-Dev/tadox/internal/api"
	"github.com/Agrid-Dev/tadox/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "tadox",
	Short:         "Poll a Tado X home and expose it over HTTP, MQTT and Modbus",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file (.yaml/.yml/.json)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(homesCmd)
	rootCmd.AddCommand(runCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "tadox:", err)
		os.Exit(1)
	}
}

// env is what every subcommand needs: config, logger, state file and an API
// client primed with the persisted token and request budget.
type env struct {
	cfg    app.Config
	log    *slog.Logger
	store  *store.Store
	client *api.Client
}

func setup() (*env, error) {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log, err := app.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	st, err := store.Open(cfg.StateFile)
	if err != nil {
		return nil, err
	}
	log.Debug("state file loaded", slog.String("path", st.Path()))

	cc := cfg.ClientConfig(log)
	cc.OnTokenRefresh = func(t api.Token) {
		err := st.Update(func(s *store.State) {
			s.AccessToken = t.AccessToken
			s.RefreshToken = t.RefreshToken
			s.TokenExpiry = t.Expiry
		})
		if err != nil {
			log.Error("persist token", slog.Any("error", err))
		}
	}
	client := api.New(cc)

	saved := st.State()
	if saved.RefreshToken != "" || saved.AccessToken != "" {
		client.SetToken(api.Token{
			AccessToken:  saved.AccessToken,
			RefreshToken: saved.RefreshToken,
			Expiry:       saved.TokenExpiry,
		})
	}
	client.RestoreStats(saved.APICallsToday, saved.APIResetTime, saved.HasAutoAssist)

	return &env{cfg: cfg, log: log, store: st, client: client}, nil
}
