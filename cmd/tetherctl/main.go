// Command tetherctl operates Tether directly against its database: it
// registers devices and payloads, walks an operator through connection
// diagnostics and runs deployments without the HTTP server.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CaioWing/Tether/internal/app"
	"github.com/CaioWing/Tether/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "tetherctl",
	Short:         "Tether device deployment CLI",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TETHER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.String("db-driver", "", "database driver: sqlite or postgres")
	flags.String("sqlite-path", "", "sqlite database file")
	flags.String("storage-path", "", "payload script directory")
	flags.Bool("json", false, "output JSON")
	flags.BoolP("verbose", "v", false, "log progress to stderr")
	for _, name := range []string{"db-driver", "sqlite-path", "storage-path", "json", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(payloadsCmd())
	rootCmd.AddCommand(deploymentsCmd())
	rootCmd.AddCommand(deployCmd())
	rootCmd.AddCommand(diagnoseCmd())
	rootCmd.AddCommand(portsCmd())
	rootCmd.AddCommand(recoverCmd())
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads TETHER_* settings and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("db-driver"); v != "" {
		cfg.DB.Driver = v
	}
	if v := viper.GetString("sqlite-path"); v != "" {
		cfg.DB.SQLitePath = v
	}
	if v := viper.GetString("storage-path"); v != "" {
		cfg.Storage.Path = v
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, newLogger())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func stdout(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
