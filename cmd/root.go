package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfgFile string
var logLevel string

// AppContext carries process-wide dependencies to subcommands.
type AppContext struct {
	Logger *zap.Logger
	Config *CLIConfig
}

type appContextKey struct{}

var globalAppContext *AppContext

var rootCmd = &cobra.Command{
	Use:           "secora",
	Short:         "Security scanner for web origins: TLS, headers, mixed content and SQL injection",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}

		logger, err := newLogger(logLevel)
		if err != nil {
			return &ExitError{Code: ExitUsage, Err: err}
		}

		applyConfigDefaults(cmd)

		storeAppContext(cmd, &AppContext{Logger: logger, Config: cliConfig})
		logger.Debug("configuration loaded", zap.String("config_file", viper.ConfigFileUsed()))
		return nil
	},
}

// initConfig loads the optional config file and SECORA_* environment variables.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".secora")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("SECORA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing default file is fine; an explicit or broken one is not.
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound && cfgFile == "" {
			return nil
		}
		return &ExitError{Code: ExitUsage, Err: fmt.Errorf("failed to read config: %w", err)}
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, appContextKey{}, appCtx))
}

func getAppContext(cmd *cobra.Command) *AppContext {
	if cmd != nil && cmd.Context() != nil {
		if appCtx, ok := cmd.Context().Value(appContextKey{}).(*AppContext); ok {
			return appCtx
		}
	}
	if globalAppContext != nil {
		return globalAppContext
	}
	return &AppContext{Logger: zap.NewNop(), Config: cliConfig}
}

func Execute() {
	err := rootCmd.Execute()
	if app := globalAppContext; app != nil && app.Logger != nil {
		_ = app.Logger.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", colorError("Error:"), err)
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.secora.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
