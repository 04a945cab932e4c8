// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/internal/config"
	"github.com/xkilldash9x/scalpel-dispatch/internal/observability"
)

// envPrefix namespaces environment overrides, e.g. DISPATCH_SERVER_ADDR.
const envPrefix = "DISPATCH"

// app carries state shared by the command tree for one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config

	// serve runs the server; tests replace it.
	serve func(ctx context.Context, cfg *config.Config) error
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: viper.New(), serve: runServer}

	rootCmd := &cobra.Command{
		Use:          "scalpel-dispatch",
		Short:        "Scalpel Dispatch drives remote browsers with natural-language commands.",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(a.v, a.cfgFile); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(a.v)
			if err != nil {
				// A fallback logger so the failure itself is reported.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "scalpel-dispatch"})
				return err
			}
			a.cfg = cfg

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Configuration loaded.",
				zap.String("version", Version),
				zap.String("config_file", a.v.ConfigFileUsed()),
			)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.scalpel-dispatch/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd, a
}

// Execute runs the root command with ctx, which main cancels on SIGINT/SIGTERM.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
		}
		return err
	}
	return nil
}

// initializeConfig points v at the config file and environment. A missing
// default config file is fine; an explicit one that cannot be read is not.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	config.SetDefaults(v)

	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path %q: %w", cfgFile, err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".scalpel-dispatch"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}
	return nil
}

// fprintln writes to w, ignoring the error like fmt.Println does.
func fprintln(cmd *cobra.Command, a ...interface{}) {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), a...)
}
