package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/nimo-mis/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// Ctrl-C 取消进行中的导入，已开始的行会完成
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// cliEnv holds what every subcommand needs once PersistentPreRunE has run.
type cliEnv struct {
	cfg    *config.Config
	logger *zap.Logger
}

type envKey struct{}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:     "mis",
		Short:   "MIS cost-record ingestion",
		Long:    "Imports MIS cost spreadsheets into the record store, files attachments per NDC Code and\nreports the revision history of each record with the attachment written at that revision.",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			cfg, err := config.LoadFile(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			zapLogger, err := initLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, &cliEnv{cfg: cfg, logger: zapLogger}))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt := envFrom(cmd); rt != nil {
				_ = rt.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml or ./config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newImportCmd(),
		newHistoryCmd(),
		newKeysCmd(),
		newResetCmd(),
	)
	return root
}

func envFrom(cmd *cobra.Command) *cliEnv {
	if ctx := cmd.Context(); ctx != nil {
		if rt, ok := ctx.Value(envKey{}).(*cliEnv); ok {
			return rt
		}
	}
	return nil
}

// openApp builds the services for a subcommand.
func openApp(cmd *cobra.Command) (*app, error) {
	rt := envFrom(cmd)
	if rt == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return newApp(cmd.Context(), rt.cfg, rt.logger)
}
