package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetcore/app"
	"github.com/kilianp07/fleetcore/config"
	"github.com/kilianp07/fleetcore/infra/logger"
)

var (
	cfgPath  string
	envPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:               "fleetcore",
	Short:             "Fleet dispatch control plane",
	PersistentPreRunE: loadEnv,
	RunE:              serve,
	SilenceUsage:      true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane until interrupted",
	RunE:  serve,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-file", ".env", "dotenv file loaded before the configuration")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "override logging.level")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadEnv makes K_ overrides from the dotenv file visible to config.Load.
// A missing file is not an error.
func loadEnv(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(envPath); err != nil {
		if os.IsNotExist(err) {
			logger.New("cli").Debugf("no %s file, using the environment", envPath)
			return nil
		}
		return fmt.Errorf("load %s: %w", envPath, err)
	}
	return nil
}

// interruptContext is cancelled on SIGINT or SIGTERM.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	svc, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("start control plane: %w", err)
	}
	log := logger.New("cli")
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	ctx, stop := interruptContext()
	defer stop()
	log.Infof("serving with config %s (solver %s, log backend %s)", cfgPath, cfg.Dispatch.Solver, cfg.Logging.Backend)
	return svc.Run(ctx)
}
