package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"product-enhancer/cmd"
	"product-enhancer/internal/config"
	"product-enhancer/internal/taskclient"

	"github.com/spf13/cobra"
)

type app struct {
	cfg    config.ClientConfig
	client *taskclient.Client
}

var (
	envFile     string
	executorURL string
	verbose     bool

	cli = &app{}
)

var rootCmd = &cobra.Command{
	Use:           "enhancer",
	Short:         "Extract structured product attributes from spreadsheets with a language model",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		if _, err := cmd.InitLogging("", level); err != nil {
			return err
		}

		if err := cmd.LoadEnv(envFile); err != nil {
			return err
		}

		cfg, err := config.Load[config.ClientConfig]()
		if err != nil {
			return err
		}
		if executorURL != "" {
			cfg.ExecutorURL = executorURL
		}

		cli.cfg = cfg
		cli.client = taskclient.New(cfg.ExecutorURL)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to load env from")
	rootCmd.PersistentFlags().StringVar(&executorURL, "api", "", "executor base url (default $ENHANCER_API_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}
