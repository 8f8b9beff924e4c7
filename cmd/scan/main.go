package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"faceattend/internal/config"
	"faceattend/internal/logging"
)

var (
	cfg    config.App
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "faceattend-scan",
	Short: "Drive a face scan session from the terminal",
	Long: `faceattend-scan opens the local camera, runs one scan and reports the
outcome. It uses the same store, matcher and configuration as the kiosk API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if v, _ := cmd.Flags().GetString("device"); v != "" {
			cfg.Device = v
		}
		if v, _ := cmd.Flags().GetString("store"); v != "" {
			cfg.StoreBackend = v
		}
		var err error
		logger, err = logging.New(cfg)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().String("device", "", "capture device (synthetic|webcam), overrides DEVICE")
	rootCmd.PersistentFlags().String("store", "", "store backend (postgres|memory), overrides STORE_BACKEND")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
