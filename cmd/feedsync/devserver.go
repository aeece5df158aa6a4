package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedsync/internal/devapi"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var devServerAddr string

var devServerCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory articles API for local development",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := devapi.NewServer(logger.Named("devapi"))

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			logger.Info("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(ctx); err != nil {
				logger.Error("shutdown", zap.Error(err))
			}
		}()

		fmt.Println("Press Ctrl+C to stop.")
		if err := srv.Start(devServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info("Goodbye!")
		return nil
	},
}

func init() {
	devServerCmd.Flags().StringVar(&devServerAddr, "addr", ":3000", "Listen address")
}
