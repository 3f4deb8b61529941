/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/profilehub/apiserver/config"
	"github.com/profilehub/apiserver/internal/mq"
	"github.com/profilehub/apiserver/internal/storage"
	"github.com/profilehub/apiserver/internal/transcode"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Starts the profile-image transcode worker",
	Long: `Starts the worker that consumes transcode jobs from the queue and
re-encodes uploaded profile images. Usage:

	profilehub worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		ctx := cmd.Context()

		queueBackend, err := mq.NewBackend(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if queueBackend == nil {
			return errors.New("worker requires MQ_BACKEND to be set")
		}
		defer queueBackend.Close()

		storageBackend, err := storage.NewBackend(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		objectStore := storage.NewStorage(storageBackend, cfg.Storage.PublicBaseURL)

		worker := transcode.NewWorker(objectStore, mq.New(queueBackend), cfg.MQ.Channel, slog.Default())
		if err := worker.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "worker stopped: %v\n", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
