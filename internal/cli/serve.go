package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"medical-record-store/internal/platform/logger"
	"medical-record-store/internal/router"
)

func NewServeCommand(root *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the record API backed by the local sqlite replica",
		RunE: func(cmd *cobra.Command, args []string) error {
			logr := logger.NewFromEnv()

			r := router.NewRouter(router.Options{
				SQLitePath: root.DBPath,
				Logger:     logr,
			})

			srv := &http.Server{
				Addr:         addr,
				Handler:      r,
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 10 * time.Second,
			}

			logr.Info("starting server", map[string]any{"addr": addr, "db": root.DBPath})
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
