package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"medical-record-store/internal/adapters/storage/sqlite"
	"medical-record-store/internal/domain/changelog"
	"medical-record-store/internal/domain/records"
	"medical-record-store/internal/domain/replicas"
	syncer "medical-record-store/internal/domain/sync"
	"medical-record-store/internal/platform/httpclient"
	"medical-record-store/internal/platform/logger"
)

func NewSyncCommand(root *RootOptions) *cobra.Command {
	var (
		server    string
		userID    string
		replicaID string
		pullOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the local replica against a remote peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			logr := logger.NewFromEnv()
			ctx := cmd.Context()

			store, err := sqlite.Open(root.DBPath)
			if err != nil {
				return fmt.Errorf("opening local db: %w", err)
			}
			defer store.Close()

			replicasSvc := replicas.NewService(sqlite.NewReplicasRepo(store))
			logSvc := changelog.NewService(sqlite.NewChangeLogRepo(store), replicasSvc)
			docStore := records.NewStore(replicasSvc, logSvc)

			summary, err := logSvc.ClockSummary(ctx)
			if err != nil {
				return fmt.Errorf("reading local clocks: %w", err)
			}
			ids := make([]string, 0, len(summary))
			for id := range summary {
				ids = append(ids, id)
			}
			if err := docStore.Warm(ctx, ids); err != nil {
				return fmt.Errorf("warming store: %w", err)
			}

			client, err := httpclient.NewWithBaseURL(server, 30*time.Second)
			if err != nil {
				return fmt.Errorf("peer url: %w", err)
			}
			peer := syncer.NewHTTPPeer(client, map[string]string{
				"X-Debug-User-ID": userID,
				"X-Replica-ID":    replicaID,
			})

			engine := syncer.NewEngine(logSvc, docStore, logr)

			stats, err := engine.Pull(ctx, peer)
			if err != nil {
				if errors.Is(err, syncer.ErrSyncStalled) {
					logr.Warn("sync stalled, will resume on next run", map[string]any{
						"applied":  stats.Applied,
						"buffered": stats.Buffered,
					})
				} else {
					return fmt.Errorf("pull: %w", err)
				}
			}
			logr.Info("pull done", map[string]any{
				"records":    stats.Records,
				"applied":    stats.Applied,
				"duplicates": stats.Duplicates,
				"rounds":     stats.Rounds,
			})

			if pullOnly {
				return nil
			}

			// Push: mandar al peer todo lo que tenemos por encima de su frontier.
			remote, err := peer.ClockSummary(ctx)
			if err != nil {
				return fmt.Errorf("remote clocks: %w", err)
			}
			local, err := logSvc.ClockSummary(ctx)
			if err != nil {
				return fmt.Errorf("local clocks: %w", err)
			}

			var outbound []records.ChangeEntry
			for recordID, clock := range local {
				since := remote[recordID]
				if since.Dominates(clock) {
					continue
				}
				delta, err := logSvc.EntriesSince(ctx, recordID, since)
				if err != nil {
					return fmt.Errorf("delta for %s: %w", recordID, err)
				}
				outbound = append(outbound, delta...)
			}

			if len(outbound) == 0 {
				logr.Info("push done", map[string]any{"sent": 0})
				return nil
			}

			resp, err := peer.Push(ctx, outbound)
			if err != nil {
				return fmt.Errorf("push: %w", err)
			}
			logr.Info("push done", map[string]any{
				"sent":       len(outbound),
				"applied":    resp.Applied,
				"duplicates": resp.Duplicates,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "peer base URL")
	cmd.Flags().StringVar(&userID, "user", "", "owner user id")
	cmd.Flags().StringVar(&replicaID, "replica", "", "local replica id")
	cmd.Flags().BoolVar(&pullOnly, "pull-only", false, "skip pushing local entries")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("replica")

	return cmd
}
