package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"medical-record-store/internal/adapters/storage/sqlite"
	"medical-record-store/internal/domain/changelog"
	"medical-record-store/internal/domain/records"
	"medical-record-store/internal/domain/replicas"
)

func NewMaterializeCommand(root *RootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "materialize <record-id>",
		Short: "Fold the local change log into a record snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			recordID := args[0]

			store, err := sqlite.Open(root.DBPath)
			if err != nil {
				return fmt.Errorf("opening local db: %w", err)
			}
			defer store.Close()

			replicasSvc := replicas.NewService(sqlite.NewReplicasRepo(store))
			logSvc := changelog.NewService(sqlite.NewChangeLogRepo(store), replicasSvc)
			docStore := records.NewStore(replicasSvc, logSvc)

			upTo, err := parseClock(at)
			if err != nil {
				return err
			}

			state, err := docStore.Materialize(ctx, recordID, upTo)
			if err != nil {
				return fmt.Errorf("materializing %s: %w", recordID, err)
			}

			out, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "clock pin, e.g. replicaA:3,replicaB:1 (default: latest)")
	return cmd
}

// parseClock parsea "replicaA:3,replicaB:1". Vacío => nil (último estado).
func parseClock(s string) (records.VectorClock, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	clock := records.NewClock()
	for _, part := range strings.Split(s, ",") {
		replica, seqStr, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || replica == "" {
			return nil, fmt.Errorf("invalid clock component %q", part)
		}
		seq, err := strconv.ParseUint(seqStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid clock component %q: %w", part, err)
		}
		clock[replica] = seq
	}
	return clock, nil
}
