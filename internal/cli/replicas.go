package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"medical-record-store/internal/adapters/storage/sqlite"
	"medical-record-store/internal/domain/replicas"
)

func NewReplicasCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replicas",
		Short: "Manage the local replica directory",
	}
	cmd.AddCommand(newReplicasRegisterCommand(root))
	cmd.AddCommand(newReplicasListCommand(root))
	return cmd
}

func newReplicasRegisterCommand(root *RootOptions) *cobra.Command {
	var (
		userID string
		name   string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a device replica for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.Open(root.DBPath)
			if err != nil {
				return fmt.Errorf("opening local db: %w", err)
			}
			defer store.Close()

			svc := replicas.NewService(sqlite.NewReplicasRepo(store))
			rep, err := svc.Register(cmd.Context(), userID, name)
			if err != nil {
				return fmt.Errorf("registering replica: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), rep.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner user id")
	cmd.Flags().StringVar(&name, "name", "", "device name, e.g. phone")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newReplicasListCommand(root *RootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the replicas registered for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.Open(root.DBPath)
			if err != nil {
				return fmt.Errorf("opening local db: %w", err)
			}
			defer store.Close()

			svc := replicas.NewService(sqlite.NewReplicasRepo(store))
			list, err := svc.ListByOwner(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("listing replicas: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tREGISTERED")
			for _, rep := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\n", rep.ID, rep.Name, rep.RegisteredAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
