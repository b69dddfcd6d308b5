package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBPath string
}

// NewRootCommand crea el comando raíz del CLI de la réplica local.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "recordd",
		Short: "Local-first medical record replica",
		Long: "recordd maneja una réplica local del medical record store:\n" +
			"sirve la API, sincroniza con otras réplicas y materializa snapshots.",
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "records.db", "path de la base sqlite local")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewMaterializeCommand(opts))
	cmd.AddCommand(NewReplicasCommand(opts))

	return cmd
}
