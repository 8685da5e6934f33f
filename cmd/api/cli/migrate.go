package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/petermazzocco/go-image-host/internal/db"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newMigrateCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the metadata schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(v, func(m *db.Migrator) error {
				if err := m.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(v, func(m *db.Migrator) error {
				if err := m.Rollback(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Rolled back latest migration")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(v, func(m *db.Migrator) error {
				status, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tSTATE\tDESCRIPTION")
				for _, s := range status {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Version, state, s.Description)
				}
				return tw.Flush()
			})
		},
	})

	return cmd
}

func withMigrator(v *viper.Viper, fn func(*db.Migrator) error) error {
	a, err := newApp(v)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(db.NewMigrator(a.db))
}
