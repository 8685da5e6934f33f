package cli

import (
	"fmt"

	"github.com/petermazzocco/go-image-host/internal/storage"
	"github.com/petermazzocco/go-image-host/internal/sweep"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSweepCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired images once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.Close()

			blobs, err := storage.NewR2Store(ctx, a.cfg.Storage, a.log.Named("storage"))
			if err != nil {
				return err
			}
			responses, closeCache, err := a.openCache(ctx)
			if err != nil {
				return err
			}
			defer closeCache()

			n, err := sweep.New(a.meta, blobs, responses, a.cfg.Sweep.Interval, a.log.Named("sweep")).RunOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired images\n", n)
			return err
		},
	}
}
