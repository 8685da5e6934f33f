package cli

import (
	"fmt"

	"github.com/petermazzocco/go-image-host/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type VersionInfo struct {
	Version string
	Commit  string
}

func NewRootCommand(info VersionInfo) *cobra.Command {
	var path string
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "imagehost",
		Short:         "Image host with R2 storage and a relational metadata store",
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Init(v, path)
		},
	}

	cmd.PersistentFlags().StringVar(&path, "config", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.Version = fmt.Sprintf("%s.%s", info.Version, info.Commit)

	cmd.AddCommand(newServeCommand(v))
	cmd.AddCommand(newMigrateCommand(v))
	cmd.AddCommand(newSweepCommand(v))
	cmd.AddCommand(newConfigCommand())

	return cmd
}
