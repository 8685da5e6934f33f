package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/petermazzocco/go-image-host/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management utilities",
	}

	cmd.AddCommand(newConfigGenerateCommand())

	return cmd
}

func newConfigGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a config file with every default filled in",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputDir, _ := cmd.Flags().GetString("output")
			overwrite, _ := cmd.Flags().GetBool("overwrite")
			out := cmd.OutOrStdout()

			if err := os.MkdirAll(outputDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			filename := filepath.Join(outputDir, "config.yaml")
			if _, err := os.Stat(filename); err == nil && !overwrite {
				fmt.Fprintf(out, "Skipping %s (file exists, use --overwrite to replace)\n", filename)
				return nil
			}

			data, err := yaml.Marshal(config.Default())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			if err := os.WriteFile(filename, data, 0644); err != nil {
				return fmt.Errorf("failed to write config file %s: %w", filename, err)
			}

			fmt.Fprintf(out, "Generated %s\n", filename)
			return nil
		},
	}

	cmd.Flags().String("output", ".", "output directory for configuration files")
	cmd.Flags().Bool("overwrite", false, "overwrite existing files")

	return cmd
}
