package cmd

import (
	"os"

	"github.com/encodeous/overmesh/state"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "overmesh",
	Short: "Overmesh overlay routing node",
	Long: `Overmesh is a self-organizing overlay mesh.
Each node broadcasts self-announcements on its interfaces, learns which nodes it hears well, and routes through them.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Initialize Overmesh",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "om",
		Title: "Overmesh Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&state.NodeConfigPath, "node-config", "n", state.NodeConfigPath, "node-specific config")
}
