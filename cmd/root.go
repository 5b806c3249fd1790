package cmd

import (
	"os"

	"github.com/encodeous/tollmesh/state"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tollmesh",
	Short: "Mesh bandwidth metering and exit selection",
	Long: `tollmesh meters the traffic this node exchanges with its mesh neighbours, prices it
using the routing daemon's route table and keeps a running balance per neighbour.
It also picks the cheapest reachable exit to route internet traffic through.`,
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
		Title: "Set up a node",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "tm",
		Title: "Node commands",
	})
	rootCmd.PersistentFlags().StringVarP(&state.SettingsPath, "config", "c", state.SettingsPath, "node settings file")
}
