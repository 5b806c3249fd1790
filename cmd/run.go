package cmd

import (
	"github.com/encodeous/tollmesh/core"
	"github.com/encodeous/tollmesh/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the metering daemon",
	Long: `This will run tollmesh on the current host. It needs to reach the routing daemon's control
socket and enough permissions to create and flush the ipset counters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logPath, _ := cmd.Flags().GetString("log")
		return core.Bootstrap(state.SettingsPath, logPath, verbose)
	},
	GroupID: "tm",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringP("log", "l", "", "Also write logs to this file")
	runCmd.Flags().StringVar(&core.DebugAddr, "debug", "", "Serve metrics and expvars on this address")
}
