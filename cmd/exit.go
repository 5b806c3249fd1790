package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/encodeous/tollmesh/babel"
	"github.com/encodeous/tollmesh/core"
	"github.com/encodeous/tollmesh/exit"
	"github.com/encodeous/tollmesh/state"
	"github.com/spf13/cobra"
)

var exitCmd = &cobra.Command{
	Use:   "exit",
	Short: "Prices every configured exit and shows which one would be selected",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadSettings()
		if err != nil {
			fail(err)
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		log := cliLogger(cfg, verbose)

		ctx, cancel := tickContext(cfg)
		defer cancel()

		source, _ := core.Components(cfg, log)
		if len(cfg.Exits) == 0 {
			fmt.Println("no exits configured")
			return
		}
		snap, err := babel.FetchSnapshot(ctx, cfg.Network.BabelAddr)
		if err != nil {
			fail(err)
		}

		t := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(t, "EXIT\tPRICE\tCURRENT")
		for _, o := range exit.PriceExits(cfg.Exits, snap) {
			price := "unreachable"
			if o.Reachable() {
				price = o.Price.String()
			}
			current := cfg.CurrentExit != nil && cfg.CurrentExit.Key() == o.Candidate.Key()
			fmt.Fprintf(t, "%s\t%s\t%t\n", o.Candidate, price, current)
		}
		_ = t.Flush()

		save, _ := cmd.Flags().GetBool("save")
		if !save {
			return
		}
		handle := state.NewSettingsHandle(cfg)
		chosen, installed, err := exit.NewManager(handle, source, log).Select(ctx)
		if err != nil {
			fail(err)
		}
		if !installed {
			fmt.Printf("keeping current exit %s\n", chosen)
			return
		}
		if err := handle.Get().Write(state.SettingsPath); err != nil {
			fail(err)
		}
		fmt.Printf("selected %s\n", chosen)
	},
	GroupID: "tm",
}

func init() {
	rootCmd.AddCommand(exitCmd)

	exitCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	exitCmd.Flags().Bool("save", false, "Select an exit if none is active and write it to the settings file")
}
