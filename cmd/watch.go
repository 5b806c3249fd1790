package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/encodeous/tollmesh/core"
	"github.com/encodeous/tollmesh/ledger"
	"github.com/encodeous/tollmesh/meter"
	"github.com/encodeous/tollmesh/state"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Runs a single accounting interval and prints what each neighbour would be billed",
	Long: `Runs a single accounting interval against the live counters and prints the debt delta of
every neighbour. Nothing is sent to the ledger, but the counters are still read and reset, so
the traffic measured here will not be billed by a running node.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadSettings()
		if err != nil {
			fail(err)
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		log := cliLogger(cfg, verbose)

		ctx, cancel := tickContext(cfg)
		defer cancel()

		source, counters := core.Components(cfg, log)
		if err := counters.Init(ctx); err != nil {
			fail(err)
		}
		w := meter.NewTrafficWatcher(state.NewSettingsHandle(cfg), source, counters, ledger.SinkFunc(func([]ledger.Update) {}), log)
		res, err := w.Measure(ctx)
		if err != nil {
			fail(err)
		}

		t := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(t, "NEIGHBOUR\tDELTA")
		for _, u := range res.Updates {
			fmt.Fprintf(t, "%s\t%s\n", u.From, u.Amount)
		}
		_ = t.Flush()
		for _, a := range res.Anomalies {
			_, _ = fmt.Fprintf(os.Stderr, "unattributed: %s\n", a.Error())
		}
	},
	GroupID: "tm",
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
}
