package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/encodeous/tollmesh/babel"
	"github.com/encodeous/tollmesh/meter"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect",
	Aliases: []string{"i"},
	Short:   "Shows the routing daemon's table and the price of every destination",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadSettings()
		if err != nil {
			fail(err)
		}
		ctx, cancel := tickContext(cfg)
		defer cancel()

		conn, err := babel.Dial(ctx, cfg.Network.BabelAddr)
		if err != nil {
			fail(err)
		}
		defer conn.Close()
		sess := babel.NewSession(conn)
		g, err := sess.Start()
		if err != nil {
			fail(err)
		}
		snap, err := sess.ReadSnapshot()
		if err != nil {
			fail(err)
		}

		fmt.Printf("daemon %s on %s (%s %s, id %s)\n", g.Daemon, g.Host, g.Protocol, g.Version, g.MyID)
		fmt.Printf("local fee %v\n\n", snap.Fee())

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NEIGHBOUR\tINTERFACE\tREACH\tCOST\tRTT")
		for _, n := range snap.Neighbours {
			fmt.Fprintf(w, "%s\t%s\t%04x\t%d\t%.3f\n", n.Address, n.Iface, n.Reach, n.Cost, n.Rtt)
		}
		fmt.Fprintln(w)

		prices := meter.BuildPriceTable(snap.Routes, snap.Fee(), cfg.Network.OwnIP)
		fmt.Fprintln(w, "PREFIX\tVIA\tINSTALLED\tMETRIC\tPRICE\tBILLED")
		for _, r := range snap.Routes {
			billed := "-"
			if p, ok := prices[r.Prefix.Addr().Unmap()]; ok && r.Installed && r.IsHost() {
				billed = p.String()
			}
			fmt.Fprintf(w, "%s\t%s%%%s\t%t\t%d\t%s\t%s\n", r.Prefix, r.Via, r.Iface, r.Installed, r.Metric, r.Price, billed)
		}
		_ = w.Flush()
	},
	GroupID: "tm",
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
