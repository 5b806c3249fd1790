package cmd

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/encodeous/tollmesh/state"
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create a node settings file",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			_ = cmd.Usage()
			return
		}

		name := args[0]
		err := state.NameValidator(name)
		if err != nil {
			fmt.Printf("Invalid name: %s\n", name)
			os.Exit(-1)
		}

		ipStr, _ := cmd.Flags().GetString("ip")
		ip, err := netip.ParseAddr(ipStr)
		if err != nil {
			fmt.Printf("Invalid mesh ip: %s\n", ipStr)
			os.Exit(-1)
		}

		cfg := &state.Settings{
			Name: name,
			Network: state.NetworkSettings{
				OwnIP:        ip,
				WgPrivateKey: state.GenerateKey(),
			},
		}
		cfg.Network.BabelAddr, _ = cmd.Flags().GetString("babel")
		cfg.ApplyDefaults()
		if err := state.SettingsValidator(cfg); err != nil {
			fail(err)
		}

		if _, err := os.Stat(state.SettingsPath); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				fail(fmt.Errorf("%s already exists, pass --force to overwrite it", state.SettingsPath))
			}
		}
		if err := cfg.Write(state.SettingsPath); err != nil {
			fail(err)
		}
		fmt.Printf("Wrote %s\n", state.SettingsPath)
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(newCmd)

	newCmd.Flags().String("ip", "", "Mesh ip of this node")
	newCmd.Flags().String("babel", state.DefaultBabelAddr, "Control socket of the routing daemon")
	newCmd.Flags().BoolP("force", "f", false, "Overwrite an existing settings file")
}
