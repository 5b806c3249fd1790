package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/tollmesh/state"
	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Generates a new WireGuard keypair for the mesh tunnel",
	Run: func(cmd *cobra.Command, args []string) {
		key := state.GenerateKey()
		privKey, err := key.MarshalText()
		if err != nil {
			panic(err)
		}
		pubKey, err := key.Pubkey().MarshalText()
		if err != nil {
			panic(err)
		}
		fmt.Printf("PrivateKey=%s\n", privKey)
		_, err = fmt.Fprintf(os.Stderr, "PublicKey=%s\n", pubKey)
		if err != nil {
			panic(err)
		}
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(keyCmd)
}
