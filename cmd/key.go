package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/encodeous/overmesh/state"
	"github.com/spf13/cobra"
)

var genKey = false

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Generates a new node key. Outputs the private key to stdout, the SID to stderr.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var privKey state.PrivateKey
		if !genKey {
			in := bufio.NewReader(os.Stdin)
			ln, err := in.ReadString('\n')
			if err != nil {
				return err
			}
			err = privKey.UnmarshalText([]byte(strings.TrimSpace(ln)))
			if err != nil {
				return err
			}
		} else {
			privKey, _ = state.GenerateIdentity()
			privKeyStr, err := privKey.MarshalText()
			if err != nil {
				return err
			}
			fmt.Println(string(privKeyStr))
		}

		sid, err := privKey.Pubkey()
		if err != nil {
			return err
		}
		if sid.IsReserved() || sid.IsBroadcast() {
			return fmt.Errorf("%w: key derives the reserved SID %s", state.ErrInvalidState, sid)
		}
		_, err = fmt.Fprintln(os.Stderr, sid.String())
		return err
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.Flags().BoolVarP(&genKey, "gen", "g", true, "generate a new key, otherwise read one from stdin")
}
