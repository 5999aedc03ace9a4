package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/overmesh/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new [interface...]",
	Short: "Create a node configuration with a fresh identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Usage()
		}
		port, _ := cmd.Flags().GetUint16("port")
		memory, _ := cmd.Flags().GetInt("memory")
		tick, _ := cmd.Flags().GetInt("tick")

		key, sid := state.GenerateIdentity()
		nodeCfg := state.LocalCfg{
			Key:      key,
			MemoryMB: memory,
			Port:     port,
		}
		for _, name := range args {
			nodeCfg.Interfaces = append(nodeCfg.Interfaces, state.InterfaceCfg{
				Name:   name,
				TickMs: tick,
			})
		}
		if err := state.NodeConfigValidator(&nodeCfg); err != nil {
			return err
		}

		ncfg, err := yaml.Marshal(&nodeCfg)
		if err != nil {
			return err
		}
		outPath := cmd.Flag("output").Value.String()
		err = os.WriteFile(outPath, ncfg, 0600)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s for node %s\n", outPath, sid)
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringP("output", "o", state.NodeConfigPath, "where to write the node config")
	newCmd.Flags().Uint16P("port", "p", state.DefaultPort, "link-local UDP port")
	newCmd.Flags().IntP("memory", "m", 1, "memory budget for the routing tables, in MB")
	newCmd.Flags().IntP("tick", "t", int(state.DefaultTickDelay.Milliseconds()), "self-announcement interval in ms")
}
