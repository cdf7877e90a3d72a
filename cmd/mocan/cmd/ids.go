package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/roffe/mocan/pkg/cobid"
	"github.com/spf13/cobra"
)

var idsCmd = &cobra.Command{
	Use:   "ids",
	Short: "print the identifier table for a node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		node, _ := cmd.Flags().GetUint8(flagNode)
		if err := cobid.ValidNode(node); err != nil {
			return err
		}
		hdr := color.New(color.Bold)
		fixed := color.New(color.FgYellow)
		hdr.Printf("%-8s %-6s %-6s\n", "role", "base", "node "+fmt.Sprint(node))
		for _, r := range cobid.Roles() {
			line := fmt.Sprintf("%-8s 0x%03X  0x%03X", r, cobid.Base(r), cobid.Derive(r, node))
			if cobid.IsFixed(r) {
				fixed.Println(line)
				continue
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(idsCmd)
}
