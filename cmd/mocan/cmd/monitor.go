package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/roffe/mocan/pkg/cobid"
	"github.com/roffe/mocan/pkg/frame"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "print every frame on the bus with its CANopen role",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dev, err := openBackend(ctx, cmd, &cfg.Board)
		if err != nil {
			return err
		}
		defer dev.Close()

		role := color.New(color.FgCyan).SprintfFunc()
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-dev.Err():
				return err
			case evt := <-dev.Event():
				log.StandardLogger().Log(evt.Type.Level(), evt.Details)
			case f := <-dev.Recv():
				fmt.Println(f.ColorString(), describe(f, role))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func describe(f frame.Frame, role func(string, ...interface{}) string) string {
	r, node, ok := cobid.Classify(f.ID)
	switch {
	case !ok:
		return ""
	case cobid.IsFixed(r):
		return role("%s", r)
	}
	return role("%s node %d", r, node)
}
