package cmd

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/roffe/mocan/backend"
	"github.com/roffe/mocan/backend/slcan"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "list backends and serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Backends:")
		for _, b := range backend.List() {
			fmt.Printf("  %-10s %s\n", b.Name, b.Description)
		}
		ports, err := slcan.ListPorts()
		if err != nil {
			return err
		}
		fmt.Println("Serial ports:")
		for _, p := range ports {
			if p.IsUSB {
				fmt.Printf("  %-14s %s:%s %s\n", p.Name, p.VID, p.PID, p.Product)
				continue
			}
			fmt.Printf("  %s\n", p.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func selectPort() (string, error) {
	ports, err := slcan.ListPorts()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", errors.New("no serial ports found")
	}
	items := make([]string, len(ports))
	for i, p := range ports {
		items[i] = p.Name
	}
	prompt := promptui.Select{
		Label:    "Port",
		HideHelp: true,
		Items:    items,
	}
	_, result, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return result, nil
}
