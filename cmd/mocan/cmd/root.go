package cmd

import (
	"context"

	"github.com/roffe/mocan/backend"
	"github.com/roffe/mocan/pkg/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "mocan",
	Short:        "CANopen message object layer tool",
	Long:         `Run a CANopen node on top of a message object pool, watch the bus or list identifiers`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug, _ := cmd.Flags().GetBool(flagDebug); debug {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

const (
	flagPort     = "port"
	flagBaudrate = "baudrate"
	flagDebug    = "debug"
	flagBackend  = "backend"
	flagConfig   = "config"
	flagNode     = "node"
	flagBitrate  = "bitrate"
)

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	pf := rootCmd.PersistentFlags()
	pf.StringP(flagPort, "p", "*", "com-port or interface, * = first found, ? = select")
	pf.IntP(flagBaudrate, "b", 115200, "com-port baudrate")
	pf.BoolP(flagDebug, "d", false, "debug mode")
	pf.StringP(flagBackend, "a", config.DefaultBackend, "what backend to use")
	pf.StringP(flagConfig, "c", "", "board file, empty = built-in XMC4800 layout")
	pf.Uint8P(flagNode, "n", config.DefaultNodeID, "CANopen node id")
	pf.Uint(flagBitrate, config.DefaultBitrate, "CAN bitrate in kbit/s")
}

// loadConfig reads the board file and lets explicitly set flags override it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	pf := cmd.Flags()
	cfg := config.Default()
	if path, _ := pf.GetString(flagConfig); path != "" {
		c, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	b := &cfg.Board
	if pf.Changed(flagPort) || b.Port == "" {
		b.Port, _ = pf.GetString(flagPort)
	}
	if pf.Changed(flagBaudrate) {
		b.PortBaudrate, _ = pf.GetInt(flagBaudrate)
	}
	if pf.Changed(flagBackend) {
		b.Backend, _ = pf.GetString(flagBackend)
	}
	if pf.Changed(flagNode) {
		b.NodeID, _ = pf.GetUint8(flagNode)
	}
	if pf.Changed(flagBitrate) {
		b.Bitrate, _ = pf.GetUint(flagBitrate)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if b.Port == "?" {
		port, err := selectPort()
		if err != nil {
			return nil, err
		}
		b.Port = port
	}
	return cfg, nil
}

func openBackend(ctx context.Context, cmd *cobra.Command, b *config.BoardConfig) (backend.Backend, error) {
	debug, _ := cmd.Flags().GetBool(flagDebug)
	dev, err := backend.New(b.Backend, &backend.Config{
		Debug:        debug,
		Port:         b.Port,
		PortBaudrate: b.PortBaudrate,
		Bitrate:      b.Bitrate,
	})
	if err != nil {
		return nil, err
	}
	if err := dev.Open(ctx); err != nil {
		return nil, err
	}
	return dev, nil
}
