package cmd

import (
	"context"
	"time"

	"github.com/roffe/mocan"
	"github.com/roffe/mocan/backend"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"
)

// mainline runs the stack processing at this many calls per second.
const mainline = 1000

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a CANopen node on the selected backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		b := &cfg.Board

		dev, err := openBackend(ctx, cmd, b)
		if err != nil {
			return err
		}
		defer dev.Close()

		br := backend.NewBridge(dev, b.Layout(), log.StandardLogger())
		m, err := mocan.New(br, mocan.WithNodeID(b.NodeID))
		if err != nil {
			return err
		}
		br.SetHandler(m)

		n := newNode(m, b.NodeID, b.Bitrate, b.RxBuffers, b.TxBuffers)
		if err := n.configure(); err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"node":    b.NodeID,
			"backend": dev.Name(),
			"bitrate": b.Bitrate,
		}).Info("node started")

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return br.Run(gctx) })
		g.Go(func() error { return n.loop(gctx, time.Duration(b.HeartbeatMs)*time.Millisecond) })
		err = g.Wait()

		log.WithField("rpdo", n.rpdos.Load()).Info(m.Stats().String())
		m.Disable()
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// loop is the main-context side of the node.
func (n *node) loop(ctx context.Context, period time.Duration) error {
	rl := ratelimit.New(mainline)
	next := time.Now().Add(period)
	for ctx.Err() == nil {
		rl.Take()
		select {
		case <-n.resets:
			if err := n.reset(); err != nil {
				return err
			}
			next = time.Now().Add(period)
			continue
		default:
		}
		n.m.Process()
		if now := time.Now(); now.After(next) {
			next = now.Add(period)
			if err := n.heartbeat(); err != nil {
				log.WithError(err).Warn("heartbeat")
			}
		}
	}
	return nil
}
