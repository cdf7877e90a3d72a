package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roffe/mocan"
	"github.com/roffe/mocan/backend"
	"github.com/roffe/mocan/backend/virtual"
	"github.com/roffe/mocan/pkg/bar"
	"github.com/roffe/mocan/pkg/cobid"
	"github.com/roffe/mocan/pkg/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var benchCmd = &cobra.Command{
	Use:   "bench [frames]",
	Short: "push frames through the module on an in-process bus",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count := 10000
		if len(args) == 1 {
			if _, err := fmt.Sscan(args[0], &count); err != nil || count < 1 {
				return fmt.Errorf("invalid frame count %q", args[0])
			}
		}
		return bench(cmd.Context(), count)
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)
}

func bench(ctx context.Context, count int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := virtual.NewHub()
	ep, peer := hub.Endpoint(nil), hub.Endpoint(nil)
	for _, e := range []*virtual.Endpoint{ep, peer} {
		if err := e.Open(ctx); err != nil {
			return err
		}
		defer e.Close()
	}

	board := config.Default().Board
	br := backend.NewBridge(ep, board.Layout(), log.StandardLogger())
	m, err := mocan.New(br, mocan.WithNodeID(board.NodeID))
	if err != nil {
		return err
	}
	br.SetHandler(m)
	if err := m.Init(1, 1, board.Bitrate); err != nil {
		return err
	}
	tx, err := m.TxBufferInit(0, cobid.Derive(cobid.PDOOut1, board.NodeID), 4, false)
	if err != nil {
		return err
	}
	if err := m.EnterNormalMode(); err != nil {
		return err
	}

	pb := bar.New(count, "sending")
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return br.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		for got := 0; got < count; {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-peer.Recv():
				got++
				pb.Add(1)
			case <-time.After(time.Second):
				return fmt.Errorf("bus stalled after %d of %d frames", got, count)
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < count; {
			if gctx.Err() != nil {
				return nil
			}
			err := m.SendData(tx, [8]byte{byte(i), byte(i >> 8), byte(i >> 16), byte(i >> 24)})
			switch {
			case err == nil:
				i++
			case errors.Is(err, mocan.ErrTxOverflow), errors.Is(err, mocan.ErrTxBusy):
				// hardware still owns every object, let the pumps catch up
				m.Process()
				if !tx.Full {
					i++
				}
				time.Sleep(50 * time.Microsecond)
			default:
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	pb.Finish()
	elapsed := time.Since(start)
	fmt.Printf("\n%d frames in %s (%.0f frames/s)\n", count, elapsed.Round(time.Millisecond), float64(count)/elapsed.Seconds())
	fmt.Println(m.Stats())
	return nil
}
