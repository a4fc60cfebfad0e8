package main

import (
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/defistate/clamm-engine-go/engine"
	"github.com/defistate/clamm-engine-go/patcher"
	"github.com/defistate/clamm-engine-go/streams/jsonrpc/client"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the pool stream of a running engine",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	cmd.Flags().String("stream-url", "ws://127.0.0.1:8545", "websocket URL of the engine")
	cmd.Flags().Uint("stream-buffer", 100, "states buffered by the client")
	cmd.Flags().Bool("once", false, "exit after the first state")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, logger, sync, err := setup(cmd)
	if err != nil {
		return err
	}
	defer sync()

	p, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	c, err := client.NewClient(ctx, client.Config{
		URL:          cfg.StreamURL,
		Logger:       logger.With("component", "jsonrpc-client"),
		BufferSize:   cfg.StreamBuffer,
		StatePatcher: p.Patch,
	})
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	once, _ := cmd.Flags().GetBool("once")
	for {
		select {
		case state := <-c.State():
			if err := printState(cmd.OutOrStdout(), state); err != nil {
				return err
			}
			if once {
				return nil
			}
		case err, ok := <-c.Err():
			if ok && err != nil {
				return err
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

var q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// price returns token1 per token0 in raw units.
func price(sqrtPriceX96 *big.Int) *big.Float {
	r := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96)
	return r.Mul(r, r)
}

func printState(out io.Writer, state *engine.State) error {
	ts := time.Unix(0, int64(state.Timestamp)).UTC().Format(time.RFC3339Nano)
	fmt.Fprintf(out, "\nseq %d at %s, %d pools\n", state.Seq, ts, len(state.Pools))
	if len(state.Pools) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
	fmt.Fprintf(w, "POOL\tPAIR\tFEE\tTICK\tPRICE\tLIQUIDITY\tTICKS\t\n")
	for _, p := range state.Pools {
		pair := shortID(p.Key.Currency0.Hex()) + "/" + shortID(p.Key.Currency1.Hex())
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%d\t\n",
			shortID(p.ID.Hex()), pair, p.Key.Fee, p.Slot0.Tick, price(p.Slot0.SqrtPriceX96).Text('g', 8), p.Liquidity, len(p.Ticks))
	}
	return w.Flush()
}
