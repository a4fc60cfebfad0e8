package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/defistate/clamm-engine-go/cmd/clamm/config"
	"github.com/defistate/clamm-engine-go/manager"
	"github.com/defistate/clamm-engine-go/protocols/tokenpoolregistry"
	"github.com/defistate/clamm-engine-go/protocols/tokenregistry/indexer"
	"github.com/defistate/clamm-engine-go/scenario"
	"github.com/defistate/clamm-engine-go/settlement"
	"github.com/defistate/clamm-engine-go/storage/postgres"
	"github.com/defistate/clamm-engine-go/streams/jsonrpc/client"
	"github.com/defistate/clamm-engine-go/streams/jsonrpc/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over JSON-RPC and stream pool state",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "127.0.0.1:8545", "HTTP and websocket listen address")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for pool snapshots (optional)")
	cmd.Flags().Uint("stream-buffer", 100, "events queued per stream subscriber")
	cmd.Flags().Float64("rate-limit", 0, "mutating calls per second, 0 disables the limit")
	cmd.Flags().Int("rate-burst", 1, "burst of mutating calls")
	cmd.Flags().Uint16("protocol-fee0", 0, "initial protocol fee for zeroForOne swaps, in pips")
	cmd.Flags().Uint16("protocol-fee1", 0, "initial protocol fee for oneForZero swaps, in pips")
	cmd.Flags().String("seed", "", "scenario file replayed before serving")
	cmd.Flags().Duration("shutdown-timeout", 5*time.Second, "graceful shutdown timeout")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, sync, err := setup(cmd)
	if err != nil {
		return err
	}
	defer sync()

	ctx := cmd.Context()
	n, err := newNode(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer n.Close()

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           n.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	logger.Info("engine start",
		"listen", cfg.Listen,
		"postgres", cfg.PgDSN != "",
		"rate_limit", cfg.RateLimit,
		"pools", len(n.manager.Pools()),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// closes subscription codecs, which Shutdown does not wait for
	n.rpc.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// node is a wired engine: manager, vault, stream and the HTTP surface over them.
type node struct {
	manager  *manager.Manager
	vault    *settlement.Vault
	streamer *server.Streamer
	store    *postgres.Store
	rpc      *rpc.Server
	handler  http.Handler
}

func newNode(ctx context.Context, cfg config.Config, logger Logger, reg *prometheus.Registry) (_ *node, err error) {
	n := &node{vault: settlement.NewVault()}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	n.streamer, err = server.NewStreamer(server.Config{
		Logger:     logger.With("component", "streamer"),
		Registry:   reg,
		BufferSize: cfg.StreamBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("create streamer: %w", err)
	}
	pairs := tokenpoolregistry.NewTokenPoolSystem()
	snapshots := manager.Snapshotters{n.streamer, pairs}

	if cfg.PgDSN != "" {
		n.store, err = postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err = n.store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		snapshots = append(snapshots, n.store)
	}

	fees := manager.NewStaticFeeController(cfg.ProtocolFee())
	n.manager, err = manager.New(&manager.Config{
		Logger:        logger.With("component", "manager"),
		Registry:      reg,
		Settler:       n.vault,
		FeeController: fees,
		Snapshots:     snapshots,
	})
	if err != nil {
		return nil, fmt.Errorf("create manager: %w", err)
	}

	tokens, err := cfg.RegistryTokens()
	if err != nil {
		return nil, err
	}
	if cfg.Seed != "" {
		sc, err := scenario.Load(cfg.Seed)
		if err != nil {
			return nil, err
		}
		env := &scenario.Env{Manager: n.manager, Vault: n.vault, Fees: fees}
		report, err := scenario.Run(ctx, env, sc, logger.With("component", "seed"))
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", cfg.Seed, err)
		}
		if len(tokens) == 0 {
			tokens = report.Tokens
		}
	}

	opts := []server.ServiceOption{server.WithVault(n.vault), server.WithPairs(pairs)}
	if len(tokens) > 0 {
		sys, err := indexer.NewIndexableTokenSystem(tokens)
		if err != nil {
			return nil, fmt.Errorf("index tokens: %w", err)
		}
		opts = append(opts, server.WithTokens(sys))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, server.WithRateLimit(rate.Limit(cfg.RateLimit), cfg.RateBurst))
	}
	svc, err := server.NewService(logger.With("component", "service"), n.manager, opts...)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}

	n.rpc = rpc.NewServer()
	if err = n.rpc.RegisterName(client.RpcNamespace, svc); err != nil {
		return nil, err
	}
	if err = n.rpc.RegisterName(client.RpcNamespace, server.NewPoolStreamAPI(n.streamer)); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", rpcHandler(n.rpc))
	n.handler = mux
	return n, nil
}

func (n *node) Close() {
	if n.rpc != nil {
		n.rpc.Stop()
	}
	if n.store != nil {
		n.store.Close()
	}
}

// rpcHandler serves websocket upgrades and plain HTTP calls on one endpoint.
func rpcHandler(srv *rpc.Server) http.Handler {
	ws := srv.WebsocketHandler([]string{"*"})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebsocket(r) {
			ws.ServeHTTP(w, r)
			return
		}
		srv.ServeHTTP(w, r)
	})
}

func isWebsocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
