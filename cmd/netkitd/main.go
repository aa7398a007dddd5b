// Command netkitd runs a single netkit cluster node: it joins the
// membership table described by its config file, starts a heartbeat
// loop, and serves the admin HTTP surface (healthz/metrics/cluster
// dump). It follows the teacher's own cmd/outline-cli-ws/main.go shape:
// flag-parsed config path, context-driven background loops, signal-based
// graceful shutdown.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"netkit/adminapi"
	"netkit/cluster"
	"netkit/config"
	"netkit/telemetry"
)

func main() {
	var cfgPath string
	var adminAddr string
	flag.StringVar(&cfgPath, "c", "netkit.yaml", "config path")
	flag.StringVar(&adminAddr, "admin", ":9090", "admin HTTP listen address")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfgPath).Msg("loading config")
	}

	telem := telemetry.New()
	promReg := prometheus.NewRegistry()
	if err := promReg.Register(telem); err != nil {
		log.Fatal().Err(err).Msg("registering telemetry collector")
	}

	registry := cluster.New(log.With().Str("component", "cluster").Logger())
	registry.SetTelemetry(telem)

	self := cluster.NewSelf(cfg.Cluster.SelfID, cfg.Listen.Addr, cfg.Listen.Port)
	seeds := make([]cluster.Node, 0, len(cfg.Cluster.Seeds))
	for _, s := range cfg.Cluster.Seeds {
		seeds = append(seeds, cluster.Node{ID: s.ID, Addr: s.Addr, Port: s.Port})
	}
	if err := registry.Join(self, seeds); err != nil {
		log.Fatal().Err(err).Msg("joining cluster")
	}
	log.Info().Str("node_id", self.ID).Int("seeds", len(seeds)).Msg("joined cluster")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	admin, err := adminapi.New(adminAddr, promReg, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("building admin server")
	}
	go func() {
		if err := admin.Run(ctx); err != nil {
			log.Error().Err(err).Msg("admin server stopped")
		}
	}()
	log.Info().Str("addr", adminAddr).Msg("admin HTTP listening")

	go heartbeatLoop(ctx, registry, self.ID, log)
	go broadcastLoop(ctx, registry, log)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info().Msg("shutting down")
	_ = registry.Leave(self.ID)
	cancel()
}

func heartbeatLoop(ctx context.Context, registry *cluster.Registry, selfID string, log zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := registry.Heartbeat(selfID); err != nil {
				log.Warn().Err(err).Msg("heartbeat failed")
			}
		}
	}
}

// broadcastLoop periodically fans a liveness ping out to every peer,
// exercising cluster.Registry.Broadcast the way a real deployment would
// propagate membership changes.
func broadcastLoop(ctx context.Context, registry *cluster.Registry, log zerolog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if failures, err := registry.Broadcast([]byte("ping")); err != nil {
				log.Warn().Err(err).Msg("broadcast failed")
			} else if failures > 0 {
				log.Debug().Int("failures", failures).Msg("broadcast partially failed")
			}
		}
	}
}
