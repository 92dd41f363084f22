// Command clusterfs-server runs one cluster node: it serves its own local
// disk store to peers over the internal TCP wire protocol, and exposes the
// cluster composer (fanning out to every configured partition, itself
// included) to clients over HTTP. Grounded on the teacher's
// cmd/server/main.go / cmd/sandstore/main.go process-wiring shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/cluster"
	"github.com/AnishMulay/clusterfs/internal/clusterstats"
	"github.com/AnishMulay/clusterfs/internal/config"
	"github.com/AnishMulay/clusterfs/internal/localfs"
	"github.com/AnishMulay/clusterfs/internal/logging"
	"github.com/AnishMulay/clusterfs/internal/partitions"
	"github.com/AnishMulay/clusterfs/internal/partitions/discovery"
	"github.com/AnishMulay/clusterfs/internal/partitions/discovery/etcd"
	"github.com/AnishMulay/clusterfs/internal/partitions/discovery/static"
	httpwire "github.com/AnishMulay/clusterfs/internal/wire/http"
	"github.com/AnishMulay/clusterfs/internal/wire/tcp"
)

func main() {
	configPath := flag.String("config", "clusterfs.yaml", "path to the node's YAML config")
	dataDir := flag.String("data", "./data", "local disk store root for this node's own partition")
	dev := flag.Bool("dev", false, "use a human-readable development logger instead of JSON")
	flag.Parse()

	if err := run(*configPath, *dataDir, *dev); err != nil {
		fmt.Fprintln(os.Stderr, "clusterfs-server:", err)
		os.Exit(1)
	}
}

func run(configPath, dataDir string, dev bool) error {
	log := logging.New("clusterfs-server")
	if dev {
		log = logging.NewDevelopment("clusterfs-server")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	local, err := localfs.New(dataDir)
	if err != nil {
		return fmt.Errorf("open local store %s: %w", dataDir, err)
	}

	tcpServer := tcp.NewServer(local, log.With(map[string]any{"role": "tcp-peer"}))
	if cfg.Listen.TCP != "" {
		if err := tcpServer.Start(cfg.Listen.TCP); err != nil {
			return fmt.Errorf("start tcp listener on %s: %w", cfg.Listen.TCP, err)
		}
		log.Info(logging.Event{Message: "tcp peer listener started", Fields: map[string]any{"addr": cfg.Listen.TCP}})
		defer tcpServer.Stop()
	}

	dir := partitions.New(log.With(map[string]any{"role": "directory"}), partitions.RendezvousSelector{})

	dial := func(address string) (activefs.FileSystem, error) {
		return tcp.NewClient(address), nil
	}

	src, err := buildDiscovery(cfg, dir, dial, log)
	if err != nil {
		return fmt.Errorf("build discovery: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := src.Start(ctx); err != nil {
		log.Warn(logging.Event{Message: "discovery start reported errors", Fields: map[string]any{"error": err.Error()}})
	}
	defer src.Stop(context.Background())

	composer, err := cluster.New(dir, cfg.Cluster.ToClusterConfig(), log.With(map[string]any{"role": "composer"}))
	if err != nil {
		return fmt.Errorf("build cluster composer: %w", err)
	}
	stats := clusterstats.New("clusterfs")
	fs := cluster.Instrument(composer, stats, log.With(map[string]any{"role": "composer"}))

	go livenessSweep(ctx, dir, log)

	httpServer := httpwire.NewServer(cfg.Listen.HTTP, fs, log.With(map[string]any{"role": "http-client"}))
	if cfg.Listen.HTTP != "" {
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("start http listener on %s: %w", cfg.Listen.HTTP, err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info(logging.Event{Message: "shutting down"})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Stop(shutdownCtx)
}

func buildDiscovery(cfg *config.Config, dir *partitions.Directory, dial static.Dialer, log logging.Logger) (discovery.Source, error) {
	switch cfg.Discovery.Mode {
	case "", "static":
		list := make([]static.Partition, len(cfg.Partitions))
		for i, p := range cfg.Partitions {
			list[i] = static.Partition{ID: p.ID, Address: p.Address}
		}
		return static.New(dir, list, dial), nil
	case "etcd":
		var opts []etcd.Option
		opts = append(opts, etcd.WithLogger(log.With(map[string]any{"role": "discovery-etcd"})))
		if cfg.Discovery.SelfID != "" {
			opts = append(opts, etcd.WithSelf(cfg.Discovery.SelfID, cfg.Discovery.SelfAddress))
		}
		return etcd.New(dir, cfg.Discovery.EtcdEndpoints, dial, opts...), nil
	default:
		return nil, fmt.Errorf("unknown discovery mode %q", cfg.Discovery.Mode)
	}
}

// livenessSweep periodically re-pings dead partitions (to notice recovery)
// and all partitions (to notice new failures), the background half of
// spec.md §3's liveness model that a single-flight ping-on-demand check
// doesn't cover by itself.
func livenessSweep(ctx context.Context, dir *partitions.Directory, log logging.Logger) {
	deadTicker := time.NewTicker(5 * time.Second)
	allTicker := time.NewTicker(30 * time.Second)
	defer deadTicker.Stop()
	defer allTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadTicker.C:
			if err := dir.CheckDeadPartitions(ctx); err != nil {
				log.Debug(logging.Event{Message: "dead-partition sweep error", Fields: map[string]any{"error": err.Error()}})
			}
		case <-allTicker.C:
			if err := dir.CheckAllPartitions(ctx); err != nil {
				log.Debug(logging.Event{Message: "full liveness sweep error", Fields: map[string]any{"error": err.Error()}})
			}
		}
	}
}
