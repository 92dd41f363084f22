// Package etcd implements dynamic partition discovery over etcd: a config
// key per partition, a leased liveness key kept alive by whichever node
// owns that partition, and a watch loop that adds/removes/marks-dead
// partitions in a partitions.Directory as those keys change. Grounded on
// the teacher's EtcdClusterService, generalized from a single
// cluster-membership service tied to cluster_service.ClusterNode into a
// discovery.Source over the cluster-filesystem's own Directory and Dialer.
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AnishMulay/clusterfs/internal/logging"
	"github.com/AnishMulay/clusterfs/internal/partitions"
	"github.com/AnishMulay/clusterfs/internal/partitions/discovery/static"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	dialTimeout  = 5 * time.Second
	prefixConfig = "/clusterfs/config/nodes/"
	prefixLease  = "/clusterfs/leases/"
)

// nodeConfig is the JSON payload stored under prefixConfig.
type nodeConfig struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Source watches etcd for partition config/liveness changes and reconciles
// them into a Directory. Optionally also registers and keeps alive a
// liveness lease for this process's own partition, when SelfID is set.
type Source struct {
	dir  *partitions.Directory
	dial static.Dialer
	log  logging.Logger

	endpoints []string
	selfID    string
	selfAddr  string

	client  *clientv3.Client
	leaseID clientv3.LeaseID

	mu     sync.Mutex
	known  map[string]nodeConfig
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Source.
type Option func(*Source)

// WithSelf registers id/addr as this process's own partition, granting it a
// lease and keeping it alive for as long as Source runs.
func WithSelf(id, addr string) Option {
	return func(s *Source) { s.selfID, s.selfAddr = id, addr }
}

// WithLogger attaches a logger; defaults to a no-op logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Source) { s.log = log }
}

// New builds an etcd-backed discovery source. dial turns a discovered
// partition's address into an activefs.FileSystem handle (internal/wire's
// client constructors).
func New(dir *partitions.Directory, endpoints []string, dial static.Dialer, opts ...Option) *Source {
	s := &Source{
		dir:       dir,
		dial:      dial,
		log:       logging.Noop(),
		endpoints: endpoints,
		known:     make(map[string]nodeConfig),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects to etcd, performs an initial sync of existing config/lease
// keys into the directory, registers this node's own lease (if WithSelf was
// given), and launches the background watch and keepalive loops.
func (s *Source) Start(ctx context.Context) error {
	cli, err := clientv3.New(clientv3.Config{Endpoints: s.endpoints, DialTimeout: dialTimeout})
	if err != nil {
		return fmt.Errorf("etcd discovery: connect: %w", err)
	}
	s.client = cli

	if err := s.syncExisting(ctx); err != nil {
		return err
	}

	if s.selfID != "" {
		if err := s.registerSelf(ctx); err != nil {
			return err
		}
	}

	s.wg.Add(1)
	go s.watchLoop()
	return nil
}

// Stop revokes this node's own lease (if any) and waits for the background
// loops to exit.
func (s *Source) Stop(ctx context.Context) error {
	close(s.stopCh)
	if s.leaseID != 0 {
		if _, err := s.client.Revoke(ctx, s.leaseID); err != nil {
			s.log.Warn(logging.Event{Message: "failed to revoke lease on shutdown", Fields: map[string]any{"error": err.Error()}})
		}
	}
	s.wg.Wait()
	return s.client.Close()
}

func (s *Source) registerSelf(ctx context.Context) error {
	cfg := nodeConfig{ID: s.selfID, Address: s.selfAddr}
	val, _ := json.Marshal(cfg)
	if _, err := s.client.Put(ctx, prefixConfig+s.selfID, string(val)); err != nil {
		return fmt.Errorf("etcd discovery: register config: %w", err)
	}

	resp, err := s.client.Grant(ctx, 10)
	if err != nil {
		return fmt.Errorf("etcd discovery: grant lease: %w", err)
	}
	s.leaseID = resp.ID

	if _, err := s.client.Put(ctx, prefixLease+s.selfID, "alive", clientv3.WithLease(s.leaseID)); err != nil {
		return fmt.Errorf("etcd discovery: put lease key: %w", err)
	}

	ch, err := s.client.KeepAlive(ctx, s.leaseID)
	if err != nil {
		return fmt.Errorf("etcd discovery: keepalive: %w", err)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stopCh:
				return
			case _, ok := <-ch:
				if !ok {
					s.log.Error(logging.Event{Message: "etcd keepalive channel closed"})
					return
				}
			}
		}
	}()
	return nil
}

func (s *Source) syncExisting(ctx context.Context) error {
	cfgResp, err := s.client.Get(ctx, prefixConfig, clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("etcd discovery: list config: %w", err)
	}
	s.mu.Lock()
	for _, kv := range cfgResp.Kvs {
		var n nodeConfig
		if json.Unmarshal(kv.Value, &n) == nil {
			s.known[n.ID] = n
		}
	}
	s.mu.Unlock()

	leaseResp, err := s.client.Get(ctx, prefixLease, clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("etcd discovery: list leases: %w", err)
	}
	alive := make(map[string]bool, len(leaseResp.Kvs))
	for _, kv := range leaseResp.Kvs {
		alive[strings.TrimPrefix(string(kv.Key), prefixLease)] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.known {
		if !alive[id] {
			continue
		}
		if err := s.addPartition(n); err != nil {
			s.log.Warn(logging.Event{Message: "failed to dial discovered partition", Fields: map[string]any{"id": id, "error": err.Error()}})
		}
	}
	return nil
}

func (s *Source) addPartition(n nodeConfig) error {
	fs, err := s.dial(n.Address)
	if err != nil {
		return err
	}
	s.dir.AddPartition(partitions.ID(n.ID), fs)
	return nil
}

func (s *Source) watchLoop() {
	defer s.wg.Done()
	watchCh := s.client.Watch(context.Background(), "/clusterfs/", clientv3.WithPrefix())
	for {
		select {
		case <-s.stopCh:
			return
		case resp, ok := <-watchCh:
			if !ok {
				return
			}
			for _, ev := range resp.Events {
				s.handleEvent(ev)
			}
		}
	}
}

func (s *Source) handleEvent(ev *clientv3.Event) {
	key := string(ev.Kv.Key)
	switch {
	case strings.HasPrefix(key, prefixConfig):
		id := strings.TrimPrefix(key, prefixConfig)
		if ev.Type == clientv3.EventTypeDelete {
			s.mu.Lock()
			delete(s.known, id)
			s.mu.Unlock()
			s.dir.RemovePartition(partitions.ID(id))
			return
		}
		var n nodeConfig
		if json.Unmarshal(ev.Kv.Value, &n) != nil {
			return
		}
		s.mu.Lock()
		s.known[n.ID] = n
		s.mu.Unlock()

	case strings.HasPrefix(key, prefixLease):
		id := strings.TrimPrefix(key, prefixLease)
		if ev.Type == clientv3.EventTypeDelete {
			s.dir.MarkDead(partitions.ID(id), fmt.Errorf("etcd lease expired"))
			return
		}
		s.mu.Lock()
		n, known := s.known[id]
		s.mu.Unlock()
		if !known {
			return
		}
		if s.dir.MarkAlive(partitions.ID(id)) {
			return
		}
		if err := s.addPartition(n); err != nil {
			s.log.Warn(logging.Event{Message: "failed to dial partition coming back alive", Fields: map[string]any{"id": id, "error": err.Error()}})
		}
	}
}
