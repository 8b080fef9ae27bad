package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	consulapi "github.com/hashicorp/consul/api"
	"github.com/go-zookeeper/zk"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/ferr"
)

// Source is one backend the server-default configuration layer can be
// loaded from: a local file, or a remote key/value store. Every Source
// produces the same YAML-shaped bytes, which feed the same
// parse-then-expand-then-wrap path LoadYAMLString uses, so
// InitializeWorkflow never needs to know which backend served the bytes.
type Source interface {
	ReadBytes(ctx context.Context) ([]byte, error)
	Close() error
}

// LoadFromSource reads a Source and wraps it as an effective server-default
// configtree.Node, the same shape LoadYAMLFile produces.
func LoadFromSource(ctx context.Context, src Source) (configtree.Node, error) {
	data, err := src.ReadBytes(ctx)
	if err != nil {
		return configtree.Absent, ferr.New(ferr.KindIO, "config", "LoadFromSource", "read from source", err)
	}
	return LoadYAMLString(string(data))
}

// FileSource reads server-default configuration from a local path and, via
// Watch, notifies callers of content changes — the only Source that
// supports change notification, via a debounced fsnotify loop.
type FileSource struct {
	path    string
	watcher *fsnotify.Watcher
}

func NewFileSource(path string) (*FileSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &FileSource{path: abs}, nil
}

func (s *FileSource) ReadBytes(ctx context.Context) ([]byte, error) {
	return os.ReadFile(s.path)
}

// Watch starts watching the config file's directory for writes, sending on
// the returned channel (debounced) whenever the file is rewritten. It
// returns at once; the watch loop runs until ctx is canceled or Close is
// called, then closes the channel.
func (s *FileSource) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	s.watcher = watcher

	dir := filepath.Dir(s.path)
	name := filepath.Base(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config directory %s: %w", dir, err)
	}

	ch := make(chan struct{}, 1)
	go s.watchLoop(ctx, watcher, name, ch)
	return ch, nil
}

func (s *FileSource) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, name string, ch chan<- struct{}) {
	defer close(ch)
	defer watcher.Close()

	var debounce *time.Timer
	const delay = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(delay, func() {
				select {
				case ch <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config: file watcher error", "error", err)
		}
	}
}

func (s *FileSource) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// ConsulSource reads server-default configuration from a Consul KV key.
// Remote sources are polled at load time only — no distributed cache
// invalidation.
type ConsulSource struct {
	client *consulapi.Client
	key    string
}

func NewConsulSource(address, key string) (*ConsulSource, error) {
	cfg := consulapi.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	return &ConsulSource{client: client, key: key}, nil
}

func (s *ConsulSource) ReadBytes(ctx context.Context) ([]byte, error) {
	kv, _, err := s.client.KV().Get(s.key, (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("read consul key %s: %w", s.key, err)
	}
	if kv == nil {
		return nil, fmt.Errorf("consul key %s not found", s.key)
	}
	return kv.Value, nil
}

func (s *ConsulSource) Close() error { return nil }

// EtcdSource reads server-default configuration from an etcd key.
type EtcdSource struct {
	client *clientv3.Client
	key    string
}

func NewEtcdSource(endpoints []string, key string) (*EtcdSource, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create etcd client: %w", err)
	}
	return &EtcdSource{client: client, key: key}, nil
}

func (s *EtcdSource) ReadBytes(ctx context.Context) ([]byte, error) {
	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read etcd key %s: %w", s.key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("etcd key %s not found", s.key)
	}
	return resp.Kvs[0].Value, nil
}

func (s *EtcdSource) Close() error { return s.client.Close() }

// ZookeeperSource reads server-default configuration from a ZooKeeper
// znode.
type ZookeeperSource struct {
	conn *zk.Conn
	path string
}

func NewZookeeperSource(endpoints []string, path string) (*ZookeeperSource, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("zookeeper endpoints are required")
	}
	conn, _, err := zk.Connect(endpoints, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to zookeeper: %w", err)
	}
	return &ZookeeperSource{conn: conn, path: path}, nil
}

func (s *ZookeeperSource) ReadBytes(ctx context.Context) ([]byte, error) {
	data, _, err := s.conn.Get(s.path)
	if err != nil {
		return nil, fmt.Errorf("read zookeeper path %s: %w", s.path, err)
	}
	return data, nil
}

func (s *ZookeeperSource) Close() error {
	s.conn.Close()
	return nil
}
