package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	backendadapter "github.com/aretw0/arbor/pkg/adapters/backend"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	redisadapter "github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/decision"
	"github.com/aretw0/arbor/pkg/ports"
)

// NewLogger creates the CLI logger. Debug switches the level; output goes
// to stderr so piped stdout stays clean.
func NewLogger(debug bool) *slog.Logger {
	if debug {
		return logging.New(slog.LevelDebug)
	}
	return logging.New(slog.LevelWarn)
}

// NewEngine builds an engine from the configuration. The returned fetcher
// is the one the engine uses, handed back so commands can list trees.
func NewEngine(cfg Config, logger *slog.Logger, opts ...arbor.Option) (*arbor.Engine, ports.TreeFetcher, error) {
	fetcher, err := newFetcher(cfg)
	if err != nil {
		return nil, nil, err
	}

	engineOpts := []arbor.Option{arbor.WithLogger(logger)}
	if cfg.UserKey != "" {
		engineOpts = append(engineOpts, arbor.WithUserKey(cfg.UserKey))
	}
	if cfg.SubmitOnInvalid {
		engineOpts = append(engineOpts, arbor.WithSubmitOnInvalid(true))
	}
	if store := newStore(cfg, fetcher); store != nil {
		engineOpts = append(engineOpts, arbor.WithUserDataStore(store))
	}
	engineOpts = append(engineOpts, opts...)

	engine, err := arbor.New(fetcher, engineOpts...)
	if err != nil {
		return nil, nil, err
	}
	return engine, fetcher, nil
}

func newFetcher(cfg Config) (ports.TreeFetcher, error) {
	if cfg.Backend != "" {
		return backendadapter.New(cfg.Backend), nil
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	return loadDir(dir)
}

func newStore(cfg Config, fetcher ports.TreeFetcher) ports.UserDataStore {
	if cfg.Redis != "" {
		return redisadapter.New(cfg.Redis, cfg.RedisPassword, cfg.RedisDB)
	}
	// The backend speaks both protocols.
	if client, ok := fetcher.(*backendadapter.Client); ok {
		return client
	}
	return nil
}

// loadDir registers every tree JSON file in dir on a memory fetcher.
func loadDir(dir string) (*memory.Fetcher, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree directory: %w", err)
	}

	fetcher := memory.NewFetcher()
	found := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		var head struct {
			UID  string `json:"_uid"`
			Type string `json:"_typ"`
		}
		if err := json.Unmarshal(data, &head); err != nil || head.UID == "" {
			// Not a tree file; skip.
			continue
		}
		if head.Type != "" && head.Type != string(decision.KindRoot) {
			continue
		}
		fetcher.Register(head.UID, data)
		found++
	}
	if found == 0 {
		return nil, fmt.Errorf("no tree files found in %s", dir)
	}
	return fetcher, nil
}

// ResolveStartTree picks the tree to begin with. An explicit uid wins;
// otherwise the first tree that no other tree links to as next.
func ResolveStartTree(ctx context.Context, fetcher ports.TreeFetcher, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	uids, err := fetcher.ListTrees(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list trees: %w", err)
	}
	if len(uids) == 0 {
		return "", fmt.Errorf("no trees available")
	}

	linked := make(map[string]bool)
	for _, uid := range uids {
		data, err := fetcher.FetchTree(ctx, ports.TreeRequest{UID: uid})
		if err != nil {
			continue
		}
		var head struct {
			Next string `json:"next"`
		}
		if json.Unmarshal(data, &head) == nil && head.Next != "" {
			linked[head.Next] = true
		}
	}
	for _, uid := range uids {
		if !linked[uid] {
			return uid, nil
		}
	}
	return uids[0], nil
}
