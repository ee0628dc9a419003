// Package memory provides in-process implementations of the engine's
// storage ports, used for tests, examples and single binary deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/arbor/pkg/ports"
)

// Fetcher implements ports.TreeFetcher over an in-memory map of wire
// encoded trees. Safe for concurrent use.
type Fetcher struct {
	mu    sync.RWMutex
	trees map[string][]byte
}

// NewFetcher creates an empty in-memory fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		trees: make(map[string][]byte),
	}
}

// Register stores the wire encoded definition of a tree.
func (f *Fetcher) Register(uid string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trees[uid] = append([]byte(nil), data...)
}

// FetchTree returns the registered definition. Version pins are ignored;
// the fetcher only ever holds one revision per uid.
func (f *Fetcher) FetchTree(ctx context.Context, req ports.TreeRequest) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, ok := f.trees[req.UID]
	if !ok {
		return nil, ports.ErrTreeNotFound
	}
	return append([]byte(nil), data...), nil
}

// ListTrees returns the registered uids in sorted order.
func (f *Fetcher) ListTrees(ctx context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	uids := make([]string, 0, len(f.trees))
	for uid := range f.trees {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids, nil
}
