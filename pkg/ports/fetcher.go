package ports

import (
	"context"
	"errors"
)

// ErrTreeNotFound is returned by a TreeFetcher when no tree exists for the
// requested uid.
var ErrTreeNotFound = errors.New("tree not found")

// TreeRequest identifies a tree to fetch. Version and VersionHash pin the
// exact published revision; both zero means latest.
type TreeRequest struct {
	UID         string
	Version     int
	VersionHash string
}

// TreeFetcher defines how the engine retrieves decision tree definitions.
// This allows the storage layer (backend API, FS, Memory) to be decoupled.
type TreeFetcher interface {
	// FetchTree retrieves the wire encoded definition of a tree.
	// It returns the raw bytes (which the builder will parse) or an error.
	FetchTree(ctx context.Context, req TreeRequest) ([]byte, error)

	// ListTrees returns the uids of all trees the fetcher can serve.
	// Used for introspection and the CLI tree listing.
	ListTrees(ctx context.Context) ([]string, error)
}
