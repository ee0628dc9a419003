package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/ports"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	path := writeFile(t, dir, "arbor.yaml", "backend: http://localhost:9000\nuser_key: u-1\nsubmit_on_invalid: true\n")
	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:9000", cfg.Backend)
	require.Equal(t, "u-1", cfg.UserKey)
	require.True(t, cfg.SubmitOnInvalid)

	path = writeFile(t, dir, "arbor.json", `{"redis": "localhost:6379", "redis_db": 2}`)
	cfg, err = LoadConfig(path, true)
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", cfg.Redis)
	require.Equal(t, 2, cfg.RedisDB)
}

func TestLoadConfigMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	// Default path: absence is fine.
	cfg, err := LoadConfig(missing, false)
	require.NoError(t, err)
	require.Equal(t, Config{}, cfg)

	// Explicit path: absence is an error.
	_, err = LoadConfig(missing, true)
	require.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.json", `{"_uid": "form-1", "_typ": "decision_root", "next": "form-2", "_chi": []}`)
	writeFile(t, dir, "two.json", `{"_uid": "form-2", "_typ": "decision_root", "_chi": []}`)
	writeFile(t, dir, "notes.txt", "not a tree")
	writeFile(t, dir, "other.json", `{"some": "unrelated json"}`)

	fetcher, err := loadDir(dir)
	require.NoError(t, err)

	uids, err := fetcher.ListTrees(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"form-1", "form-2"}, uids)
}

func TestLoadDirEmpty(t *testing.T) {
	_, err := loadDir(t.TempDir())
	require.Error(t, err)
}

func TestResolveStartTree(t *testing.T) {
	dir := t.TempDir()
	// form-2 links to form-3, form-1 links to form-2: form-1 is the head.
	writeFile(t, dir, "b.json", `{"_uid": "form-2", "_typ": "decision_root", "next": "form-3", "_chi": []}`)
	writeFile(t, dir, "c.json", `{"_uid": "form-3", "_typ": "decision_root", "_chi": []}`)
	writeFile(t, dir, "a.json", `{"_uid": "form-1", "_typ": "decision_root", "next": "form-2", "_chi": []}`)

	fetcher, err := loadDir(dir)
	require.NoError(t, err)

	uid, err := ResolveStartTree(context.Background(), fetcher, "")
	require.NoError(t, err)
	require.Equal(t, "form-1", uid)

	uid, err = ResolveStartTree(context.Background(), fetcher, "form-3")
	require.NoError(t, err)
	require.Equal(t, "form-3", uid)
}

func TestNewEngineFromDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.json", `{"_uid": "form-1", "_typ": "decision_root", "_chi": []}`)

	engine, fetcher, err := NewEngine(Config{Dir: dir, UserKey: "u-1"}, NewLogger(false))
	require.NoError(t, err)
	defer engine.Close()

	require.Implements(t, (*ports.TreeFetcher)(nil), fetcher)

	tree, err := engine.Load(context.Background(), "form-1")
	require.NoError(t, err)
	require.Equal(t, "form-1", tree.Meta().UID)
}
