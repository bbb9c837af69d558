package data_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrmt/openrmt/internal/data"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadJSONL(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads records", func(t *testing.T) {
		path := writeFile(t, dir, "ok.jsonl",
			`{"prompt":"q1","chosen":"a","rejected":"b"}
{"chosen":"c","rejected":"d"}

{"prompt":"q3","chosen":"e","rejected":"f"}
`)
		got, err := data.ReadJSONL(path)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, data.Pair{Prompt: "q1", Chosen: "a", Rejected: "b"}, got[0])
		assert.Equal(t, data.Pair{Chosen: "c", Rejected: "d"}, got[1])
	})

	t.Run("missing field fails the run", func(t *testing.T) {
		path := writeFile(t, dir, "bad.jsonl", `{"prompt":"q","chosen":"only"}`+"\n")
		_, err := data.ReadJSONL(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := data.ReadJSONL(filepath.Join(dir, "nope.jsonl"))
		assert.Error(t, err)
	})
}

func TestLoadGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shard-00.jsonl", `{"chosen":"a0","rejected":"b0"}`+"\n")
	writeFile(t, dir, "shard-01.jsonl", `{"chosen":"a1","rejected":"b1"}`+"\n")
	writeFile(t, dir, "shard-02.jsonl", `{"chosen":"a2","rejected":"b2"}`+"\n")

	t.Run("preserves shard order regardless of workers", func(t *testing.T) {
		got, err := data.LoadGlob(context.Background(), filepath.Join(dir, "shard-*.jsonl"), 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "a0", got[0].Chosen)
		assert.Equal(t, "a1", got[1].Chosen)
		assert.Equal(t, "a2", got[2].Chosen)
	})

	t.Run("no matching shards", func(t *testing.T) {
		_, err := data.LoadGlob(context.Background(), filepath.Join(dir, "missing-*.jsonl"), 2)
		assert.Error(t, err)
	})
}
