package runlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords(base time.Time) []Record {
	return []Record{
		{RunID: "a", Strategy: "multistart", Mode: "capacity", Timestamp: base, Objective: 4.2, Feasible: true,
			Loads: []Load{{FleetID: 0, Customers: 2, Assigned: 10}}},
		{RunID: "b", Strategy: "genetic", Timestamp: base.Add(time.Minute), Objective: 12, Feasible: true,
			Solution: []int{0, 1, 1}},
		{RunID: "c", Strategy: "multistart", Mode: "volume", Timestamp: base.Add(2 * time.Minute), Objective: 5},
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, r := range sampleRecords(base) {
		require.NoError(t, s.Append(ctx, r))
	}

	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].RunID)
	assert.Equal(t, []Load{{FleetID: 0, Customers: 2, Assigned: 10}}, all[0].Loads)
	assert.Equal(t, []int{0, 1, 1}, all[1].Solution)

	ms, err := s.Query(ctx, Query{Strategy: "multistart"})
	require.NoError(t, err)
	assert.Len(t, ms, 2)

	recent, err := s.Query(ctx, Query{Start: base.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	last, err := s.Query(ctx, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "c", last[0].RunID)

	one, err := s.Query(ctx, Query{RunID: "b", End: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "genetic", one[0].Strategy)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestRotatingJSONLStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "runs.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestRotatingJSONLStoreRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 5, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	big := Record{RunID: "big", Strategy: "genetic", Timestamp: time.Now(), Solution: make([]int, 40000)}
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Append(context.Background(), big))
	}
	files, err := filepath.Glob(filepath.Join(filepath.Dir(path), "runs*.jsonl"))
	require.NoError(t, err)
	assert.Greater(t, len(files), 1, "expected rotated backups")

	recs, err := s.Query(context.Background(), Query{RunID: "big"})
	require.NoError(t, err)
	assert.NotEmpty(t, recs)
}

func TestRotatingJSONLStoreSkipsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	b, err := json.Marshal(Record{RunID: "ok", Timestamp: time.Now()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{"not json", string(b)}, "\n")+"\n"), 0o644))

	s, err := NewRotatingJSONLStore(path, 1, 1, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	recs, err := s.Query(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ok", recs[0].RunID)
}

func TestConfigDefaultsAndOpen(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, "jsonl", cfg.Backend)
	assert.Equal(t, "runs.jsonl", cfg.Path)
	require.NoError(t, cfg.Validate())

	cfg = Config{Backend: "sqlite"}
	cfg.SetDefaults()
	assert.Equal(t, "runs.db", cfg.Path)

	s, err := Open(Config{Backend: "none"})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)

	_, err = Open(Config{Backend: "postgres"})
	assert.Error(t, err)

	s, err = Open(Config{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
