package cli_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, set map[string]any) (*config.Config, func() *cli.Runtime) {
	t.Helper()
	v, err := config.New("")
	require.NoError(t, err)
	v.Set("transport.driver", "memory")
	for k, val := range set {
		v.Set(k, val)
	}
	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg, func() *cli.Runtime {
		rt, err := cli.Build(context.Background(), v, cfg, logging.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = rt.Close() })
		return rt
	}
}

func TestBuild_FileStoreWithSeed(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "contacts.yaml")
	require.NoError(t, os.WriteFile(seed, []byte("- name: Amy\n  phone: \"2125550001\"\n"), 0o644))

	_, build := load(t, map[string]any{
		"store.driver":  "file",
		"store.dir":     filepath.Join(dir, "state"),
		"contacts.seed": seed,
	})
	rt := build()
	assert.Len(t, rt.Engine.ListContacts(), 1)

	// A second runtime over the same directory sees the same contacts.
	again := build()
	assert.Len(t, again.Engine.ListContacts(), 1)
}

func TestBuild_RedisWithLockAndEncryption(t *testing.T) {
	mr := miniredis.RunT(t)
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))

	_, build := load(t, map[string]any{
		"store.driver":          "redis",
		"store.redis.addr":      mr.Addr(),
		"store.redis.lock":      true,
		"store.encryption_key":  key,
		"store.redact_patterns": []string{"pin"},
	})
	rt := build()
	ctx := context.Background()

	_, err := rt.Engine.SetContext(ctx, "2125550001", map[string]any{"pin": "1234"})
	require.NoError(t, err)

	raw, err := mr.Get("parley:conversations:+12125550001")
	require.NoError(t, err)
	assert.Contains(t, raw, "__encrypted__")
	assert.NotContains(t, raw, "1234")

	values, err := rt.Engine.GetContext(ctx, "2125550001")
	require.NoError(t, err)
	assert.Equal(t, "***", values["pin"])
}

func TestBuild_BadEncryptionKey(t *testing.T) {
	v, err := config.New("")
	require.NoError(t, err)
	v.Set("transport.driver", "memory")
	v.Set("store.driver", "memory")
	v.Set("store.encryption_key", "c2hvcnQ=")
	cfg, err := config.Load(v)
	require.NoError(t, err)

	_, err = cli.Build(context.Background(), v, cfg, logging.NewNop())
	assert.ErrorContains(t, err, "store.encryption_key")
}

func TestBuild_MetricsFollowEngine(t *testing.T) {
	_, build := load(t, map[string]any{"store.driver": "memory"})
	rt := build()

	_, err := rt.Engine.Send(context.Background(), "2125550001", pipeline.Content{Text: "hi"})
	require.NoError(t, err)

	families, err := rt.Registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "parley_messages_sent_total" {
			found = true
			assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}
