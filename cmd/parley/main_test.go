package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"n=3", "ok=true", "name=Amy", "tags=[\"a\"]", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"n":     3.0,
		"ok":    true,
		"name":  "Amy",
		"tags":  []any{"a"},
		"empty": "",
	}, got)

	_, err = parseAssignments([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"=x"})
	assert.Error(t, err)
}

// run executes the root command against a throwaway file store.
func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	t.Setenv("PARLEY_TRANSPORT_DRIVER", "memory")
	t.Setenv("PARLEY_STORE_DRIVER", "file")
	t.Setenv("PARLEY_STORE_DIR", filepath.Join(dir, "state"))
	t.Setenv("PARLEY_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestCLI_ContactsAndContext(t *testing.T) {
	dir := t.TempDir()

	assert.Contains(t, run(t, dir, "contacts", "add", "Amy", "(212) 555-0001"), "Added contact_amy")
	assert.Contains(t, run(t, dir, "contacts", "ls"), "+12125550001")

	out := run(t, dir, "context", "set", "contact_amy", "zip=10001", "pet=cat")
	assert.Contains(t, out, `"pet": "cat"`)

	out = run(t, dir, "inspect", "2125550001")
	assert.True(t, strings.HasPrefix(out, "# Amy (+12125550001)"), out)

	assert.Contains(t, run(t, dir, "version"), "parley version")
}
