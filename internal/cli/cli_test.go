package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstrYoda/repoql"
	"github.com/mstrYoda/repoql/auth"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"serve", "query", "explain", "put", "token"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
	create, _, err := root.Find([]string{"token", "create"})
	require.NoError(t, err)
	assert.NotNil(t, create.Flags().Lookup("attr"))

	for _, flag := range []string{"config", "dir", "format", "verbose"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
	put, _, _ := root.Find([]string{"put"})
	assert.Equal(t, repoql.BaseNodeType, put.Flags().Lookup("type").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "--format", "xml", "--dir", t.TempDir(), "explain", "SELECT * FROM nt:base AS n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestParseAssignments(t *testing.T) {
	values, err := parseAssignments([]string{
		"title=Go generics",
		"size=LONG:1200",
		"ratio=double:0.5",
		"url=http://example.com",
		"empty=",
	})
	require.NoError(t, err)
	assert.Equal(t, repoql.TypeString, values["title"].Type())
	assert.Equal(t, "Go generics", values["title"].Text())
	assert.Equal(t, repoql.TypeLong, values["size"].Type())
	assert.Equal(t, "1200", values["size"].Text())
	assert.Equal(t, repoql.TypeDouble, values["ratio"].Type())
	assert.Equal(t, "http://example.com", values["url"].Text(), "unknown prefix stays a string")
	assert.Equal(t, "", values["empty"].Text())

	for _, bad := range []string{"novalue", "=x", "n=LONG:abc"} {
		_, err := parseAssignments([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := filepath.Join(t.TempDir(), "repoql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dir: /var/lib/repoql
log_level: debug
repository:
  workers: 3
  max_result_rows: 50
  query_timeout: 2s
auth:
  enabled: true
  token_expiration: 30m
`), 0o644))

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/repoql", cfg.Dir)
	assert.Equal(t, ":8080", cfg.Listen, "unset keys keep defaults")
	assert.Equal(t, slog.LevelDebug, cfg.logLevel())
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Auth.Expiration)
	assert.Equal(t, auth.DefaultRefreshInterval, cfg.Auth.RefreshInterval)

	opts := cfg.Options(nil)
	assert.Equal(t, 3, opts.WorkerPoolSize)
	assert.Equal(t, 50, opts.MaxResultRows)
	assert.Equal(t, 2*time.Second, opts.DefaultQueryTimeout)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("repository: [1, 2"), 0o644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	assert.Equal(t, slog.LevelInfo, Config{LogLevel: "loud"}.logLevel())
}

func TestPutQueryExplain(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "--dir", dir, "put", "/blog", "--type", "nt:folder")
	require.NoError(t, err)
	assert.Equal(t, "stored /blog\n", out)
	_, err = run(t, "--dir", dir, "put", "/blog/go", "-t", "nt:unstructured", "-p", "title=Go generics", "-p", "size=LONG:1200")
	require.NoError(t, err)
	_, err = run(t, "--dir", dir, "put", "/blog/rust", "-t", "nt:unstructured", "-p", "title=Rust traits", "-p", "size=LONG:800")
	require.NoError(t, err)
	_, err = run(t, "--dir", dir, "put", "/nowhere/child")
	require.ErrorIs(t, err, repoql.ErrNodeNotFound)

	out, err = run(t, "--dir", dir, "--format", "json", "query",
		"SELECT n.title FROM nt:unstructured AS n WHERE n.size > $min", "--bind", "min=LONG:1000")
	require.NoError(t, err)
	var res repoql.ExecuteResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, []string{"n.title"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "/blog/go", res.Rows[0].Paths["n"])
	assert.Equal(t, "Go generics", res.Rows[0].Values["n.title"].Text())

	out, err = run(t, "--dir", dir, "query", "SELECT n.title FROM nt:unstructured AS n ORDER BY n.title")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 4, out)
	assert.True(t, strings.HasPrefix(lines[0], "path"))
	assert.Contains(t, lines[1], "/blog/go")
	assert.Contains(t, lines[2], "Rust traits")
	assert.Equal(t, "(2 rows)", lines[3])

	_, err = run(t, "--dir", dir, "query", "SELECT * FROM nt:base AS n WHERE n.x = $v")
	var unbound *repoql.UnboundVariableError
	require.ErrorAs(t, err, &unbound)
	assert.Equal(t, "v", unbound.Name)

	out, err = run(t, "--dir", dir, "explain", "SELECT * FROM nt:base AS n")
	require.NoError(t, err)
	assert.Equal(t, "Query: SELECT * FROM [nt:base] AS [n]\nScan: [nt:base] AS [n] (full scan)\nProject: *\n", out)
}

func TestTokenCreate(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "--dir", dir, "--format", "json", "token", "create", "alice", "--attr", ".client=cli")
	require.NoError(t, err)
	var resp map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "alice", resp["user"])

	p, err := auth.OpenBoltTokenProvider(filepath.Join(dir, tokenFile), auth.ProviderOptions{})
	require.NoError(t, err)
	defer p.Close()
	a := auth.NewAuthenticator(p, nil)
	info, err := a.Authenticate(auth.Credentials{
		Token:      resp["token"],
		Attributes: map[string]string{".client": "cli"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", info.UserID())

	_, err = run(t, "--dir", dir, "token", "create", "bob", "--attr", "broken")
	assert.Error(t, err)
}
