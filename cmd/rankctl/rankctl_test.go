package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t      *testing.T
	mr     *miniredis.Miniredis
	client *redis.Client
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &cli{t: t, mr: mr, client: client}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand(&RootOptions{client: c.client})
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) seed(board string, scores map[string]string) {
	c.t.Helper()
	for name, score := range scores {
		_, err := c.run("--board", board, "set", name, score)
		require.NoError(c.t, err)
	}
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "rankctl", cmd.Use)

	for _, name := range []string{"set", "incr", "rm", "clear", "count", "get", "around", "page"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	for flag, def := range map[string]string{"addr": "localhost:6379", "board": "default", "polarity": "desc", "format": "text", "prefix": "lb:"} {
		f := cmd.PersistentFlags().Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, def, f.DefValue, flag)
	}
}

func TestSetGetAndKeyLayout(t *testing.T) {
	c := newCLI(t)
	c.seed("weekly", map[string]string{"Michael": "300", "Bryan": "250", "Scott": "200"})

	assert.True(t, c.mr.Exists("lb:weekly"))

	out, err := c.run("--board", "weekly", "--format", "json", "get", "Bryan")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Name  string  `json:"name"`
			Score float64 `json:"score"`
			Rank  int64   `json:"rank"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 250.0, resp.Data.Score)
	assert.Equal(t, int64(2), resp.Data.Rank)

	_, err = c.run("--board", "weekly", "get", "Nobody")
	assert.Error(t, err)
}

func TestIncrRemoveClearCount(t *testing.T) {
	c := newCLI(t)
	c.seed("weekly", map[string]string{"a": "1", "b": "2"})

	out, err := c.run("--board", "weekly", "incr", "a", "4.5")
	require.NoError(t, err)
	assert.Contains(t, out, "5.5")

	_, err = c.run("--board", "weekly", "rm", "b")
	require.NoError(t, err)
	out, err = c.run("--board", "weekly", "count")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	_, err = c.run("--board", "weekly", "clear")
	require.NoError(t, err)
	assert.False(t, c.mr.Exists("lb:weekly"))
}

func TestAroundAndPage(t *testing.T) {
	c := newCLI(t)
	c.seed("weekly", map[string]string{"Michael": "300", "Bryan": "250", "Scott": "200", "Eric": "150", "John": "100"})

	out, err := c.run("--board", "weekly", "around", "Scott", "--radius", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "RANK")
	assert.Contains(t, out, "Bryan")
	assert.Contains(t, out, "Eric")
	assert.NotContains(t, out, "Michael")

	out, err = c.run("--board", "weekly", "page", "2", "--size", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "page 2/3 (5 entries)")
	assert.Contains(t, out, "Scott")
	assert.Contains(t, out, "Eric")
}

func TestAscendingBoard(t *testing.T) {
	c := newCLI(t)
	for name, score := range map[string]string{"ann": "71", "bob": "68", "cat": "74"} {
		_, err := c.run("-b", "golf", "-p", "asc", "set", name, score)
		require.NoError(t, err)
	}
	out, err := c.run("-b", "golf", "-p", "asc", "--format", "json", "get", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, `"rank":1`)
}

func TestInvalidInput(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("--format", "yaml", "count")
	assert.ErrorContains(t, err, "invalid format")

	_, err = c.run("--polarity", "sideways", "count")
	assert.Error(t, err)

	_, err = c.run("--board", "bad board", "count")
	assert.Error(t, err)

	_, err = c.run("set", "a", "lots")
	assert.ErrorContains(t, err, "invalid score")

	_, err = c.run("set", "a", "Inf")
	assert.ErrorContains(t, err, "invalid score")

	_, err = c.run("page", "first")
	assert.Error(t, err)
}
