package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/effective-security/opsdash/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeTools(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, describeTools(&buf, "yaml"))
	assert.Contains(t, buf.String(), "- name: get_clients\n  description: Get list of clients from the CRM database\n")
	assert.Contains(t, buf.String(), "- name: delete_calendar_event\n")

	buf.Reset()
	require.NoError(t, describeTools(&buf, "JSON"))
	var defs []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &defs))
	assert.Len(t, defs, 15)
	assert.Equal(t, "function", defs[0]["type"])

	err := describeTools(&buf, "toml")
	assert.EqualError(t, err, "unsupported format: toml")
}

func TestOpenStores(t *testing.T) {
	cfg := &config.Config{}
	cfg.Google.TokenFile = t.TempDir() + "/tokens.json"

	st, closeStore, err := openStore(context.Background(), cfg, true)
	require.NoError(t, err)
	assert.NotNil(t, st)
	closeStore()

	tokens, closeTokens, err := openTokenStore(cfg)
	require.NoError(t, err)
	assert.NotNil(t, tokens)
	closeTokens()

	cfg.Redis.URL = "ftp://nope"
	_, _, err = openTokenStore(cfg)
	assert.ErrorContains(t, err, "invalid redis url")
}
