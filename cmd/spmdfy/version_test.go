package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderVersionJSON(t *testing.T) {
	var buf bytes.Buffer
	info := versionInfo{Version: "1.2.3", GitCommit: "abc"}
	require.NoError(t, renderVersionJSON(&buf, info, true))

	var payload versionPayload
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	assert.Equal(t, "spmdfy", payload.Tool)
	assert.Equal(t, "1.2.3", payload.Version)
	assert.Equal(t, "abc", payload.GitCommit)
	assert.Equal(t, "unknown", payload.BuildDate)
}

func TestRenderVersionPretty(t *testing.T) {
	var buf bytes.Buffer
	renderVersionPretty(&buf, versionInfo{Version: "1.2.3"}, false)
	assert.Contains(t, buf.String(), "spmdfy ")
	assert.NotContains(t, buf.String(), "commit:")
}
