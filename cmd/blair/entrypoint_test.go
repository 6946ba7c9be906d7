package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntrypointFlags(t *testing.T) {
	app := Entrypoint()

	var names []string
	for _, f := range app.Flags {
		names = append(names, f.Names()[0])
	}

	assert.ElementsMatch(t, []string{configFlag, watchFlag, metricsAddrFlag, logLevelFlag, historyFlag}, names)
}

func TestEntrypointRejectsBadInput(t *testing.T) {
	app := Entrypoint()

	assert.Error(t, app.Run([]string{"blair", "--log-level", "loud"}))
	assert.ErrorContains(t, app.Run([]string{"blair"}), "no interfaces")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ports: [{name: a, mode: hub}]"), 0o644))

	assert.ErrorContains(t, app.Run([]string{"blair", "--config", path}), "unknown mode")
}
