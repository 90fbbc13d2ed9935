package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luinbytes/iconic/logbook"
	"github.com/luinbytes/iconic/scan"
	"github.com/luinbytes/iconic/storage"
)

func TestGenerateScans(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, generate(root, time.Now()))
	assert.FileExists(t, filepath.Join(root, "Downloads", "Serum.png"))

	p, err := storage.NewLocalProvider(root)
	require.NoError(t, err)
	res, err := scan.New(p, logbook.Discard).Scan(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Bundles, len(samples))
	assert.Len(t, res.Leftovers, len(clutter))
}
