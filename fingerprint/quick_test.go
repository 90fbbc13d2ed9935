package fingerprint

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luinbytes/iconic/storage"
)

func TestHash(t *testing.T) {
	assert.Equal(t, uint32(5381), Hash(nil))
	// 5381*33 + 'a'
	assert.Equal(t, uint32(177670), Hash([]byte("a")))
}

func TestQuick(t *testing.T) {
	dir := t.TempDir()
	p, err := storage.NewLocalProvider(dir)
	require.NoError(t, err)
	ctx := context.Background()

	small := []byte("preset-data")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "small.fst"), small, 0644))

	large := bytes.Repeat([]byte{7}, PrefixSize*3)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "large.fst"), large, 0644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.fst"), nil, 0644))

	assert.Equal(t, fmt.Sprintf("%d-%d", len(small), Hash(small)), Quick(ctx, p, "small.fst", int64(len(small))))
	assert.Equal(t, fmt.Sprintf("%d-%d", len(large), Hash(large[:PrefixSize])), Quick(ctx, p, "large.fst", int64(len(large))))
	assert.Equal(t, Empty, Quick(ctx, p, "empty.fst", 0))
	assert.Equal(t, ReadError, Quick(ctx, p, "missing.fst", 10))
}

func TestIsSentinel(t *testing.T) {
	assert.True(t, IsSentinel(Empty))
	assert.True(t, IsSentinel(ReadError))
	assert.True(t, IsSentinel(""))
	assert.False(t, IsSentinel("10-12345"))
}
