package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestFileSink_Validate(t *testing.T) {
	t.Parallel()

	source := t.TempDir()

	t.Run("writable directory passes", func(t *testing.T) {
		t.Parallel()
		sink := NewFileSink(source, t.TempDir())
		assert.NoError(t, sink.Validate(context.Background()))
	})

	t.Run("missing directory fails", func(t *testing.T) {
		t.Parallel()
		sink := NewFileSink(source, filepath.Join(t.TempDir(), "does-not-exist"))
		assert.Error(t, sink.Validate(context.Background()))
	})

	t.Run("regular file fails", func(t *testing.T) {
		t.Parallel()
		dest := filepath.Join(t.TempDir(), "file")
		writeFile(t, dest, "x")
		sink := NewFileSink(source, dest)
		assert.Error(t, sink.Validate(context.Background()))
	})
}

func TestFileSink_MirrorSingleFile(t *testing.T) {
	t.Parallel()

	source := t.TempDir()
	dest := t.TempDir()
	writeFile(t, filepath.Join(source, "roster.csv"), "emp-001,present")

	sink := NewFileSink(source, dest)
	result, err := sink.Mirror(context.Background(), "roster.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ItemsCopied)

	copied, err := os.ReadFile(filepath.Join(dest, "roster.csv"))
	require.NoError(t, err)
	assert.Equal(t, "emp-001,present", string(copied))
}

func TestFileSink_MirrorDirectory(t *testing.T) {
	t.Parallel()

	source := t.TempDir()
	dest := t.TempDir()
	writeFile(t, filepath.Join(source, "attendance", "2026-03", "emp-001.json"), `{"present":true}`)
	writeFile(t, filepath.Join(source, "attendance", "2026-03", "emp-002.json"), `{"present":false}`)

	sink := NewFileSink(source, dest)
	result, err := sink.Mirror(context.Background(), "attendance")
	require.NoError(t, err)
	assert.Equal(t, 2, result.ItemsCopied)

	copied, err := os.ReadFile(filepath.Join(dest, "attendance", "2026-03", "emp-001.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"present":true}`, string(copied))
}

func TestFileSink_MirrorIsIdempotent(t *testing.T) {
	t.Parallel()

	source := t.TempDir()
	dest := t.TempDir()
	writeFile(t, filepath.Join(source, "roster.csv"), "emp-001,present")

	sink := NewFileSink(source, dest)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := sink.Mirror(ctx, "roster.csv")
		require.NoError(t, err)
		assert.Equal(t, 1, result.ItemsCopied)
	}

	copied, err := os.ReadFile(filepath.Join(dest, "roster.csv"))
	require.NoError(t, err)
	assert.Equal(t, "emp-001,present", string(copied))
}

func TestFileSink_MirrorMissingRecordSet(t *testing.T) {
	t.Parallel()

	sink := NewFileSink(t.TempDir(), t.TempDir())
	_, err := sink.Mirror(context.Background(), "nope")
	assert.ErrorContains(t, err, "not readable")
}

func TestFileSink_Describe(t *testing.T) {
	t.Parallel()

	sink := NewFileSink("/src", "/mnt/backup")
	assert.Equal(t, "/mnt/backup", sink.Describe())
}
