package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const v0Entry = `{"chapter_id": 1001, "status": "completed"}`

func TestNormalizePayload_V0ChaptersKey(t *testing.T) {
	chapters, migrated := normalizePayload([]byte(`{"chapters": {"1001": ` + v0Entry + `}}`))
	assert.True(t, migrated)
	require.Len(t, chapters, 1)
	assert.Equal(t, StatusCompleted, chapters["1001"].Status)
}

func TestNormalizePayload_V0BareTopLevelMap(t *testing.T) {
	chapters, migrated := normalizePayload([]byte(`{"1001": ` + v0Entry + `}`))
	assert.True(t, migrated)
	require.Len(t, chapters, 1)
	assert.Equal(t, 1001, chapters["1001"].ChapterID)
}

func TestNormalizePayload_V1(t *testing.T) {
	chapters, migrated := normalizePayload([]byte(`{"version": 1, "chapters": {"1001": ` + v0Entry + `}}`))
	assert.True(t, migrated)
	assert.Len(t, chapters, 1)
}

func TestNormalizePayload_CurrentVersionUntouched(t *testing.T) {
	serialized := `{"version": 2, "schema": "` + Schema + `", "chapters": {"1001": ` + v0Entry + `}}`
	chapters, migrated := normalizePayload([]byte(serialized))
	assert.False(t, migrated)
	assert.Len(t, chapters, 1)
}

func TestNormalizePayload_NewerVersionBestEffort(t *testing.T) {
	serialized := `{"version": 9, "chapters": {"1001": ` + v0Entry + `}, "future_field": true}`
	chapters, migrated := normalizePayload([]byte(serialized))
	assert.False(t, migrated)
	assert.Len(t, chapters, 1)
}

func TestNormalizePayload_Garbage(t *testing.T) {
	chapters, migrated := normalizePayload([]byte("not json"))
	assert.False(t, migrated)
	assert.Empty(t, chapters)

	chapters, migrated = normalizePayload([]byte(`"a string"`))
	assert.False(t, migrated)
	assert.Empty(t, chapters)
}

// Migration equivalence: the same chapter state expressed in every legacy
// layout loads to identical entries.
func TestNormalizePayload_Equivalence(t *testing.T) {
	layouts := map[string]string{
		"v0-bare":     `{"1001": ` + v0Entry + `}`,
		"v0-chapters": `{"chapters": {"1001": ` + v0Entry + `}}`,
		"v1":          `{"version": 1, "chapters": {"1001": ` + v0Entry + `}}`,
		"v2":          `{"version": 2, "schema": "` + Schema + `", "chapters": {"1001": ` + v0Entry + `}}`,
	}
	want := Entry{ChapterID: 1001, Status: StatusCompleted}
	for name, serialized := range layouts {
		chapters, _ := normalizePayload([]byte(serialized))
		assert.Equal(t, want, chapters["1001"], "layout %s", name)
	}
}

// A legacy file opened in autosave mode is rewritten at the current version
// on load.
func TestOpen_MigratesLegacyFileInPlace(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"1001": ` + v0Entry + `}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, Filename), []byte(legacy), 0o644))

	m, err := Open(dir)
	require.NoError(t, err)
	assert.True(t, m.IsCompleted(1001))

	payload := readPayload(t, dir)
	assert.Equal(t, Version, payload.Version)
	assert.Equal(t, Schema, payload.Schema)
	assert.Len(t, payload.Chapters, 1)
}
