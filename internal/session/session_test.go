package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWindowID(t *testing.T) {
	id := NewWindowID()
	require.True(t, strings.HasPrefix(id, "screenId_"))
	_, err := uuid.Parse(strings.TrimPrefix(id, "screenId_"))
	assert.NoError(t, err)
	assert.NotEqual(t, id, NewWindowID())
}

func TestFileProvider_StableAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	first, err := NewFileProvider(path)
	require.NoError(t, err)
	id, err := first.WindowID("x11:0x3a00007")
	require.NoError(t, err)

	again, err := first.WindowID("x11:0x3a00007")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	// a restarted process reads the same registry
	second, err := NewFileProvider(path)
	require.NoError(t, err)
	reloaded, err := second.WindowID("x11:0x3a00007")
	require.NoError(t, err)
	assert.Equal(t, id, reloaded)

	other, err := second.WindowID("x11:0x4000001")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	list, err := second.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestFileProvider_Forget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	p, err := NewFileProvider(path)
	require.NoError(t, err)

	id, err := p.WindowID("k")
	require.NoError(t, err)
	require.NoError(t, p.Forget("k"))
	require.NoError(t, p.Forget("never-seen"))

	fresh, err := p.WindowID("k")
	require.NoError(t, err)
	assert.NotEqual(t, id, fresh)
}

func TestFileProvider_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	p, err := NewFileProvider(path)
	require.NoError(t, err)

	_, err = p.WindowID("")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))
	_, err = p.WindowID("k")
	assert.ErrorContains(t, err, "failed to parse session registry")
}

func TestFileProvider_DefaultPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	p, err := NewFileProvider("")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p.Path(), "winmesh-sessions.json"))
}

func TestSession_CachesAndForgets(t *testing.T) {
	provider := NewMemoryProvider()
	s := Bind(provider, "demo-1")
	assert.Equal(t, "demo-1", s.Key())

	id, err := s.WindowID()
	require.NoError(t, err)
	again, err := s.WindowID()
	require.NoError(t, err)
	assert.Equal(t, id, again)

	require.NoError(t, s.Forget())
	fresh, err := s.WindowID()
	require.NoError(t, err)
	assert.NotEqual(t, id, fresh)
}
