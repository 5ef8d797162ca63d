package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	origDir := getConfigDirFunc
	origPath := getConfigPathFunc
	getConfigDirFunc = func() (string, error) { return dir, nil }
	getConfigPathFunc = func() (string, error) { return filepath.Join(dir, "config.json"), nil }
	t.Cleanup(func() {
		getConfigDirFunc = origDir
		getConfigPathFunc = origPath
	})

	return dir
}

func TestGlobalConfig_SaveAndLoad(t *testing.T) {
	withTempConfigDir(t)

	cfg := &GlobalConfig{ActorID: "user-7", APIURL: "http://example.test:9000"}
	require.NoError(t, SaveGlobalConfig(cfg))

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "user-7", loaded.ActorID)
	assert.Equal(t, "http://example.test:9000", loaded.APIURL)
}

func TestGlobalConfig_LoadMissingReturnsNil(t *testing.T) {
	withTempConfigDir(t)

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestGlobalConfig_SaveNilFails(t *testing.T) {
	withTempConfigDir(t)

	assert.Error(t, SaveGlobalConfig(nil))
}

func TestGlobalConfig_FilePermissions(t *testing.T) {
	dir := withTempConfigDir(t)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{ActorID: "user-7"}))

	info, err := os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestGlobalConfig_Delete(t *testing.T) {
	withTempConfigDir(t)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{ActorID: "user-7"}))
	require.NoError(t, DeleteGlobalConfig())

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Deleting twice is fine
	assert.NoError(t, DeleteGlobalConfig())
}
