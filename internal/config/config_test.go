package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CONFIG_TEST_STR", "value")
	assert.Equal(t, "value", envStr("CONFIG_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", envStr("CONFIG_TEST_MISSING", "fallback"))

	t.Setenv("CONFIG_TEST_INT", "42")
	assert.Equal(t, 42, envInt("CONFIG_TEST_INT", 7))
	t.Setenv("CONFIG_TEST_INT", "not a number")
	assert.Equal(t, 7, envInt("CONFIG_TEST_INT", 7))
	assert.Equal(t, 7, envInt("CONFIG_TEST_INT_MISSING", 7))
}

func TestLoadEnvFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nENVFILE_PLAIN=plain\nENVFILE_QUOTED=\"quoted value\"\nENVFILE_KEPT=from-file\nbroken line\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	// Real env vars win over .env entries.
	t.Setenv("ENVFILE_KEPT", "from-env")
	t.Setenv("ENVFILE_PLAIN", "")
	t.Setenv("ENVFILE_QUOTED", "")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	loadEnvFrom(f)

	assert.Equal(t, "plain", os.Getenv("ENVFILE_PLAIN"))
	assert.Equal(t, "quoted value", os.Getenv("ENVFILE_QUOTED"))
	assert.Equal(t, "from-env", os.Getenv("ENVFILE_KEPT"))
}

func TestDBMaxConnectionsDefault(t *testing.T) {
	c := &Config{}
	assert.Equal(t, 20, c.DBMaxConnections())
	c.Database.MaxConnections = 5
	assert.Equal(t, 5, c.DBMaxConnections())
}
