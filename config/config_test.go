// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStringDefaultAndOverride(t *testing.T) {
	c := New("whookie.port 2000")
	assert.Equal(t, "2000", c.GetString("whookie.port", "1990"))
	assert.Equal(t, "1990", c.GetString("whookie.unset", "1990"))
}

func TestCaseInsensitiveKeys(t *testing.T) {
	c := New("Whookie.Port 2000")
	assert.Equal(t, "2000", c.GetString("whookie.port", "1990"))
}

func TestTypedAccessors(t *testing.T) {
	c := New("bootstrap.exit_on_errors true\nnnti.freelist.size 256\nbackburner.threads -3\nbootstrap.settle 250ms\nnnti.mbox.slot_size 2K")

	b, err := c.GetBool("bootstrap.exit_on_errors", false)
	require.NoError(t, err)
	assert.True(t, b)

	u, err := c.GetUInt("nnti.freelist.size", 128)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), u)

	n, err := c.GetInt("backburner.threads", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), n)

	d, err := c.GetDuration("bootstrap.settle", 0)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	sz, err := c.GetSize("nnti.mbox.slot_size", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2048), sz)
}

func TestMalformedTypedAccessorReturnsDefaultAndError(t *testing.T) {
	c := New("bootstrap.exit_on_errors notabool")
	v, err := c.GetBool("bootstrap.exit_on_errors", true)
	assert.Error(t, err)
	assert.True(t, v)
}

func TestRolePrefixedLookup(t *testing.T) {
	c := New("whookie.port 2000\nserver.whookie.port 3000")
	c.SetNodeRole("server")
	assert.Equal(t, "3000", c.GetString("whookie.port", "1990"))

	c2 := New("whookie.port 2000")
	c2.SetNodeRole("server")
	assert.Equal(t, "2000", c2.GetString("whookie.port", "1990"), "falls back when no role override exists")
}

func TestLookupWithoutPrefixFallback(t *testing.T) {
	c := New("port 4000")
	assert.Equal(t, "4000", c.GetString("whookie.port", "1990"))
}

func TestMultiValueAppendList(t *testing.T) {
	c := New("config.additional_files.[] /etc/a.conf\nconfig.additional_files.[] /etc/b.conf")
	assert.Equal(t, []string{"/etc/a.conf", "/etc/b.conf"}, c.GetStringSlice("config.additional_files"))
}

func TestAppendFromReferencesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "extra.conf")
	require.NoError(t, os.WriteFile(filePath, []byte("whookie.port 5000\n"), 0o600))

	envFilePath := filepath.Join(dir, "env.conf")
	require.NoError(t, os.WriteFile(envFilePath, []byte("whookie.address 127.0.0.1\n"), 0o600))
	t.Setenv("FAODEL_EXTRA_CONFIG", envFilePath)

	c := New("config.additional_files.[] " + filePath + "\nconfig.additional_files.envvar.if_defined FAODEL_EXTRA_CONFIG")

	require.NoError(t, c.AppendFromReferences())
	assert.Equal(t, "5000", c.GetString("whookie.port", "1990"))
	assert.Equal(t, "127.0.0.1", c.GetString("whookie.address", "0.0.0.0"))
}

func TestAppendFromReferencesRunsOnce(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "extra.conf")
	require.NoError(t, os.WriteFile(filePath, []byte("whookie.port 5000\n"), 0o600))

	c := New("config.additional_files.[] " + filePath)
	require.NoError(t, c.AppendFromReferences())

	// A later direct override must survive a second AppendFromReferences call.
	require.NoError(t, c.Append("whookie.port 6000"))
	require.NoError(t, c.AppendFromReferences())
	assert.Equal(t, "6000", c.GetString("whookie.port", "1990"))
}

func TestRegistryTracksGetCalls(t *testing.T) {
	ResetRegistryForTest()
	c := New("")
	c.GetString("whookie.port", "1990")

	snap := RegistrySnapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "whookie.port", snap[0].Key)
	assert.Equal(t, "string", snap[0].Type)
	assert.Equal(t, "1990", snap[0].Default)
}
