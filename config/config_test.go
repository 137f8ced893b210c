package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenFileIsEmpty(t *testing.T) {
	c, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, uint32(DefaultSummaryHistoryLength), c.Flatpak.SummaryHistoryLength)
}

func TestLoadParsesFlatpakStringKeys(t *testing.T) {
	const in = `
[flatpak]
title = My Repo
comment = test repo
homepage = https://example.com
`
	c, err := Load(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "My Repo", c.Flatpak.Title)
	assert.Equal(t, "test repo", c.Flatpak.Comment)
	assert.Equal(t, "https://example.com", c.Flatpak.Homepage)
}

func TestLoadParsesBooleanAndListKeys(t *testing.T) {
	const in = `
[flatpak]
authenticator-install = true
deploy-collection-id = true
summary-arches = x86_64;aarch64;
[core]
tombstone-commits = true
`
	c, err := Load(strings.NewReader(in))
	require.NoError(t, err)
	assert.True(t, c.Flatpak.AuthenticatorInstall)
	assert.True(t, c.Flatpak.HasAuthenticatorInstall)
	assert.True(t, c.Flatpak.DeployCollectionID)
	assert.Equal(t, []string{"x86_64", "aarch64"}, c.Flatpak.SummaryArches)
	assert.True(t, c.Core.TombstoneCommits)
}

func TestLoadParsesAuthenticatorOptions(t *testing.T) {
	const in = `
[flatpak]
authenticator-options.client-id = abc123
authenticator-options.scope = read
`
	c, err := Load(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "abc123", c.Flatpak.AuthenticatorOptions["client-id"])
	assert.Equal(t, "read", c.Flatpak.AuthenticatorOptions["scope"])
}

func TestLoadPrefersTypoOverCorrectSpellingWhenBothPresent(t *testing.T) {
	const in = `
[flatpak]
sumary-history-length = 4
summary-history-length = 10
`
	c, err := Load(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, uint32(4), c.Flatpak.SummaryHistoryLength)
}

func TestLoadAcceptsTypoAloneAndFallsBackToDefaultOnZero(t *testing.T) {
	c, err := Load(strings.NewReader("[flatpak]\nsumary-history-length = 4\n"))
	require.NoError(t, err)
	assert.Equal(t, uint32(4), c.Flatpak.SummaryHistoryLength)

	c, err = Load(strings.NewReader("[flatpak]\nsummary-history-length = 0\n"))
	require.NoError(t, err)
	assert.Equal(t, uint32(DefaultSummaryHistoryLength), c.Flatpak.SummaryHistoryLength)
}

func TestGPGKeysDecodesBase64(t *testing.T) {
	const in = `
[flatpak]
gpg-keys = aGVsbG8=
`
	c, err := Load(strings.NewReader(in))
	require.NoError(t, err)
	keys, err := c.Flatpak.GPGKeys()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(keys))
}

func TestGPGKeysEmptyWhenUnset(t *testing.T) {
	c, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	keys, err := c.Flatpak.GPGKeys()
	require.NoError(t, err)
	assert.Nil(t, keys)
}

func TestSaveNeverEmitsTypoKey(t *testing.T) {
	c, err := Load(strings.NewReader("[flatpak]\nsumary-history-length = 4\n"))
	require.NoError(t, err)

	out := Save(c)
	assert.Contains(t, string(out), "summary-history-length = 4")
	assert.NotContains(t, string(out), "sumary-history-length")
}

func TestSaveLoadRoundTripsFlatpakFields(t *testing.T) {
	const in = `
[flatpak]
title = My Repo
summary-arches = x86_64;aarch64
authenticator-options.scope = read
[core]
tombstone-commits = true
`
	c, err := Load(strings.NewReader(in))
	require.NoError(t, err)

	roundTripped, err := Load(strings.NewReader(string(Save(c))))
	require.NoError(t, err)

	assert.Equal(t, c.Flatpak.Title, roundTripped.Flatpak.Title)
	assert.Equal(t, c.Flatpak.SummaryArches, roundTripped.Flatpak.SummaryArches)
	assert.Equal(t, c.Flatpak.AuthenticatorOptions, roundTripped.Flatpak.AuthenticatorOptions)
	assert.Equal(t, c.Core.TombstoneCommits, roundTripped.Core.TombstoneCommits)
}
