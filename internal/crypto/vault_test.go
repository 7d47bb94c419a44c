package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryasaputra/surebot/internal/domain"
)

func testCreds() []domain.Credentials {
	return []domain.Credentials{
		{AccountID: "acct-ibc", Provider: "ibc", LoginURL: "https://ibc.example/login", Username: "u1", Password: "p1"},
		{AccountID: "acct-cmd", Provider: "cmd", LoginURL: "https://cmd.example/login", Username: "u2", Password: "p2"},
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptCredentials(testCreds(), "hunter2")
	require.NoError(t, err)

	creds, err := DecryptCredentials(blob, "hunter2")
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "acct-ibc", creds[0].AccountID)
	assert.Equal(t, "p2", creds[1].Password)
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptCredentials(testCreds(), "hunter2")
	require.NoError(t, err)

	_, err = DecryptCredentials(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptEmptyPassword(t *testing.T) {
	_, err := EncryptCredentials(testCreds(), "")
	assert.Error(t, err)
}

func TestOpenVault(t *testing.T) {
	blob, err := EncryptCredentials(testCreds(), "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "creds.enc.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	vault, err := OpenVault(path, "hunter2")
	require.NoError(t, err)

	c, err := vault.Lookup("acct-cmd")
	require.NoError(t, err)
	assert.Equal(t, "cmd", c.Provider)

	_, err = vault.Lookup("acct-unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ElementsMatch(t, []string{"acct-ibc", "acct-cmd"}, vault.Accounts())
}

func TestNewVaultRejectsDuplicates(t *testing.T) {
	_, err := NewVault([]domain.Credentials{
		{AccountID: "acct-ibc", Provider: "ibc"},
		{AccountID: "acct-ibc", Provider: "cmd"},
	})
	assert.Error(t, err)
}
