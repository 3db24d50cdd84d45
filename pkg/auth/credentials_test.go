package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flickrbackup/pkg/config"
)

func testAccount(name string) *Account {
	return &Account{
		Name:      name,
		Username:  "traveller",
		APIKey:    "0123456789abcdef0123456789abcdef",
		APISecret: "fedcba9876543210",
	}
}

func TestCredentialManager(t *testing.T) {
	manager, store := NewMockManager()

	require.NoError(t, manager.Store(testAccount("default")))
	assert.Equal(t, 1, store.Count())

	got, err := manager.Retrieve("default")
	require.NoError(t, err)
	assert.Equal(t, "traveller", got.Username)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", got.APIKey)
	assert.False(t, got.LastModified.IsZero())

	accounts, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, manager.Delete("default"))
	_, err = manager.Retrieve("default")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	assert.ErrorIs(t, manager.Delete("default"), ErrCredentialsNotFound)
}

func TestStoreRejectsIncompleteAccount(t *testing.T) {
	manager, store := NewMockManager()

	acc := testAccount("default")
	acc.APISecret = ""
	err := manager.Store(acc)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "api_secret")
	assert.Zero(t, store.Count())
}

func TestManagerFallsBack(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("keyring locked")
	broken.RetrieveError = errors.New("keyring locked")
	backup := NewMockStore()

	manager := NewManagerWithStores(broken, backup)
	require.NoError(t, manager.Store(testAccount("default")))
	assert.Equal(t, 1, backup.Count())

	got, err := manager.Retrieve("default")
	require.NoError(t, err)
	assert.Equal(t, "default", got.Name)
}

func TestManagerStoreAllFail(t *testing.T) {
	s := NewMockStore()
	s.StoreError = errors.New("disk full")
	err := NewManagerWithStores(s).Store(testAccount("default"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.ErrorIs(t, NewManagerWithStores().Store(testAccount("x")), ErrStoreUnavailable)
}

func TestManagerListPrefersNewest(t *testing.T) {
	older := NewMockStore()
	newer := NewMockStore()

	a := testAccount("default")
	a.LastModified = time.Now().Add(-time.Hour)
	a.Username = "old"
	require.NoError(t, older.Store(a))

	b := testAccount("default")
	b.LastModified = time.Now()
	b.Username = "new"
	require.NoError(t, newer.Store(b))
	require.NoError(t, newer.Store(testAccount("another")))

	accounts, err := NewManagerWithStores(older, newer).List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "another", accounts[0].Name)
	assert.Equal(t, "new", accounts[1].Username)
}

func TestSanitizeAccount(t *testing.T) {
	acc := testAccount("default")
	s := SanitizeAccount(acc)

	assert.Equal(t, "0123...cdef", s.APIKey)
	assert.Equal(t, "fedc...3210", s.APISecret)
	assert.Equal(t, acc.Username, s.Username)
	assert.Nil(t, SanitizeAccount(nil))
	assert.Equal(t, "********", maskString("short"))
}

func TestApplyToFillsOnlyMissing(t *testing.T) {
	cfg := config.FlickrConfig{Username: "from-flag"}
	testAccount("default").ApplyTo(&cfg)

	assert.Equal(t, "from-flag", cfg.Username)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.APIKey)
	assert.Equal(t, "fedcba9876543210", cfg.APISecret)
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "credentials.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "correct horse")
	require.NoError(t, err)

	assert.False(t, store.Exists("default"))
	list, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, store.Store(testAccount("default")))
	require.NoError(t, store.Store(testAccount("work")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "fedcba9876543210", "secret must not be stored in clear")

	// a second store with the same passphrase reads it back
	again, err := NewEncryptedFileStoreWithPassphrase(path, "correct horse")
	require.NoError(t, err)
	got, err := again.Retrieve("work")
	require.NoError(t, err)
	assert.Equal(t, "fedcba9876543210", got.APISecret)

	// a wrong passphrase cannot open it
	wrong, err := NewEncryptedFileStoreWithPassphrase(path, "battery staple")
	require.NoError(t, err)
	_, err = wrong.Retrieve("work")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, store.Delete("work"))
	require.NoError(t, store.Delete("default"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file is removed with the last account")
	assert.ErrorIs(t, store.Delete("default"), ErrCredentialsNotFound)
}

func TestEncryptedStorePassphraseFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPassphrase, "from-env")

	pass, err := loadPassphrase(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", pass)
	_, err = os.Stat(filepath.Join(dir, ".passphrase"))
	assert.True(t, os.IsNotExist(err))
}

func TestEncryptedStoreGeneratesPassphrase(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".passphrase")
	t.Setenv(EnvPassphrase, "")

	first, err := loadPassphrase(file)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := loadPassphrase(file)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(EnvUsername, "traveller")
	t.Setenv(EnvAPIKey, "key")
	t.Setenv(EnvAPISecret, "")

	env := NewEnvironmentStore()
	_, err := env.Retrieve("default")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	t.Setenv(EnvAPISecret, "secret")
	got, err := env.Retrieve("default")
	require.NoError(t, err)
	assert.Equal(t, "default", got.Name)
	assert.Equal(t, "secret", got.APISecret)

	list, err := env.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "env", list[0].Name)

	assert.ErrorIs(t, env.Store(got), ErrStoreUnavailable)
	assert.ErrorIs(t, env.Delete("default"), ErrStoreUnavailable)
}
