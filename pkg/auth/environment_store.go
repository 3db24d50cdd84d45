package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore
const (
	EnvUsername  = "FLICKRBACKUP_USERNAME"
	EnvAPIKey    = "FLICKRBACKUP_API_KEY"
	EnvAPISecret = "FLICKRBACKUP_API_SECRET"
)

// EnvironmentStore is a read-only store exposing the FLICKRBACKUP_*
// credential variables as one account
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account under any requested name
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	account := &Account{
		Name:         name,
		Username:     os.Getenv(EnvUsername),
		APIKey:       os.Getenv(EnvAPIKey),
		APISecret:    os.Getenv(EnvAPISecret),
		LastModified: time.Now(),
	}
	if account.Username == "" || account.APIKey == "" || account.APISecret == "" {
		return nil, ErrCredentialsNotFound
	}
	if account.Name == "" {
		account.Name = "env"
	}
	return account, nil
}

// List returns the environment account when all variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}
