package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringStore provides OS-native secure credential storage for tokens.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
// The whole token map is kept in a single keyring item, written back on Close.
type KeyringStore struct {
	*support
	service string
	user    string

	closeOnce sync.Once
	closeErr  error
}

// Compile-time check to ensure KeyringStore implements TokenStore
var _ TokenStore = (*KeyringStore)(nil)

// NewKeyringStore loads the token map stored under the given service and user
// identifiers. A missing item starts an empty store.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	tokens := tokenMap{}
	secret, err := keyring.Get(service, user)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("%w: reading keyring for service %s, user %s: %w", ErrStorage, service, user, err)
	case secret != "":
		tokens, err = decodeTokens([]byte(secret))
		if err != nil {
			return nil, fmt.Errorf("%w: malformed keyring item for service %s, user %s: %w", ErrStorage, service, user, err)
		}
	}

	return &KeyringStore{
		support: newSupport(tokens),
		service: service,
		user:    user,
	}, nil
}

// Flush persists the token map to the keyring, overwriting any existing value.
// An empty map deletes the item.
func (k *KeyringStore) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tokens := k.snapshot()
	if len(tokens) == 0 {
		if err := keyring.Delete(k.service, k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrStorage, err)
		}
		return nil
	}

	data, err := encodeTokens(tokens)
	if err != nil {
		return fmt.Errorf("%w: encoding tokens: %w", ErrStorage, err)
	}

	if err := keyring.Set(k.service, k.user, string(data)); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Close writes the token map once. Later calls return the first result.
func (k *KeyringStore) Close() error {
	k.closeOnce.Do(func() {
		k.closeErr = k.Flush(context.Background())
	})
	return k.closeErr
}
