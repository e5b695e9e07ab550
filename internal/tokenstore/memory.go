package tokenstore

// MemoryStore keeps tokens for the lifetime of the process only.
// Suitable for tests and short-lived scripts.
type MemoryStore struct {
	*support
}

// Compile-time check to ensure MemoryStore implements TokenStore
var _ TokenStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{support: newSupport(tokenMap{})}
}

// Close is a no-op; nothing is persisted.
func (m *MemoryStore) Close() error {
	return nil
}
