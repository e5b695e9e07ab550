// Package tokenstore caches Directus bearer tokens per project.
//
// Every backend shares one caching policy. Expired tokens are evicted lazily
// on read and rejected on write; removing a token force-expires it.
// Backends differ only in where the project → token map lives:
//   - Memory: process-local map, nothing persisted
//   - Session: map held in a host-managed session slot
//   - File: JSON file loaded at construction, rewritten atomically on Close
//   - Keyring: OS-native credential storage (macOS Keychain, Secret Service, etc.)
//   - Postgres: shared table, loaded at construction and written back on Close
//
// Persistent backends defer writes until Close (or an explicit Flush), so a
// store must be closed on orderly shutdown for its changes to survive.
package tokenstore
