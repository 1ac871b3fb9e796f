// Package session persists conversations and their messages.
//
// Store is the contract the runner and the server depend on. MemoryStore is a
// volatile implementation for tests and demos; SQLStore persists to SQLite or
// MySQL through internal/sqldb. Only the wiring layer decides which one is
// used.
package session
