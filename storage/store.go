// Package storage provides the session-scoped durable store behind the chat
// session and its derived run history. Backings are swappable: in-memory for
// tests, a JSON file per key, sqlite, or postgres for shared deployments.
package storage

import "context"

// Fixed keys shared by the session manager (writer) and the history pipeline
// (reader). Absence of either key means "empty", never an error.
const (
	KeyMessages   = "rag_chat_messages"
	KeyRunHistory = "rag_run_history"
)

// Store is a small key/blob store. Load returns (nil, nil) when the key is
// absent.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Namespaced prefixes every key with a session id so multiple sessions can
// share one backing store.
func Namespaced(store Store, sessionID string) Store {
	if sessionID == "" {
		return store
	}
	return &namespaced{store: store, prefix: sessionID + "/"}
}

type namespaced struct {
	store  Store
	prefix string
}

func (n *namespaced) Load(ctx context.Context, key string) ([]byte, error) {
	return n.store.Load(ctx, n.prefix+key)
}

func (n *namespaced) Save(ctx context.Context, key string, data []byte) error {
	return n.store.Save(ctx, n.prefix+key, data)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.prefix+key)
}

func (n *namespaced) Close() error {
	return n.store.Close()
}
