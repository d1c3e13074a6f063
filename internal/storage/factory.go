package storage

import "fmt"

// DefaultStoreKind is used when no backend is configured.
func DefaultStoreKind() string {
	return "memory"
}

// NewStore builds a backend by name. codecName selects the payload
// encoding for backends that serialize records.
func NewStore(kind, sqlitePath, codecName string) (Store, error) {
	codec, err := CodecByName(codecName)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath, codec)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
