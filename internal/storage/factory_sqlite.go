//go:build sqlite

package storage

func newSQLiteStore(path string, codec Codec) (Store, error) {
	return NewSQLiteStore(path, codec), nil
}
