package storage

import (
	"errors"
	"testing"
)

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore(DefaultStoreKind(), "", "")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close memory store: %v", err)
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	if _, err := NewStore("unknown", "", "json"); err == nil {
		t.Fatal("expected unsupported store error")
	}
	if _, err := NewStore("memory", "", "gob"); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("expected unknown codec error, got %v", err)
	}
}
