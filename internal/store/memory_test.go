package store_test

import (
	"testing"

	"efiling.org/internal/store"
	"efiling.org/internal/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return store.NewMemory() })
}
