package store_test

import (
	"testing"

	"github.com/warp/tender-engine/cash/store"
	"github.com/warp/tender-engine/cash/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return store.NewMemory()
	})
}
