package memory_test

import (
	"testing"

	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/memory"
	"github.com/dukex/stepflow/pkg/persistence/storetest"
)

func TestPersistence_Store(t *testing.T) {
	storetest.Run(t, func(t *testing.T) persistence.Store {
		return memory.NewPersistence()
	})
}
