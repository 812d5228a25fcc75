package repository_test

import (
	"testing"

	"github.com/okian/codequest/internal/adapters/repository"
	"github.com/okian/codequest/internal/adapters/repository/repotest"
)

func TestMemoryStore_Suite(t *testing.T) {
	repotest.Run(t, func(*testing.T) repository.Store {
		return repository.NewMemoryStore()
	})
}
