package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(memory.NewStore())
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		ref := domain.ConversationRef{Phone: fmt.Sprintf("+1212555%04d", i)}
		_, _ = mgr.Update(ctx, ref, func(c *domain.Conversation) error { return nil })
		_ = mgr.Delete(ctx, ref.Key())
	}

	if n := mgr.activeLocks(); n != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", n)
	}
}
