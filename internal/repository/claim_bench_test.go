package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/d60-Lab/tailor-checkout/internal/model"
)

func TestClaimRepositoryFirstWins(t *testing.T) {
	repo := NewClaimRepository(setupDB(t))
	ctx := context.Background()

	won, err := repo.Claim(ctx, "TLR-1", model.SourceWebhook)
	if err != nil || !won {
		t.Fatalf("first claim: won=%v err=%v", won, err)
	}
	won, err = repo.Claim(ctx, "TLR-1", model.SourceBrowser)
	if err != nil || won {
		t.Fatalf("second claim: won=%v err=%v", won, err)
	}
	owner, state, err := repo.Lookup(ctx, "TLR-1")
	if err != nil || owner != model.SourceWebhook || state != model.StateVerified {
		t.Fatalf("lookup: %s %s %v", owner, state, err)
	}
}

// 两条路径交替认领同一批 reference
func BenchmarkClaimDualPath(b *testing.B) {
	repo := NewClaimRepository(setupDB(b))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ref := fmt.Sprintf("TLR-%d", i/2)
		owner := model.SourceBrowser
		if i%2 == 1 {
			owner = model.SourceWebhook
		}
		_, _ = repo.Claim(ctx, ref, owner)
	}
}
