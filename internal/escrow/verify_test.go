package escrow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/harvestlink/escrow-ledger/internal/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// tamperEnv builds a three-entry chain on a memory store and hands back
// both so tests can corrupt stored rows directly.
func tamperEnv(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	ctx := context.Background()

	store := NewMemoryStore()
	svc := NewService(store, events.NewNoopPublisher(zap.NewNop()), zap.NewNop())

	for i, desc := range []string{"rice", "yam", "beans"} {
		_, err := svc.Create(ctx, CreateInput{
			FromUserID:  int64(i + 1),
			ToUserID:    int64(i + 2),
			Amount:      decimal.NewFromInt(int64((i + 1) * 10)),
			Description: desc,
		})
		if err != nil {
			t.Fatalf("seed entry %d: %v", i, err)
		}
	}
	return svc, store
}

func TestVerifyChain_detectsTamperedAmount(t *testing.T) {
	ctx := context.Background()
	svc, store := tamperEnv(t)

	// Corrupt the middle entry's amount behind the ledger's back.
	store.entries[1].Amount = decimal.NewFromInt(9999)

	report, err := svc.VerifyChain(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.ChainIntegrity {
		t.Fatal("tampered chain reported as intact")
	}
	if report.Blocks[1].ContentValid {
		t.Error("tampered entry reported content-valid")
	}
	if !report.Blocks[0].BlockValid || !report.Blocks[2].BlockValid {
		t.Error("untouched entries should still verify")
	}
}

func TestVerifyChain_detectsTamperedDescription(t *testing.T) {
	ctx := context.Background()
	svc, store := tamperEnv(t)

	store.entries[0].Description = "luxury cars"

	report, err := svc.VerifyChain(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Blocks[0].ContentValid {
		t.Error("tampered description reported content-valid")
	}
	if report.ChainIntegrity {
		t.Error("tampered chain reported as intact")
	}
}

func TestVerifyChain_detectsBrokenLink(t *testing.T) {
	ctx := context.Background()
	svc, store := tamperEnv(t)

	// Rewrite the middle entry's hash consistently with its content: the
	// content check passes but the successor's link must break.
	store.entries[1].Description = "yam (revised)"
	store.entries[1].Hash = hashEntry(store.entries[1])

	report, err := svc.VerifyChain(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Blocks[1].ContentValid {
		t.Error("rewritten entry should be internally consistent")
	}
	if report.Blocks[2].LinkValid {
		t.Error("successor link should break after a rewrite")
	}
	if report.ChainIntegrity {
		t.Error("rewritten chain reported as intact")
	}
}

func TestVerifyChain_fakeGenesisMidChain(t *testing.T) {
	ctx := context.Background()
	svc, store := tamperEnv(t)

	// An attacker resets a mid-chain entry to claim genesis.
	store.entries[2].PrevHash = GenesisHash
	store.entries[2].Hash = hashEntry(store.entries[2])

	report, err := svc.VerifyChain(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Blocks[2].LinkValid {
		t.Error("mid-chain genesis claim should fail the link check")
	}
	if report.ChainIntegrity {
		t.Error("chain with a fake genesis reported as intact")
	}
}

func TestVerifyByHash_linkAndContentIndependent(t *testing.T) {
	ctx := context.Background()
	svc, store := tamperEnv(t)

	// Tamper with the last entry's content only: its stored prev hash
	// still points at a real predecessor.
	store.entries[2].Amount = decimal.NewFromInt(1)
	hash := store.entries[2].Hash

	result, err := svc.VerifyByHash(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if result.HashValid {
		t.Error("tampered content reported hash-valid")
	}
	if !result.PrevLinkExists {
		t.Error("predecessor link should still resolve")
	}
	if result.IntegrityCheck {
		t.Error("integrity check must fail when content is invalid")
	}
}

func TestVerifyByHash_genesisEntry(t *testing.T) {
	ctx := context.Background()
	svc, store := tamperEnv(t)

	result, err := svc.VerifyByHash(ctx, store.entries[0].Hash)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsGenesis {
		t.Error("first entry should report is_genesis")
	}
	if !result.HashValid || !result.PrevLinkExists || !result.IntegrityCheck {
		t.Errorf("genesis entry should verify cleanly: %+v", result)
	}
}

func TestVerifyChain_windowResolvesPredecessorByHash(t *testing.T) {
	ctx := context.Background()
	svc, _ := tamperEnv(t)

	// Walk entries 2 and 3 only: the window's first entry has no in-window
	// predecessor and must resolve it by hash instead.
	report, err := svc.VerifyChain(ctx, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Blocks) != 2 {
		t.Fatalf("window size: got %d blocks, want 2", len(report.Blocks))
	}
	for i, b := range report.Blocks {
		if !b.BlockValid {
			t.Errorf("window block %d should verify: %+v", i, b)
		}
	}
	if !report.ChainIntegrity {
		t.Error("intact mid-chain window should report integrity")
	}
	if report.GenesisBlock {
		t.Error("a window skipping the first entry has no genesis block")
	}
	if report.TotalBlocks != 3 {
		t.Errorf("total blocks: got %d, want 3", report.TotalBlocks)
	}
}

func TestVerifyChain_windowDanglingPredecessor(t *testing.T) {
	ctx := context.Background()
	svc, store := tamperEnv(t)

	// Point the middle entry at a predecessor that does not exist.
	store.entries[1].PrevHash = strings.Repeat("b", 64)
	store.entries[1].Hash = hashEntry(store.entries[1])

	report, err := svc.VerifyChain(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Blocks[0].ContentValid {
		t.Error("rewritten entry should be internally consistent")
	}
	if report.Blocks[0].LinkValid {
		t.Error("dangling predecessor hash should fail the link check")
	}
	if report.ChainIntegrity {
		t.Error("window with a dangling link reported as intact")
	}
}

func TestVerifyChain_windowGenesisClaimRejected(t *testing.T) {
	ctx := context.Background()
	svc, store := tamperEnv(t)

	store.entries[1].PrevHash = GenesisHash
	store.entries[1].Hash = hashEntry(store.entries[1])

	// At offset 1 the genesis claim must be rejected even though the entry
	// is the first one fetched.
	report, err := svc.VerifyChain(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if report.Blocks[0].LinkValid {
		t.Error("genesis claim at offset 1 should fail the link check")
	}

	// The true genesis at offset 0 still passes.
	report, err = svc.VerifyChain(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Blocks[0].LinkValid || !report.Blocks[0].IsGenesis {
		t.Errorf("real genesis entry should verify: %+v", report.Blocks[0])
	}
}

func TestCreate_timestampsFollowChainOrder(t *testing.T) {
	ctx := context.Background()
	svc, store := tamperEnv(t)

	// Push the tip's timestamp into the future, as a writer with a skewed
	// clock (or one that stamped early and appended late) would leave it.
	future := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	store.entries[2].CreatedAt = future
	store.entries[2].Hash = hashEntry(store.entries[2])

	entry, err := svc.Create(ctx, CreateInput{
		FromUserID: 4,
		ToUserID:   5,
		Amount:     decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatal(err)
	}

	if entry.PrevHash != store.entries[2].Hash {
		t.Error("new entry must chain to the stored tip")
	}
	if !entry.CreatedAt.After(future) {
		t.Errorf("new entry timestamp %s must land after the tip's %s",
			entry.CreatedAt, future)
	}

	// Chronological order must agree with chain order for every link.
	report, err := svc.VerifyChain(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !report.ChainIntegrity {
		t.Error("chain should stay intact after a skewed-clock append")
	}
	for i := 1; i < len(store.entries); i++ {
		if !store.entries[i].CreatedAt.After(store.entries[i-1].CreatedAt) {
			t.Errorf("entry %d created_at %s not after predecessor's %s",
				i, store.entries[i].CreatedAt, store.entries[i-1].CreatedAt)
		}
		if store.entries[i].PrevHash != store.entries[i-1].Hash {
			t.Errorf("entry %d prev hash does not match predecessor", i)
		}
	}
}

func TestGenesisHash_shape(t *testing.T) {
	if GenesisHash != strings.Repeat("0", 64) {
		t.Errorf("genesis hash must be 64 zero characters, got %q", GenesisHash)
	}
}
