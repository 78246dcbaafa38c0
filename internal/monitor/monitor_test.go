package monitor

import (
	"context"
	"testing"

	"github.com/harvestlink/escrow-ledger/internal/escrow"
	"github.com/harvestlink/escrow-ledger/internal/events"
	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubVerifier struct {
	reports []*escrow.ChainReport
	calls   int
}

func (s *stubVerifier) VerifyChain(_ context.Context, _, _ int) (*escrow.ChainReport, error) {
	r := s.reports[s.calls]
	if s.calls < len(s.reports)-1 {
		s.calls++
	}
	return r, nil
}

func report(intact bool) *escrow.ChainReport {
	return &escrow.ChainReport{
		TotalBlocks:    3,
		ChainIntegrity: intact,
		Blocks: []escrow.BlockVerification{
			{Entry: &escrow.Entry{ID: 1}, BlockValid: true},
			{Entry: &escrow.Entry{ID: 2}, BlockValid: intact},
			{Entry: &escrow.Entry{ID: 3}, BlockValid: true},
		},
	}
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestSweep_reportsIntegrity(t *testing.T) {
	verifier := &stubVerifier{reports: []*escrow.ChainReport{report(true)}}
	mon := New(verifier, Config{}, zap.NewNop())

	var got []bool
	mon.SetReport(func(intact bool) { got = append(got, intact) })

	mon.Sweep(context.Background())

	if len(got) != 1 || !got[0] {
		t.Errorf("expected one intact report, got %v", got)
	}
	if !mon.Healthy() {
		t.Error("monitor should be healthy after a clean sweep")
	}
}

func TestSweep_flagsViolation(t *testing.T) {
	verifier := &stubVerifier{reports: []*escrow.ChainReport{report(false)}}
	mon := New(verifier, Config{}, zap.NewNop())

	mon.Sweep(context.Background())

	if mon.Healthy() {
		t.Error("monitor should be unhealthy after a violated sweep")
	}
}

func TestSweep_recovers(t *testing.T) {
	verifier := &stubVerifier{reports: []*escrow.ChainReport{report(false), report(true)}}
	mon := New(verifier, Config{}, zap.NewNop())

	mon.Sweep(context.Background())
	if mon.Healthy() {
		t.Fatal("expected unhealthy after violation")
	}

	mon.Sweep(context.Background())
	if !mon.Healthy() {
		t.Error("expected healthy after a clean follow-up sweep")
	}
}

func TestHealthy_trueBeforeFirstSweep(t *testing.T) {
	mon := New(&stubVerifier{}, Config{}, zap.NewNop())
	if !mon.Healthy() {
		t.Error("monitor should report healthy before any sweep runs")
	}
}

func TestSweep_endToEnd(t *testing.T) {
	svc := escrow.NewService(escrow.NewMemoryStore(), events.NewNoopPublisher(zap.NewNop()), zap.NewNop())

	// A service over an empty store is trivially intact.
	mon := New(svc, Config{Window: 100}, zap.NewNop())
	mon.Sweep(context.Background())
	if !mon.Healthy() {
		t.Error("empty ledger sweep should be clean")
	}
}
