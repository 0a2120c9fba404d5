package bitcoin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
	"github.com/maruthiprithivi/chainwatch/internal/rpc"
)

type stubClient struct {
	tip domain.Position
	err error
}

func (s *stubClient) GetTipHeight(ctx context.Context) (domain.Position, error) {
	return s.tip, s.err
}
func (s *stubClient) GetBlock(ctx context.Context, pos domain.Position) (*domain.Block, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Block{Position: pos}, nil
}
func (s *stubClient) GetBlockTransactions(ctx context.Context, pos domain.Position, limit int) ([]*domain.Transaction, error) {
	return nil, s.err
}

func TestRouter_PrefersLocal(t *testing.T) {
	local := &stubClient{tip: 100}
	public := &stubClient{tip: 200}
	r := NewRouter(local, public, nil, PreferLocal)

	got, err := r.GetTipHeight(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 100 {
		t.Errorf("expected local tip 100, got %d", got)
	}
}

func TestRouter_FlipsToPublicOnTransient(t *testing.T) {
	local := &stubClient{err: rpc.NewError(rpc.Transient, "GetTipHeight", "local", errors.New("timeout"))}
	public := &stubClient{tip: 200}
	r := NewRouter(local, public, nil, PreferLocal)

	got, err := r.GetTipHeight(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 200 {
		t.Errorf("expected fallback to public tip 200, got %d", got)
	}
	if r.Preferred() != PreferPublic {
		t.Errorf("expected preference to flip to public, got %s", r.Preferred())
	}
}

func TestRouter_RateLimitedNeverFlipsPreference(t *testing.T) {
	local := &stubClient{err: rpc.NewError(rpc.RateLimited, "GetTipHeight", "local", errors.New("429"))}
	r := NewRouter(local, &stubClient{}, nil, PreferLocal)

	_, err := r.GetTipHeight(context.Background())
	if err == nil {
		t.Fatal("expected rate-limit error to propagate")
	}
	if r.Preferred() != PreferLocal {
		t.Errorf("rate limit must not flip preference, got %s", r.Preferred())
	}
}

func TestRouter_StaysOnCooldownAfterFlip(t *testing.T) {
	local := &stubClient{err: rpc.NewError(rpc.Fatal, "GetTipHeight", "local", errors.New("boom"))}
	public := &stubClient{tip: 42}
	r := NewRouter(local, public, nil, PreferLocal)

	if _, err := r.GetTipHeight(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.mu.Lock()
	r.cooldownUntil = time.Now().Add(time.Minute)
	r.mu.Unlock()

	got, err := r.GetTipHeight(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected public tip while on cooldown, got %d", got)
	}
}

func TestBackoffState_ExponentialThenReset(t *testing.T) {
	var b backoffState
	b.record(rpc.RateLimited)
	if b.delay != backoffInitial {
		t.Errorf("expected initial backoff %s, got %s", backoffInitial, b.delay)
	}
	b.record(rpc.RateLimited)
	if b.delay != backoffInitial*2 {
		t.Errorf("expected doubled backoff, got %s", b.delay)
	}
	b.reset()
	if b.delay != 0 {
		t.Errorf("expected reset backoff to 0, got %s", b.delay)
	}
}
