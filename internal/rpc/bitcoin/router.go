package bitcoin

import (
	"context"
	"sync"
	"time"

	"github.com/maruthiprithivi/chainwatch/internal/core/domain"
	"github.com/maruthiprithivi/chainwatch/internal/rpc"
)

// Preference is which upstream the Source Router currently favors.
type Preference string

const (
	PreferLocal  Preference = "local"
	PreferPublic Preference = "public"
)

const (
	cooldownDuration = 60 * time.Second
	probeInterval    = 5 * time.Minute
)

// PreferenceStore persists the router's sticky preference so it survives
// a process restart. Redis is the concrete implementation (see
// internal/infra/redis); a nil store is a valid no-op for tests.
type PreferenceStore interface {
	SavePreference(ctx context.Context, pref Preference, cooldownUntil time.Time) error
	LoadPreference(ctx context.Context) (Preference, time.Time, error)
}

// backoffState tracks exponential/linear retry delay for one upstream
// independently of the other — a RateLimited response from the public API
// must not reset or otherwise affect the local node's own backoff, and
// vice versa.
type backoffState struct {
	delay time.Duration
}

const (
	backoffInitial = 2 * time.Second
	backoffMax     = 120 * time.Second
)

// record grows the backoff delay for a RateLimited (exponential) or
// Transient (linear) failure, and resets it on success.
func (b *backoffState) record(kind rpc.ErrorKind) {
	switch kind {
	case rpc.RateLimited:
		if b.delay == 0 {
			b.delay = backoffInitial
		} else {
			b.delay *= 2
		}
		if b.delay > backoffMax {
			b.delay = backoffMax
		}
	case rpc.Transient:
		b.delay += backoffInitial
		if b.delay > backoffMax {
			b.delay = backoffMax
		}
	}
}

func (b *backoffState) reset() { b.delay = 0 }

// Router prefers the local Bitcoin Core node, falling back to the public
// REST API on Transient/Fatal failure with a sticky cooldown, and probes
// the local node periodically while on public to recover automatically.
// It implements rpc.Client by dispatching to whichever upstream is
// currently preferred.
type Router struct {
	local  rpc.Client
	public rpc.Client
	store  PreferenceStore

	mu            sync.Mutex
	preferred     Preference
	cooldownUntil time.Time
	lastProbe     time.Time
	localBackoff  backoffState
	publicBackoff backoffState
}

// NewRouter builds a Source Router. initial is the starting preference
// (cmd/watcher passes PreferLocal only when bitcoin.use_local_node is
// set, PreferPublic otherwise); it is overridden by
// whatever the PreferenceStore has persisted, if anything.
func NewRouter(local, public rpc.Client, store PreferenceStore, initial Preference) *Router {
	r := &Router{
		local:     local,
		public:    public,
		store:     store,
		preferred: initial,
	}
	if store != nil {
		if pref, until, err := store.LoadPreference(context.Background()); err == nil && pref != "" {
			r.preferred = pref
			r.cooldownUntil = until
		}
	}
	return r
}

func (r *Router) flipToPublic() {
	r.preferred = PreferPublic
	r.cooldownUntil = time.Now().Add(cooldownDuration)
	if r.store != nil {
		_ = r.store.SavePreference(context.Background(), r.preferred, r.cooldownUntil)
	}
}

func (r *Router) flipToLocal() {
	r.preferred = PreferLocal
	r.cooldownUntil = time.Time{}
	if r.store != nil {
		_ = r.store.SavePreference(context.Background(), r.preferred, r.cooldownUntil)
	}
}

// maybeProbe attempts a cheap local call every probeInterval while the
// router prefers public, resetting preference to local on success.
func (r *Router) maybeProbe(ctx context.Context) {
	if r.preferred != PreferPublic {
		return
	}
	if time.Since(r.lastProbe) < probeInterval {
		return
	}
	r.lastProbe = time.Now()

	if _, err := r.local.GetTipHeight(ctx); err == nil {
		r.flipToLocal()
	}
}

// dispatch runs op against the preferred source, falling back to the
// other source on Transient/Fatal per the router policy, and returns
// the call's result and error.
func (r *Router) dispatch(ctx context.Context, call func(rpc.Client) (any, error)) (any, error) {
	r.mu.Lock()
	r.maybeProbe(ctx)
	preferred := r.preferred
	onCooldown := time.Now().Before(r.cooldownUntil)
	r.mu.Unlock()

	if preferred == PreferLocal && !onCooldown {
		result, err := call(r.local)
		r.mu.Lock()
		if err == nil {
			r.localBackoff.reset()
		} else {
			r.localBackoff.record(rpc.KindOf(err))
		}
		r.mu.Unlock()
		if err == nil {
			return result, nil
		}
		switch rpc.KindOf(err) {
		case rpc.Transient, rpc.Fatal:
			r.mu.Lock()
			r.flipToPublic()
			r.mu.Unlock()
			return call(r.public)
		default:
			return result, err
		}
	}

	// Preferred is public, or local is on cooldown: try public. A
	// RateLimited response never flips preference back — it's a property
	// of the caller, not of which source is reachable.
	result, err := call(r.public)
	r.mu.Lock()
	if err == nil {
		r.publicBackoff.reset()
	} else {
		r.publicBackoff.record(rpc.KindOf(err))
	}
	r.mu.Unlock()
	return result, err
}

func (r *Router) GetTipHeight(ctx context.Context) (domain.Position, error) {
	res, err := r.dispatch(ctx, func(c rpc.Client) (any, error) {
		return c.GetTipHeight(ctx)
	})
	if err != nil {
		return 0, err
	}
	return res.(domain.Position), nil
}

func (r *Router) GetBlock(ctx context.Context, pos domain.Position) (*domain.Block, error) {
	res, err := r.dispatch(ctx, func(c rpc.Client) (any, error) {
		return c.GetBlock(ctx, pos)
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.Block), nil
}

func (r *Router) GetBlockTransactions(ctx context.Context, pos domain.Position, limit int) ([]*domain.Transaction, error) {
	res, err := r.dispatch(ctx, func(c rpc.Client) (any, error) {
		return c.GetBlockTransactions(ctx, pos, limit)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*domain.Transaction), nil
}

// Preferred reports the router's current preference, for metrics/health.
func (r *Router) Preferred() Preference {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preferred
}

// BackoffDelay reports the current per-source backoff delay, for metrics.
func (r *Router) BackoffDelay(source Preference) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if source == PreferLocal {
		return r.localBackoff.delay
	}
	return r.publicBackoff.delay
}
