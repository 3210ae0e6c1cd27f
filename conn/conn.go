// Package conn implements the connection registry (spec §4.J): a keyed,
// promise-based cache of loaded ledgers with idle eviction and
// subscription lifecycle management.
package conn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flureedb/commit"
	"flureedb/ledger"
	"flureedb/nameservice"
	"flureedb/pkg/ferr"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// ledgerPromise is a one-shot resolvable cell for a *ledger.Ledger, the
// same sync.Once-plus-closed-channel shape as asyncdb.AsyncDB (spec
// §4.J.1's "promise-of-ledger"), kept as its own type here since a
// registry entry resolves to a concrete *ledger.Ledger, never a
// DB-shaped value.
type ledgerPromise struct {
	once sync.Once
	done chan struct{}
	val  *ledger.Ledger
	err  error
}

func newLedgerPromise() *ledgerPromise {
	return &ledgerPromise{done: make(chan struct{})}
}

func (p *ledgerPromise) fulfill(l *ledger.Ledger, err error) {
	p.once.Do(func() {
		p.val, p.err = l, err
		close(p.done)
	})
}

func (p *ledgerPromise) get(ctx context.Context) (*ledger.Ledger, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *ledgerPromise) peek() (*ledger.Ledger, error, bool) {
	select {
	case <-p.done:
		return p.val, p.err, true
	default:
		return nil, nil, false
	}
}

// Loader resolves an alias or content address into a freshly loaded
// Ledger, subscribing it to its publication as a side effect. It is the
// one piece of §4.J.4's "load-ledger" that necessarily depends on
// caller-specific wiring (which publishers to consult, how to
// instantiate), so Registry takes it as a dependency rather than
// hard-coding it.
type Loader func(ctx context.Context, aliasOrAddress string) (*ledger.Ledger, <-chan nameservice.SubscriptionMessage, error)

// Registry is the connection registry of spec §4.J.
type Registry struct {
	CheckInterval time.Duration
	IdleTimeout   time.Duration

	load Loader

	mu            sync.Mutex
	ledgers       map[string]*ledgerPromise
	subscriptions map[string]<-chan nameservice.SubscriptionMessage
	unsubscribe   map[string]func()
	lastAccessed  map[string]time.Time
	disconnecting bool

	publications map[string]nameservice.Publication

	stop chan struct{}
	wg   sync.WaitGroup
}

// New returns a Registry with its idle-cleanup loop started, unless
// checkInterval is zero (useful in tests that drive cleanup manually).
func New(load Loader, checkInterval, idleTimeout time.Duration) *Registry {
	r := &Registry{
		CheckInterval: checkInterval,
		IdleTimeout:   idleTimeout,
		load:          load,
		ledgers:       make(map[string]*ledgerPromise),
		subscriptions: make(map[string]<-chan nameservice.SubscriptionMessage),
		unsubscribe:   make(map[string]func()),
		lastAccessed:  make(map[string]time.Time),
		publications:  make(map[string]nameservice.Publication),
		stop:          make(chan struct{}),
	}
	if checkInterval > 0 {
		r.wg.Add(1)
		go r.idleCleanupLoop()
	}
	return r
}

// RegisterLedger implements §4.J.1: atomically return (cached?, promise)
// for alias, creating a new unfulfilled promise the caller must fulfill
// only if cached is false.
func (r *Registry) RegisterLedger(alias string) (cached bool, p *ledgerPromise) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.ledgers[alias]; ok {
		r.lastAccessed[alias] = time.Now()
		return true, existing
	}
	p = newLedgerPromise()
	r.ledgers[alias] = p
	r.lastAccessed[alias] = time.Now()
	return false, p
}

// touch refreshes alias's last-accessed timestamp.
func (r *Registry) touch(alias string) {
	r.mu.Lock()
	r.lastAccessed[alias] = time.Now()
	r.mu.Unlock()
}

// LoadLedger implements §4.J.4's "load-ledger": await a cached promise,
// or else resolve alias via the injected Loader, subscribe, and fulfill.
func (r *Registry) LoadLedger(ctx context.Context, aliasOrAddress string) (*ledger.Ledger, error) {
	cached, p := r.RegisterLedger(aliasOrAddress)
	if cached {
		return p.get(ctx)
	}

	l, sub, err := r.load(ctx, aliasOrAddress)
	if err != nil {
		p.fulfill(nil, err)
		return nil, err
	}

	r.mu.Lock()
	r.subscriptions[aliasOrAddress] = sub
	r.mu.Unlock()

	p.fulfill(l, nil)
	return l, nil
}

// SetPublication registers the Publication used to check alias's
// indexing status during idle cleanup and to unsubscribe on release.
func (r *Registry) SetPublication(alias string, pub nameservice.Publication) {
	r.mu.Lock()
	r.publications[alias] = pub
	r.mu.Unlock()
}

// idleCleanupLoop implements §4.J.2: wake every CheckInterval and
// release any alias idle past IdleTimeout, unless it is actively
// indexing.
func (r *Registry) idleCleanupLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweepIdle()
		case <-r.stop:
			return
		}
	}
}

func (r *Registry) sweepIdle() {
	sweepID := uuid.New().String()
	logger := zap.L().Sugar()

	now := time.Now()
	r.mu.Lock()
	candidates := make([]string, 0, len(r.lastAccessed))
	for alias, last := range r.lastAccessed {
		if now.Sub(last) > r.IdleTimeout {
			candidates = append(candidates, alias)
		}
	}
	r.mu.Unlock()

	if len(candidates) > 0 {
		logger.Infof("idle sweep %s: %d candidate(s) past timeout", sweepID, len(candidates))
	}

	for _, alias := range candidates {
		if r.isIndexing(alias) {
			logger.Infof("idle sweep %s: %s is indexing, deferring release", sweepID, alias)
			r.touch(alias)
			continue
		}
		r.ReleaseLedger(alias)
	}
}

func (r *Registry) isIndexing(alias string) bool {
	r.mu.Lock()
	pub, ok := r.publications[alias]
	r.mu.Unlock()
	if !ok {
		return false
	}
	rec, err := pub.Lookup(context.Background(), alias)
	if err != nil {
		return false
	}
	return rec.Indexing != nil
}

// ReleaseLedger implements §4.J.3.
func (r *Registry) ReleaseLedger(alias string) {
	r.mu.Lock()
	p, ok := r.ledgers[alias]
	pub, hasPub := r.publications[alias]
	delete(r.ledgers, alias)
	delete(r.subscriptions, alias)
	delete(r.lastAccessed, alias)
	delete(r.publications, alias)
	r.mu.Unlock()

	if !ok {
		return
	}
	if l, err, resolved := p.peek(); resolved && err == nil && l != nil {
		for _, b := range l.Branches {
			b.Close()
		}
	}
	if hasPub {
		pub.Unsubscribe(alias)
	}
}

// Notify implements §4.J.4's "notify(address)": find the ledger cached
// under the commit's alias and delegate to Ledger.Notify, releasing the
// ledger if the push turns out to be irreconcilably stale.
func (r *Registry) Notify(ctx context.Context, alias, branchName string, pushed commit.Commit) (ledger.NotifyOutcome, error) {
	r.mu.Lock()
	p, ok := r.ledgers[alias]
	r.mu.Unlock()
	if !ok {
		return ledger.NotifyStale, ferr.New(ferr.KindUnknownLedger, fmt.Sprintf("no cached ledger for alias %s", alias))
	}
	l, err := p.get(ctx)
	if err != nil {
		return ledger.NotifyStale, err
	}

	outcome, err := l.Notify(ctx, branchName, pushed)
	if err != nil {
		return outcome, err
	}
	if outcome == ledger.NotifyStale {
		logrus.Warnf("conn: releasing ledger %s after a stale notify", alias)
		r.ReleaseLedger(alias)
	}
	return outcome, nil
}

// Close stops the idle-cleanup loop and releases every cached ledger.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.disconnecting {
		r.mu.Unlock()
		return
	}
	r.disconnecting = true
	aliases := make([]string, 0, len(r.ledgers))
	for alias := range r.ledgers {
		aliases = append(aliases, alias)
	}
	r.mu.Unlock()

	close(r.stop)
	r.wg.Wait()
	for _, alias := range aliases {
		r.ReleaseLedger(alias)
	}
}
