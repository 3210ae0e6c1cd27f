package nameservice

import (
	"context"
	"encoding/json"
	"sync"

	"flureedb/catalog"
	"flureedb/pkg/ferr"
)

// MemNameservice is an in-memory Publisher+Publication, grounded on the
// same map-plus-mutex shape as core/network.go's package-level
// replicatedMessages store, generalized from "replicated payloads per
// topic" to "latest record per alias" plus one fan-out channel set per
// alias for subscribers.
type MemNameservice struct {
	mu      sync.RWMutex
	records map[string]*Record
	subs    map[string][]chan SubscriptionMessage
}

// NewMemNameservice returns an empty in-memory nameservice.
func NewMemNameservice() *MemNameservice {
	return &MemNameservice{
		records: make(map[string]*Record),
		subs:    make(map[string][]chan SubscriptionMessage),
	}
}

// Publish records alias as published (spec §6.4's "new-commit" action).
// When commitJSONLD carries an "id", that address becomes alias's commit
// address and subscribers are notified, as PublishCommit does; otherwise
// only the record is created, like PubSubNameservice.Publish.
func (m *MemNameservice) Publish(ctx context.Context, alias string, commitJSONLD []byte) error {
	var doc struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(commitJSONLD, &doc); err == nil && doc.ID != "" {
		m.PublishCommit(alias, catalog.Address(doc.ID))
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[alias]; !ok {
		m.records[alias] = &Record{}
	}
	return nil
}

// PublishCommit is the in-memory-only convenience entry point: it sets
// alias's commit address directly and fans the new-commit notification
// out to every live subscriber.
func (m *MemNameservice) PublishCommit(alias string, address catalog.Address) {
	m.mu.Lock()
	rec, ok := m.records[alias]
	if !ok {
		rec = &Record{}
		m.records[alias] = rec
	}
	rec.Commit = address
	subs := append([]chan SubscriptionMessage(nil), m.subs[alias]...)
	m.mu.Unlock()

	msg := SubscriptionMessage{Action: "new-commit", Data: SubscriptionMessageData{Address: address}}
	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// PublishIndex sets alias's index address, used by tests simulating a
// completed reindex without driving the full indexer pipeline.
func (m *MemNameservice) PublishIndex(alias string, address catalog.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[alias]
	if !ok {
		rec = &Record{}
		m.records[alias] = rec
	}
	rec.Index = address
}

func (m *MemNameservice) Retract(ctx context.Context, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, alias)
	return nil
}

func (m *MemNameservice) PublishingAddress(alias string) (catalog.Address, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[alias]
	if !ok {
		return "", false
	}
	return rec.Commit, true
}

func (m *MemNameservice) IndexStart(ctx context.Context, alias, machineID string) error {
	return m.setIndexing(alias, func(st *IndexingStatus) { st.MachineID = machineID })
}

func (m *MemNameservice) IndexHeartbeat(ctx context.Context, alias string) error {
	return m.setIndexing(alias, func(st *IndexingStatus) {})
}

func (m *MemNameservice) IndexFinish(ctx context.Context, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[alias]; ok {
		rec.Indexing = nil
	}
	return nil
}

func (m *MemNameservice) setIndexing(alias string, mutate func(*IndexingStatus)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[alias]
	if !ok {
		rec = &Record{}
		m.records[alias] = rec
	}
	if rec.Indexing == nil {
		rec.Indexing = &IndexingStatus{}
	}
	mutate(rec.Indexing)
	return nil
}

func (m *MemNameservice) Subscribe(ctx context.Context, alias string) (<-chan SubscriptionMessage, error) {
	ch := make(chan SubscriptionMessage, 8)
	m.mu.Lock()
	m.subs[alias] = append(m.subs[alias], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.Unsubscribe(alias)
	}()
	return ch, nil
}

// Unsubscribe drops every subscriber channel registered for alias.
// Messages already in flight may still arrive on a caller's copy of the
// channel reference, but this implementation closes its own references
// so further Publish calls can't deliver to them (spec §6.4: "messages
// may arrive after unsubscribe and must be dropped" — dropping is the
// subscriber's responsibility once it observes a closed channel).
func (m *MemNameservice) Unsubscribe(alias string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[alias] {
		close(ch)
	}
	delete(m.subs, alias)
}

func (m *MemNameservice) KnownAddresses() []catalog.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]catalog.Address, 0, len(m.records))
	for _, rec := range m.records {
		if rec.Commit != "" {
			out = append(out, rec.Commit)
		}
	}
	return out
}

func (m *MemNameservice) PublishedLedger(alias string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[alias]
	return ok
}

func (m *MemNameservice) Lookup(ctx context.Context, alias string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[alias]
	if !ok {
		return nil, ferr.New(ferr.KindUnknownLedger, "no record for alias "+alias)
	}
	cp := *rec
	return &cp, nil
}

var (
	_ Publisher    = (*MemNameservice)(nil)
	_ Publication  = (*MemNameservice)(nil)
)
