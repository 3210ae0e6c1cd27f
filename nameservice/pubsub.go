package nameservice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"flureedb/catalog"
	"flureedb/pkg/ferr"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"
)

// PubSubNameservice publishes and subscribes to per-alias gossipsub
// topics, grounded on core/network.go's NewNode/Broadcast/Subscribe
// shape: one libp2p host, a topic/subscription cache guarded by its own
// mutex, and a background goroutine per subscription forwarding decoded
// messages onto a channel.
type PubSubNameservice struct {
	host   host.Host
	pubsub *pubsub.PubSub
	ctx    context.Context
	cancel context.CancelFunc

	topicLock sync.Mutex
	topics    map[string]*pubsub.Topic

	subLock sync.Mutex
	subs    map[string]*pubsub.Subscription
	cancels map[string]context.CancelFunc

	recLock sync.RWMutex
	records map[string]*Record
}

// NewPubSubNameservice bootstraps a libp2p host with gossipsub, the same
// construction sequence as core/network.go's NewNode (minus the
// NAT/mDNS discovery steps, which are out of scope for a nameservice
// that already gets its bootstrap peers explicitly).
func NewPubSubNameservice(listenAddr string, bootstrapPeers []string) (*PubSubNameservice, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("nameservice: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("nameservice: create pubsub: %w", err)
	}

	n := &PubSubNameservice{
		host:    h,
		pubsub:  ps,
		ctx:     ctx,
		cancel:  cancel,
		topics:  make(map[string]*pubsub.Topic),
		subs:    make(map[string]*pubsub.Subscription),
		cancels: make(map[string]context.CancelFunc),
		records: make(map[string]*Record),
	}

	for _, addr := range bootstrapPeers {
		if err := n.dial(addr); err != nil {
			logrus.Warnf("nameservice: bootstrap dial %s failed: %v", addr, err)
		}
	}

	return n, nil
}

func (n *PubSubNameservice) dial(addr string) error {
	// Grounded on core/network.go's DialSeed, simplified to a single
	// AddrInfo parse + Connect since bootstrap errors here are logged
	// (not aggregated) by the caller.
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return err
	}
	return n.host.Connect(n.ctx, *info)
}

func (n *PubSubNameservice) topic(name string) (*pubsub.Topic, error) {
	n.topicLock.Lock()
	defer n.topicLock.Unlock()
	t, ok := n.topics[name]
	if ok {
		return t, nil
	}
	t, err := n.pubsub.Join(name)
	if err != nil {
		return nil, fmt.Errorf("nameservice: join topic %s: %w", name, err)
	}
	n.topics[name] = t
	return t, nil
}

// Publish implements spec §4.K/§6.4: publish a new-commit message carrying
// the "id" parsed from commitJSONLD on alias's topic, and update the
// locally cached record so PublishingAddress/Lookup reflect it without a
// round trip.
func (n *PubSubNameservice) Publish(ctx context.Context, alias string, commitJSONLD []byte) error {
	var doc struct {
		ID string `json:"id"`
	}
	addr := catalog.Address("")
	if err := json.Unmarshal(commitJSONLD, &doc); err == nil && doc.ID != "" {
		addr = catalog.Address(doc.ID)
	}

	t, err := n.topic(alias)
	if err != nil {
		return err
	}
	msg := SubscriptionMessage{Action: "new-commit", Data: SubscriptionMessageData{Address: addr}}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("nameservice: marshal subscription message: %w", err)
	}
	if err := t.Publish(ctx, payload); err != nil {
		return fmt.Errorf("nameservice: publish alias %s: %w", alias, err)
	}

	n.recLock.Lock()
	rec, ok := n.records[alias]
	if !ok {
		rec = &Record{}
		n.records[alias] = rec
	}
	if addr != "" {
		rec.Commit = addr
	}
	n.recLock.Unlock()
	return nil
}

func (n *PubSubNameservice) Retract(ctx context.Context, alias string) error {
	n.recLock.Lock()
	delete(n.records, alias)
	n.recLock.Unlock()
	return nil
}

func (n *PubSubNameservice) PublishingAddress(alias string) (catalog.Address, bool) {
	n.recLock.RLock()
	defer n.recLock.RUnlock()
	rec, ok := n.records[alias]
	if !ok || rec.Commit == "" {
		return "", false
	}
	return rec.Commit, true
}

func (n *PubSubNameservice) IndexStart(ctx context.Context, alias, machineID string) error {
	n.recLock.Lock()
	defer n.recLock.Unlock()
	rec := n.recordLocked(alias)
	rec.Indexing = &IndexingStatus{Started: time.Now(), MachineID: machineID, LastHeartbeat: time.Now()}
	return nil
}

func (n *PubSubNameservice) IndexHeartbeat(ctx context.Context, alias string) error {
	n.recLock.Lock()
	defer n.recLock.Unlock()
	rec := n.recordLocked(alias)
	if rec.Indexing != nil {
		rec.Indexing.LastHeartbeat = time.Now()
	}
	return nil
}

func (n *PubSubNameservice) IndexFinish(ctx context.Context, alias string) error {
	n.recLock.Lock()
	defer n.recLock.Unlock()
	if rec, ok := n.records[alias]; ok {
		rec.Indexing = nil
	}
	return nil
}

func (n *PubSubNameservice) recordLocked(alias string) *Record {
	rec, ok := n.records[alias]
	if !ok {
		rec = &Record{}
		n.records[alias] = rec
	}
	return rec
}

// Subscribe joins alias's topic and forwards decoded messages, matching
// core/network.go's Subscribe: a per-call goroutine reading
// sub.Next(ctx) in a loop, logging and closing the output channel on
// error. Unrecognized actions are logged and dropped (spec §6.4).
func (n *PubSubNameservice) Subscribe(ctx context.Context, alias string) (<-chan SubscriptionMessage, error) {
	t, err := n.topic(alias)
	if err != nil {
		return nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("nameservice: subscribe alias %s: %w", alias, err)
	}

	subCtx, cancel := context.WithCancel(n.ctx)
	n.subLock.Lock()
	n.subs[alias] = sub
	n.cancels[alias] = cancel
	n.subLock.Unlock()

	out := make(chan SubscriptionMessage)
	go func() {
		defer close(out)
		for {
			raw, err := sub.Next(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					logrus.Warnf("nameservice: subscription %s ended: %v", alias, err)
				}
				return
			}
			var msg SubscriptionMessage
			if err := json.Unmarshal(raw.Data, &msg); err != nil {
				logrus.Warnf("nameservice: malformed message on %s: %v", alias, err)
				continue
			}
			if msg.Action != "new-commit" {
				logrus.Warnf("nameservice: ignoring unknown action %q on %s", msg.Action, alias)
				continue
			}
			select {
			case out <- msg:
			case <-subCtx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Unsubscribe cancels alias's subscription context, which stops
// sub.Next from blocking further and lets the forwarding goroutine close
// its channel. Per spec §6.4, any message already in flight when this is
// called may still be delivered; the subscriber must treat it as stale.
func (n *PubSubNameservice) Unsubscribe(alias string) {
	n.subLock.Lock()
	defer n.subLock.Unlock()
	if cancel, ok := n.cancels[alias]; ok {
		cancel()
		delete(n.cancels, alias)
	}
	if sub, ok := n.subs[alias]; ok {
		sub.Cancel()
		delete(n.subs, alias)
	}
}

func (n *PubSubNameservice) KnownAddresses() []catalog.Address {
	n.recLock.RLock()
	defer n.recLock.RUnlock()
	out := make([]catalog.Address, 0, len(n.records))
	for _, rec := range n.records {
		if rec.Commit != "" {
			out = append(out, rec.Commit)
		}
	}
	return out
}

func (n *PubSubNameservice) PublishedLedger(alias string) bool {
	n.recLock.RLock()
	defer n.recLock.RUnlock()
	_, ok := n.records[alias]
	return ok
}

func (n *PubSubNameservice) Lookup(ctx context.Context, alias string) (*Record, error) {
	n.recLock.RLock()
	defer n.recLock.RUnlock()
	rec, ok := n.records[alias]
	if !ok {
		return nil, ferr.New(ferr.KindUnknownLedger, "no record for alias "+alias)
	}
	cp := *rec
	return &cp, nil
}

// Close tears down the host and cancels every subscription, mirroring
// core/network.go's Node.Close.
func (n *PubSubNameservice) Close() error {
	n.cancel()
	return n.host.Close()
}

var (
	_ Publisher   = (*PubSubNameservice)(nil)
	_ Publication = (*PubSubNameservice)(nil)
)
