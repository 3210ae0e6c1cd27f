// Package nameservice implements the publisher/publication contracts
// (spec §4.K, §6.3-6.4): how a commit address is published for an
// alias, how it's looked up, and how subscribers learn about new
// commits.
package nameservice

import (
	"context"
	"time"

	"flureedb/catalog"

	"github.com/sirupsen/logrus"
)

// IndexingStatus is the optional in-progress marker a Record carries
// while a process is producing a new index for the alias (spec §6.3).
type IndexingStatus struct {
	Started       time.Time `json:"started"`
	MachineID     string    `json:"machineId"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
}

// Record is the JSON-LD-ish node a lookup returns (spec §6.3).
type Record struct {
	Commit    catalog.Address `json:"f:commit"`
	Index     catalog.Address `json:"f:index,omitempty"`
	Indexing  *IndexingStatus `json:"f:indexing,omitempty"`
}

// SubscriptionMessage is the shape delivered over a subscription (spec
// §6.4). Action is always "new-commit" for messages a Publication emits
// itself; other actions are tolerated so a Publisher talking to foreign
// peers doesn't have to filter before handing messages upstream.
type SubscriptionMessage struct {
	Action string                   `json:"action"`
	Data   SubscriptionMessageData  `json:"data"`
}

// SubscriptionMessageData carries the new commit's address.
type SubscriptionMessageData struct {
	Address catalog.Address `json:"address"`
}

// Publisher offers the write/index-lifecycle side of §4.K.
type Publisher interface {
	Publish(ctx context.Context, alias string, commitJSONLD []byte) error
	Retract(ctx context.Context, alias string) error
	PublishingAddress(alias string) (catalog.Address, bool)

	// IndexStart/Heartbeat/Finish are optional: a Publisher that does not
	// track indexing progress may implement them as no-ops.
	IndexStart(ctx context.Context, alias, machineID string) error
	IndexHeartbeat(ctx context.Context, alias string) error
	IndexFinish(ctx context.Context, alias string) error
}

// Publication offers the read/subscribe side of §4.K.
type Publication interface {
	Subscribe(ctx context.Context, alias string) (<-chan SubscriptionMessage, error)
	Unsubscribe(alias string)
	KnownAddresses() []catalog.Address
	PublishedLedger(alias string) bool
	Lookup(ctx context.Context, alias string) (*Record, error)
}

// PublishResult is one publisher's outcome from PublishToAll.
type PublishResult struct {
	Name string
	Err  error
}

// PublishToAll implements §4.K's "publish-to-all returns an async merge
// of per-publisher outcomes": every publisher is tried; a failure is
// logged as a publishing-error and never aborts the others.
func PublishToAll(ctx context.Context, publishers map[string]Publisher, alias string, commitJSONLD []byte) []PublishResult {
	results := make(chan PublishResult, len(publishers))
	for name, p := range publishers {
		go func(name string, p Publisher) {
			err := p.Publish(ctx, alias, commitJSONLD)
			if err != nil {
				logrus.Warnf("nameservice: publish to %s failed (publishing-error): %v", name, err)
			}
			results <- PublishResult{Name: name, Err: err}
		}(name, p)
	}

	out := make([]PublishResult, 0, len(publishers))
	for range publishers {
		out = append(out, <-results)
	}
	return out
}
