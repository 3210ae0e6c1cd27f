// Package ledger implements the Ledger aggregate (spec §4.I): the owner
// of a commit catalog, an index catalog, a set of named branches, and
// the publishers that announce each new commit.
package ledger

import (
	"context"
	"fmt"
	"time"

	"flureedb/branch"
	"flureedb/catalog"
	"flureedb/commit"
	"flureedb/db"
	"flureedb/nameservice"
	"flureedb/pkg/ferr"

	"github.com/sirupsen/logrus"
)

// NotifyOutcome is one of the four dispositions §4.I's notify operation
// can report.
type NotifyOutcome string

const (
	NotifyCurrent NotifyOutcome = "current" // pushed commit matches what we already have
	NotifyNewer   NotifyOutcome = "newer"   // our local state is ahead of the push
	NotifyUpdated NotifyOutcome = "updated" // branch state advanced to the pushed commit
	NotifyStale   NotifyOutcome = "stale"   // the pushed commit doesn't fit our chain at all
)

// Ledger owns everything needed to commit, publish, and serve one
// ledger's branches (spec §4.I).
type Ledger struct {
	Alias   string
	Address catalog.Address

	CommitCatalog catalog.ContentStore
	IndexCatalog  catalog.ContentStore

	PrimaryPublisher    nameservice.Publisher
	SecondaryPublishers map[string]nameservice.Publisher

	Branches map[string]*branch.Branch

	Indexing branch.IndexingOpts
}

// Config bundles the collaborators Create/Instantiate need into one
// named struct instead of a long parameter list.
type Config struct {
	Alias               string
	CommitCatalog       catalog.ContentStore
	IndexCatalog        catalog.ContentStore
	PrimaryPublisher    nameservice.Publisher
	SecondaryPublishers map[string]nameservice.Publisher
	Indexing            branch.IndexingOpts
	IndexFn             branch.IndexFunc
}

// Create initializes a ledger with a genesis empty DB at t=0 on the
// primary branch (spec §4.I "create").
func Create(cfg Config) *Ledger {
	l := &Ledger{
		Alias:               cfg.Alias,
		CommitCatalog:       cfg.CommitCatalog,
		IndexCatalog:        cfg.IndexCatalog,
		PrimaryPublisher:    cfg.PrimaryPublisher,
		SecondaryPublishers: cfg.SecondaryPublishers,
		Branches:            make(map[string]*branch.Branch),
		Indexing:            cfg.Indexing,
	}

	genesisDB := db.New(cfg.Alias, "main", cfg.Indexing.MinBytes, cfg.Indexing.MaxBytes)
	genesisCommit := commit.Commit{
		Alias:  cfg.Alias,
		Branch: "main",
		T:      0,
		Data:   commit.DataRef{T: 0},
		Time:   time.Now(),
		V:      commit.DataVersion,
	}
	identified, err := commit.Identify(genesisCommit)
	if err == nil {
		genesisCommit = identified
	}
	genesisDB = genesisDB.WithCommit(genesisCommit)

	l.Branches["main"] = branch.New("main", genesisCommit, genesisDB, cfg.Indexing, cfg.IndexFn, nil, nil)
	return l
}

// Instantiate builds a Ledger around an already-loaded commit, used when
// loading an existing ledger from a publisher/catalog rather than
// minting a new one (spec §4.I "instantiate").
func Instantiate(cfg Config, branchName string, initialCommit commit.Commit, initialDB *db.DB) *Ledger {
	l := &Ledger{
		Alias:               cfg.Alias,
		CommitCatalog:       cfg.CommitCatalog,
		IndexCatalog:        cfg.IndexCatalog,
		PrimaryPublisher:    cfg.PrimaryPublisher,
		SecondaryPublishers: cfg.SecondaryPublishers,
		Branches:            make(map[string]*branch.Branch),
		Indexing:            cfg.Indexing,
	}
	l.Branches[branchName] = branch.New(branchName, initialCommit, initialDB, cfg.Indexing, cfg.IndexFn, nil, nil)
	return l
}

// CurrentDB returns the named branch's current DB (spec §4.I
// "current-db(branch)"). An empty name means the primary "main" branch.
func (l *Ledger) CurrentDB(branchName string) (*db.DB, error) {
	if branchName == "" {
		branchName = "main"
	}
	b, ok := l.Branches[branchName]
	if !ok {
		return nil, ferr.New(ferr.KindUnknownLedger, fmt.Sprintf("ledger %s has no branch %q", l.Alias, branchName))
	}
	_, d := b.Current()
	return d, nil
}

// CommitOpts customizes a commit! call (message, author, tag — spec
// §4.E's optional commit metadata).
type CommitOpts struct {
	BranchName string
	Message    string
	Author     string
	Tag        []string
	Annotation map[string]any
}

// Commit implements spec §4.I's "commit!": stage newDB's novelty into a
// new commit, write it to the commit catalog, publish it to every
// registered publisher, and advance the named branch's state.
func (l *Ledger) Commit(ctx context.Context, newDB *db.DB, opts CommitOpts) (commit.Commit, error) {
	branchName := opts.BranchName
	if branchName == "" {
		branchName = "main"
	}
	b, ok := l.Branches[branchName]
	if !ok {
		return commit.Commit{}, ferr.New(ferr.KindUnknownLedger, fmt.Sprintf("ledger %s has no branch %q", l.Alias, branchName))
	}
	prevCommit, _ := b.Current()

	dataAddr, err := l.writeNovelty(ctx, newDB)
	if err != nil {
		return commit.Commit{}, fmt.Errorf("ledger: write novelty: %w", err)
	}

	next := commit.Commit{
		Alias:      l.Alias,
		Branch:     branchName,
		T:          newDB.T,
		Previous:   &commit.Ref{ID: prevCommit.ID, Address: prevCommit.Address},
		Data:       commit.DataRef{ID: string(dataAddr), Address: dataAddr, T: newDB.T, Flakes: int(newDB.Stats.FlakeCount), Size: int(newDB.Stats.SizeBytes)},
		Time:       time.Now(),
		Message:    opts.Message,
		Author:     opts.Author,
		Tag:        opts.Tag,
		Annotation: opts.Annotation,
		V:          commit.DataVersion,
	}
	if err := commit.Validate(&prevCommit, next); err != nil {
		return commit.Commit{}, err
	}

	identified, err := commit.Identify(next)
	if err != nil {
		return commit.Commit{}, fmt.Errorf("ledger: identify commit: %w", err)
	}

	canonical, err := commit.Canonical(identified)
	if err != nil {
		return commit.Commit{}, fmt.Errorf("ledger: canonicalize commit: %w", err)
	}
	commitAddr, _, err := l.CommitCatalog.ContentWriteBytes(ctx, canonical)
	if err != nil {
		return commit.Commit{}, fmt.Errorf("ledger: write commit: %w", err)
	}
	identified.Address = commitAddr

	committedDB := newDB.WithCommit(identified)
	if err := b.UpdateCommit(ctx, committedDB); err != nil {
		return commit.Commit{}, err
	}

	l.publish(ctx, canonical)
	return identified, nil
}

func (l *Ledger) writeNovelty(ctx context.Context, d *db.DB) (catalog.Address, error) {
	// The commit's data pointer addresses the novelty batch as a unit;
	// the five per-index novelty sets are folded into persistent trees
	// later by the indexer, not written raw here.
	blob := fmt.Sprintf("novelty:%s:%d:%d", d.Alias, d.T, d.Stats.FlakeCount)
	addr, _, err := l.CommitCatalog.ContentWriteBytes(ctx, []byte(blob))
	return addr, err
}

func (l *Ledger) publish(ctx context.Context, canonicalCommit []byte) {
	publishers := map[string]nameservice.Publisher{"primary": l.PrimaryPublisher}
	for name, p := range l.SecondaryPublishers {
		publishers[name] = p
	}
	for _, res := range nameservice.PublishToAll(ctx, publishers, l.Alias, canonicalCommit) {
		if res.Err != nil {
			logrus.Warnf("ledger %s: publish via %s failed: %v", l.Alias, res.Name, res.Err)
		}
	}
}

// Notify implements spec §4.I's "notify": given an externally pushed
// commit, decide how it relates to our branch state and advance it if
// it represents genuine forward progress.
func (l *Ledger) Notify(ctx context.Context, branchName string, pushed commit.Commit) (NotifyOutcome, error) {
	if branchName == "" {
		branchName = "main"
	}
	b, ok := l.Branches[branchName]
	if !ok {
		return NotifyStale, ferr.New(ferr.KindUnknownLedger, fmt.Sprintf("ledger %s has no branch %q", l.Alias, branchName))
	}
	current, currentDB := b.Current()

	switch {
	case pushed.ID == current.ID:
		return NotifyCurrent, nil
	case current.T.NewerThan(pushed.T):
		return NotifyNewer, nil
	case pushed.Previous != nil && pushed.Previous.ID == current.ID && pushed.T == current.T.Next():
		updatedDB := currentDB.WithCommit(pushed)
		updatedDB.T = pushed.T
		if err := b.UpdateCommit(ctx, updatedDB); err != nil {
			return NotifyStale, err
		}
		return NotifyUpdated, nil
	default:
		return NotifyStale, nil
	}
}

// TriggerIndex implements spec §4.I's "trigger-index!": manually enqueue
// the named branch's current DB for reindexing, delegating to
// Branch.TriggerIndex rather than UpdateCommit — there is no new commit
// here to validate or rebase, just the branch's already-live db going onto
// its index queue.
func (l *Ledger) TriggerIndex(ctx context.Context, branchName string) error {
	if branchName == "" {
		branchName = "main"
	}
	b, ok := l.Branches[branchName]
	if !ok {
		return ferr.New(ferr.KindUnknownLedger, fmt.Sprintf("ledger %s has no branch %q", l.Alias, branchName))
	}
	return b.TriggerIndex()
}
