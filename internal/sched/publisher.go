package sched

import (
	"context"
	"time"

	"github.com/dmitrijs2005/feedsync/internal/feed"
	"github.com/dmitrijs2005/feedsync/internal/feed/events"
	"github.com/dmitrijs2005/feedsync/internal/logging"
	"github.com/dmitrijs2005/feedsync/internal/state"
	"github.com/dmitrijs2005/feedsync/internal/store"
	"github.com/dmitrijs2005/feedsync/internal/wire"
)

// DefaultPollInterval is the publish scheduler's eligibility check cadence.
const DefaultPollInterval = time.Second

// PublishScheduler runs the publish loop for one locally-owned document:
// poll the change detector, and once the content has settled, snapshot it,
// serialize it and publish the next edition. The network call runs outside
// the document lock; the document is only updated after the call succeeds
// and only while the scheduler is still running.
type PublishScheduler struct {
	doc      *feed.Document
	detector *ChangeDetector
	store    store.ContentStore
	repo     state.Repository
	sink     events.Sink
	clock    feed.Clock
	log      logging.Logger
	interval time.Duration
}

// NewPublishScheduler wires a scheduler for doc. repo may be nil when the
// baseline is not persisted (tests, throwaway documents).
func NewPublishScheduler(doc *feed.Document, detector *ChangeDetector, cs store.ContentStore, repo state.Repository, sink events.Sink, clock feed.Clock, log logging.Logger, interval time.Duration) *PublishScheduler {
	if sink == nil {
		sink = events.Discard
	}
	if clock == nil {
		clock = feed.SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PublishScheduler{
		doc:      doc,
		detector: detector,
		store:    cs,
		repo:     repo,
		sink:     sink,
		clock:    clock,
		log:      log.With("component", "publisher", "address", doc.Address()),
		interval: interval,
	}
}

// Run polls until ctx is cancelled. Errors are logged and reported through
// the sink; the loop itself never stops on them.
func (p *PublishScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		p.Tick(ctx)
	}
}

// Tick performs one poll-and-maybe-publish cycle. Exposed so tests and
// manual flush paths can drive the scheduler with a fake clock instead of
// waiting out the ticker.
func (p *PublishScheduler) Tick(ctx context.Context) {
	if !p.detector.Poll() {
		return
	}

	insertTime := p.clock.Now().UnixMilli()
	snapshot := p.doc.Snapshot()
	snapshot.Time = insertTime

	payload, err := wire.Build(snapshot)
	if err != nil {
		p.log.Error(ctx, "building payload failed", "error", err)
		p.sink.Emit(events.PublishAborted{Address: p.doc.Address(), Err: err})
		return
	}

	edition := p.doc.LatestEdition() + 1
	p.sink.Emit(events.PublishStarted{Address: p.doc.Address(), Edition: edition})
	p.log.Debug(ctx, "publishing", "edition", edition, "bytes", len(payload))

	finalAddress, err := p.store.Publish(ctx, p.doc.Address(), edition, payload)
	if err != nil {
		p.log.Error(ctx, "publish failed", "edition", edition, "error", err)
		p.sink.Emit(events.PublishAborted{Address: p.doc.Address(), Err: err})
		return
	}
	if ctx.Err() != nil {
		// stopped while the request was in flight, the document must
		// not record a publish the engine no longer owns
		return
	}
	if finalAddress != p.doc.Address() {
		p.log.Warn(ctx, "store rewrote address", "final", finalAddress)
	}

	p.doc.CommitPublish(edition, insertTime)
	p.sink.Emit(events.PublishFinished{Address: p.doc.Address(), Edition: edition, InsertTime: insertTime})
	p.log.Info(ctx, "published", "edition", edition, "time", insertTime)

	// Edits made while the request was in flight keep the document
	// modified; only a still-matching fingerprint clears the detector.
	if p.doc.Fingerprint() == snapshot.Fingerprint {
		p.detector.SetBaseline(snapshot.Fingerprint)
	}
	if p.repo != nil {
		if err := p.repo.SetBaseline(ctx, p.doc.Address(), snapshot.Fingerprint, edition, insertTime); err != nil {
			p.log.Error(ctx, "persisting baseline failed", "error", err)
		}
	}
}
