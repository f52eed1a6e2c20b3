package sched

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/feedsync/internal/common"
	"github.com/dmitrijs2005/feedsync/internal/feed"
	"github.com/dmitrijs2005/feedsync/internal/feed/events"
	"github.com/dmitrijs2005/feedsync/internal/logging"
	"github.com/dmitrijs2005/feedsync/internal/merge"
	"github.com/dmitrijs2005/feedsync/internal/state"
	"github.com/dmitrijs2005/feedsync/internal/store"
	"github.com/dmitrijs2005/feedsync/internal/wire"
)

// RescueStatus is the user-visible state of the controller.
type RescueStatus struct {
	Fetching    bool
	NextEdition int64
	LastError   string
}

// RescueController recovers older editions of a document on explicit user
// request. Each trigger performs exactly one fetch and returns to idle;
// the candidate edition walks backwards one step per trigger regardless of
// outcome and never advances on its own. While a rescue fetch is running
// the document is locked against publishing.
type RescueController struct {
	doc    *feed.Document
	store  store.ContentStore
	merger *merge.Engine
	sink   events.Sink
	repo   state.Repository
	log    logging.Logger

	mu        sync.Mutex
	fetching  bool
	next      int64
	nextKnown bool
	lastError string
}

// NewRescueController creates an idle controller. repo may be nil when the
// sticky rescue status is not persisted.
func NewRescueController(doc *feed.Document, cs store.ContentStore, merger *merge.Engine, sink events.Sink, repo state.Repository, log logging.Logger) *RescueController {
	if sink == nil {
		sink = events.Discard
	}
	return &RescueController{
		doc:    doc,
		store:  cs,
		merger: merger,
		sink:   sink,
		repo:   repo,
		log:    log.With("component", "rescue", "address", doc.Address()),
	}
}

// Trigger fetches one edition. A positive edition targets it explicitly;
// zero asks for the current candidate, which starts at the latest edition
// minus one. Returns common.ErrRescueBusy when a fetch is already running.
// Fetch and parse failures are returned and also recorded as the sticky
// status a success clears.
func (r *RescueController) Trigger(ctx context.Context, edition int64) error {
	r.mu.Lock()
	if r.fetching {
		r.mu.Unlock()
		return common.ErrRescueBusy
	}
	if edition <= 0 {
		if !r.nextKnown {
			r.next = r.doc.LatestEdition() - 1
		}
		edition = r.next
		if edition < 0 {
			edition = 0
		}
	}
	r.fetching = true
	r.mu.Unlock()

	r.doc.LockForRescue()
	err := r.fetchOne(ctx, edition)
	r.doc.UnlockRescue()

	r.mu.Lock()
	r.fetching = false
	r.next = edition - 1
	if r.next < 0 {
		r.next = 0
	}
	r.nextKnown = true
	if err != nil {
		r.lastError = err.Error()
	} else {
		r.lastError = ""
	}
	message := r.lastError
	r.mu.Unlock()

	if r.repo != nil {
		if perr := r.repo.SetRescueError(ctx, r.doc.Address(), message); perr != nil {
			r.log.Error(ctx, "persisting rescue status failed", "error", perr)
		}
	}
	return err
}

// RestoreLastError seeds the sticky status from persisted state, so a
// rescue failure stays visible across a daemon restart.
func (r *RescueController) RestoreLastError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastError = message
}

// Status reports the controller state for the admin surface.
func (r *RescueController) Status() RescueStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.next
	if !r.nextKnown {
		next = r.doc.LatestEdition() - 1
		if next < 0 {
			next = 0
		}
	}
	return RescueStatus{Fetching: r.fetching, NextEdition: next, LastError: r.lastError}
}

func (r *RescueController) fetchOne(ctx context.Context, edition int64) error {
	address := r.doc.Address()
	r.log.Info(ctx, "rescue fetch", "edition", edition)

	data, err := r.store.Fetch(ctx, address, edition)
	if err != nil {
		return fmt.Errorf("fetching edition %d: %w", edition, err)
	}
	parsed, err := wire.Parse(data, address)
	if err != nil {
		return fmt.Errorf("parsing edition %d: %w", edition, err)
	}

	evs, err := r.merger.Merge(r.doc, merge.Incoming{Time: parsed.Time, Edition: edition, Content: parsed.Content}, true)
	if err != nil {
		return fmt.Errorf("merging edition %d: %w", edition, err)
	}
	for _, e := range evs {
		r.sink.Emit(e)
	}
	r.log.Info(ctx, "rescue merged", "edition", edition, "events", len(evs))
	return nil
}
