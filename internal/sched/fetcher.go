package sched

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/feedsync/internal/feed"
	"github.com/dmitrijs2005/feedsync/internal/feed/events"
	"github.com/dmitrijs2005/feedsync/internal/logging"
	"github.com/dmitrijs2005/feedsync/internal/merge"
	"github.com/dmitrijs2005/feedsync/internal/watch"
	"github.com/dmitrijs2005/feedsync/internal/wire"
)

// DefaultActiveWindow separates actively-updated documents (watched with
// high priority) from dormant ones.
const DefaultActiveWindow = 7 * 24 * time.Hour

// PersistFunc stores a document's post-merge edition and time. May be nil.
type PersistFunc func(ctx context.Context, doc *feed.Document)

// FetchScheduler keeps followed documents current. It subscribes each
// watched document to the version watch and, on every notification of a
// new or newly confirmed edition, fetches the payload, parses it and
// merges it. Each run happens on its own goroutine, so a slow fetch
// never stalls the watch backend's delivery loop. Runs are serialized
// per document; a failed run changes nothing and the next notification
// retries.
type FetchScheduler struct {
	store        fetchStore
	watch        watch.VersionWatch
	merger       *merge.Engine
	sink         events.Sink
	persist      PersistFunc
	clock        feed.Clock
	log          logging.Logger
	activeWindow time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup

	mu   sync.Mutex
	docs map[string]*watchedDoc
}

// fetchStore is the slice of store.ContentStore the scheduler needs.
type fetchStore interface {
	Fetch(ctx context.Context, address string, edition int64) ([]byte, error)
}

type watchedDoc struct {
	doc *feed.Document

	mu            sync.Mutex // serializes fetch-and-merge per document
	lastEdition   int64
	lastConfirmed bool
}

// NewFetchScheduler creates a scheduler. persist may be nil.
func NewFetchScheduler(cs fetchStore, vw watch.VersionWatch, merger *merge.Engine, sink events.Sink, persist PersistFunc, clock feed.Clock, log logging.Logger, activeWindow time.Duration) *FetchScheduler {
	if sink == nil {
		sink = events.Discard
	}
	if clock == nil {
		clock = feed.SystemClock{}
	}
	if activeWindow <= 0 {
		activeWindow = DefaultActiveWindow
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FetchScheduler{
		store:        cs,
		watch:        vw,
		merger:       merger,
		sink:         sink,
		persist:      persist,
		clock:        clock,
		log:          log.With("component", "fetcher"),
		activeWindow: activeWindow,
		ctx:          ctx,
		cancel:       cancel,
		docs:         make(map[string]*watchedDoc),
	}
}

// Watch subscribes the document to edition notifications. Watching an
// already-watched address tears the old subscription down first, so no
// stale callback can race a fresh one.
func (f *FetchScheduler) Watch(doc *feed.Document) error {
	address := doc.Address()

	f.mu.Lock()
	if _, ok := f.docs[address]; ok {
		f.watch.Unsubscribe(address)
	}
	w := &watchedDoc{doc: doc, lastEdition: doc.LatestEdition()}
	f.docs[address] = w
	f.mu.Unlock()

	active := f.clock.Now().UnixMilli()-doc.Time() <= f.activeWindow.Milliseconds()
	err := f.watch.Subscribe(address, active, func(edition int64, confirmed bool) {
		f.onNotify(w, edition, confirmed)
	})
	if err != nil {
		f.mu.Lock()
		delete(f.docs, address)
		f.mu.Unlock()
		return err
	}
	f.log.Debug(f.ctx, "watching", "address", address, "active", active)
	return nil
}

// Unwatch removes the subscription for an address.
func (f *FetchScheduler) Unwatch(address string) {
	f.mu.Lock()
	_, ok := f.docs[address]
	delete(f.docs, address)
	f.mu.Unlock()
	if ok {
		f.watch.Unsubscribe(address)
	}
}

// Stop unsubscribes everything, cancels in-flight fetches and waits for
// dispatched runs to finish.
func (f *FetchScheduler) Stop() {
	f.cancel()
	f.mu.Lock()
	addresses := make([]string, 0, len(f.docs))
	for address := range f.docs {
		addresses = append(addresses, address)
	}
	f.docs = make(map[string]*watchedDoc)
	f.mu.Unlock()
	for _, address := range addresses {
		f.watch.Unsubscribe(address)
	}
	f.inflight.Wait()
}

// onNotify runs on the watch backend's delivery goroutine and must
// return quickly; the actual work is handed off.
func (f *FetchScheduler) onNotify(w *watchedDoc, edition int64, confirmed bool) {
	if f.ctx.Err() != nil {
		return
	}
	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		f.fetchAndMerge(w, edition, confirmed)
	}()
}

func (f *FetchScheduler) fetchAndMerge(w *watchedDoc, edition int64, confirmed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	isNew := edition > w.lastEdition
	newlyConfirmed := edition == w.lastEdition && confirmed && !w.lastConfirmed
	if !isNew && !newlyConfirmed {
		return
	}

	address := w.doc.Address()
	data, err := f.store.Fetch(f.ctx, address, edition)
	if err != nil {
		f.log.Warn(f.ctx, "fetch failed", "address", address, "edition", edition, "error", err)
		return
	}
	parsed, err := wire.Parse(data, address)
	if err != nil {
		f.log.Warn(f.ctx, "discarding malformed payload", "address", address, "edition", edition, "error", err)
		return
	}

	evs, err := f.merger.Merge(w.doc, merge.Incoming{Time: parsed.Time, Edition: edition, Content: parsed.Content}, false)
	w.lastEdition = edition
	w.lastConfirmed = confirmed
	if err != nil {
		f.log.Debug(f.ctx, "merge rejected snapshot", "address", address, "edition", edition, "error", err)
		return
	}
	for _, e := range evs {
		f.sink.Emit(e)
	}
	if f.persist != nil {
		f.persist(f.ctx, w.doc)
	}
	f.log.Info(f.ctx, "merged", "address", address, "edition", edition, "events", len(evs))
}
