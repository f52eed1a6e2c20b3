// Package engine assembles the document registry and its schedulers into
// one running unit: locally-owned documents get a change detector and a
// publish loop, followed documents get a watch subscription, and every
// document can be rescued on request. The engine restores its registry
// from the state repository at startup and persists registry changes as
// they happen.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/feedsync/internal/common"
	"github.com/dmitrijs2005/feedsync/internal/feed"
	"github.com/dmitrijs2005/feedsync/internal/feed/events"
	"github.com/dmitrijs2005/feedsync/internal/logging"
	"github.com/dmitrijs2005/feedsync/internal/merge"
	"github.com/dmitrijs2005/feedsync/internal/sched"
	"github.com/dmitrijs2005/feedsync/internal/state"
	"github.com/dmitrijs2005/feedsync/internal/store"
	"github.com/dmitrijs2005/feedsync/internal/watch"
	"github.com/dmitrijs2005/feedsync/internal/wire"
)

// Options wires the engine's collaborators. Store and Watch are required;
// everything else has a usable zero value.
type Options struct {
	Store        store.ContentStore
	Watch        watch.VersionWatch
	Repo         state.Repository
	Sink         events.Sink
	Clock        feed.Clock
	Log          logging.Logger
	Limits       merge.Limits
	AdminAddr    string
	PollInterval time.Duration
	ActiveWindow time.Duration
}

type managedDoc struct {
	doc       *feed.Document
	rescue    *sched.RescueController
	detector  *sched.ChangeDetector // local documents only
	publisher *sched.PublishScheduler
	cancel    context.CancelFunc

	// edition whose content could not be refetched at restore time;
	// the document stays rescue-locked until it is back
	pendingRecovery int64
}

// recoveryRetryInterval paces refetch attempts for a restored document
// whose published content was not reachable at startup.
const recoveryRetryInterval = 30 * time.Second

// Engine owns every synchronized document and the goroutines serving
// them. Safe for concurrent use.
type Engine struct {
	store        store.ContentStore
	repo         state.Repository
	sink         events.Sink
	clock        feed.Clock
	log          logging.Logger
	settings     *feed.Settings
	merger       *merge.Engine
	fetcher      *sched.FetchScheduler
	adminAddr    string
	pollInterval time.Duration

	mu     sync.Mutex
	docs   map[string]*managedDoc
	runCtx context.Context
	wg     sync.WaitGroup
}

// New creates an engine. Call Run to restore persisted documents and
// start the schedulers.
func New(opts Options) *Engine {
	if opts.Sink == nil {
		opts.Sink = events.Discard
	}
	if opts.Clock == nil {
		opts.Clock = feed.SystemClock{}
	}
	if opts.Limits == (merge.Limits{}) {
		opts.Limits = merge.DefaultLimits()
	}

	e := &Engine{
		store:        opts.Store,
		repo:         opts.Repo,
		sink:         opts.Sink,
		clock:        opts.Clock,
		log:          opts.Log.With("component", "engine"),
		settings:     feed.NewSettings(),
		adminAddr:    opts.AdminAddr,
		pollInterval: opts.PollInterval,
		docs:         make(map[string]*managedDoc),
	}
	e.merger = merge.NewEngine(e.isLocalAuthor, opts.Limits, opts.Clock)
	e.fetcher = sched.NewFetchScheduler(opts.Store, opts.Watch, e.merger, opts.Sink, e.persistDoc, opts.Clock, opts.Log, opts.ActiveWindow)
	return e
}

// Settings exposes the shared runtime tunables.
func (e *Engine) Settings() *feed.Settings { return e.settings }

// Run restores persisted documents, starts their schedulers and the admin
// endpoint, then blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.restore(ctx); err != nil {
		return fmt.Errorf("restoring documents: %w", err)
	}

	eg, egctx := errgroup.WithContext(ctx)

	e.mu.Lock()
	e.runCtx = egctx
	pending := make([]*managedDoc, 0, len(e.docs))
	for _, m := range e.docs {
		if m.publisher != nil {
			pending = append(pending, m)
		}
	}
	e.mu.Unlock()
	for _, m := range pending {
		e.startPublisher(egctx, m)
		if m.pendingRecovery > 0 {
			e.wg.Add(1)
			go func(m *managedDoc) {
				defer e.wg.Done()
				e.recoverLoop(egctx, m)
			}(m)
		}
	}

	if e.adminAddr != "" {
		eg.Go(func() error { return e.serveAdmin(egctx) })
	}
	eg.Go(func() error {
		<-egctx.Done()
		e.fetcher.Stop()
		return nil
	})

	err := eg.Wait()
	e.wg.Wait()
	e.log.Info(ctx, "engine stopped")
	return err
}

// CreateLocal registers a new locally-owned document and starts publishing
// it.
func (e *Engine) CreateLocal(ctx context.Context, address string) (*feed.Document, error) {
	e.mu.Lock()
	if _, ok := e.docs[address]; ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", address, common.ErrDocumentExists)
	}
	m := e.newManaged(feed.NewLocalDocument(address))
	e.docs[address] = m
	runCtx := e.runCtx
	e.mu.Unlock()

	if err := e.persistState(ctx, m.doc); err != nil {
		return nil, err
	}
	// our own address is watched too: another replica of this document
	// may publish, and we adopt what it published
	if err := e.fetcher.Watch(m.doc); err != nil {
		return nil, fmt.Errorf("watching %s: %w", address, err)
	}
	if runCtx != nil {
		e.startPublisher(runCtx, m)
	}
	e.log.Info(ctx, "created local document", "address", address)
	return m.doc, nil
}

// Follow registers a followed remote document. Content older than the
// follow moment will never be announced as new.
func (e *Engine) Follow(ctx context.Context, address string) (*feed.Document, error) {
	e.mu.Lock()
	if _, ok := e.docs[address]; ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", address, common.ErrDocumentExists)
	}
	doc := feed.NewRemoteDocument(address)
	doc.SetFollowTime(e.clock.Now().UnixMilli())
	m := e.newManaged(doc)
	e.docs[address] = m
	e.mu.Unlock()

	if err := e.persistState(ctx, doc); err != nil {
		return nil, err
	}
	if err := e.fetcher.Watch(doc); err != nil {
		return nil, fmt.Errorf("watching %s: %w", address, err)
	}
	e.log.Info(ctx, "following", "address", address)
	return doc, nil
}

// Unfollow removes a followed document and its subscription. The local
// replica and its persisted state are dropped.
func (e *Engine) Unfollow(ctx context.Context, address string) error {
	e.mu.Lock()
	m, ok := e.docs[address]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", address, common.ErrUnknownDocument)
	}
	if m.doc.IsLocal() {
		e.mu.Unlock()
		return fmt.Errorf("%s: cannot unfollow an owned document", address)
	}
	delete(e.docs, address)
	e.mu.Unlock()

	e.fetcher.Unwatch(address)
	if e.repo != nil {
		if err := e.repo.Delete(ctx, address); err != nil {
			return err
		}
	}
	e.log.Info(ctx, "unfollowed", "address", address)
	return nil
}

// DeleteLocal stops publishing a locally-owned document and drops it from
// the registry. Published editions stay on the network.
func (e *Engine) DeleteLocal(ctx context.Context, address string) error {
	e.mu.Lock()
	m, ok := e.docs[address]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", address, common.ErrUnknownDocument)
	}
	if !m.doc.IsLocal() {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", address, common.ErrNotLocal)
	}
	delete(e.docs, address)
	e.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	e.fetcher.Unwatch(address)
	if e.repo != nil {
		if err := e.repo.Delete(ctx, address); err != nil {
			return err
		}
	}
	e.log.Info(ctx, "deleted local document", "address", address)
	return nil
}

// Get returns the registered document for an address.
func (e *Engine) Get(address string) (*feed.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.docs[address]
	if !ok {
		return nil, fmt.Errorf("%s: %w", address, common.ErrUnknownDocument)
	}
	return m.doc, nil
}

// Rescue runs one rescue fetch for the document. edition 0 means the
// current candidate.
func (e *Engine) Rescue(ctx context.Context, address string, edition int64) error {
	e.mu.Lock()
	m, ok := e.docs[address]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", address, common.ErrUnknownDocument)
	}
	return m.rescue.Trigger(ctx, edition)
}

// DocumentStatus is one row of the status report.
type DocumentStatus struct {
	Address     string `json:"address"`
	Local       bool   `json:"local"`
	Edition     int64  `json:"edition"`
	Time        int64  `json:"time"`
	Posts       int    `json:"posts"`
	Replies     int    `json:"replies"`
	Modified    bool   `json:"modified"`
	RescueError string `json:"rescue_error,omitempty"`
}

// Status reports every registered document.
func (e *Engine) Status() []DocumentStatus {
	e.mu.Lock()
	managed := make([]*managedDoc, 0, len(e.docs))
	for _, m := range e.docs {
		managed = append(managed, m)
	}
	e.mu.Unlock()

	out := make([]DocumentStatus, 0, len(managed))
	for _, m := range managed {
		s := DocumentStatus{
			Address:     m.doc.Address(),
			Local:       m.doc.IsLocal(),
			Edition:     m.doc.LatestEdition(),
			Time:        m.doc.Time(),
			Posts:       len(m.doc.Posts()),
			Replies:     len(m.doc.Replies()),
			RescueError: m.rescue.Status().LastError,
		}
		if m.detector != nil {
			s.Modified = m.detector.IsModified()
		}
		out = append(out, s)
	}
	sortStatuses(out)
	return out
}

func (e *Engine) newManaged(doc *feed.Document) *managedDoc {
	m := &managedDoc{doc: doc}
	m.rescue = sched.NewRescueController(doc, e.store, e.merger, e.sink, e.repo, e.log)
	if doc.IsLocal() {
		m.detector = sched.NewChangeDetector(doc, e.settings, e.clock)
		m.detector.SetBaseline(doc.Fingerprint())
		m.publisher = sched.NewPublishScheduler(doc, m.detector, e.store, e.repo, e.sink, e.clock, e.log, e.pollInterval)
	}
	return m
}

func (e *Engine) startPublisher(ctx context.Context, m *managedDoc) {
	ctx, m.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		m.publisher.Run(ctx)
	}()
}

// isLocalAuthor feeds the merge engine's suppression rule: content
// authored by any locally-owned document is never announced as new.
func (e *Engine) isLocalAuthor(authorID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.docs[authorID]
	return ok && m.doc.IsLocal()
}

// persistDoc is the fetch scheduler's post-merge hook. For an owned
// document the merged content was published by another replica of
// ourselves, so it becomes the new publish baseline instead of a
// pending change.
func (e *Engine) persistDoc(ctx context.Context, doc *feed.Document) {
	address := doc.Address()
	local := doc.IsLocal()
	if local {
		e.mu.Lock()
		m := e.docs[address]
		e.mu.Unlock()
		if m != nil && m.detector != nil {
			m.detector.SetBaseline(doc.Fingerprint())
		}
	}
	if e.repo == nil {
		return
	}
	var err error
	if local {
		err = e.repo.SetBaseline(ctx, address, doc.Fingerprint(), doc.LatestEdition(), doc.Time())
	} else {
		err = e.repo.SetVersion(ctx, address, doc.LatestEdition(), doc.Time())
	}
	if err != nil {
		e.log.Error(ctx, "persisting document state failed", "address", address, "error", err)
	}
}

func (e *Engine) persistState(ctx context.Context, doc *feed.Document) error {
	if e.repo == nil {
		return nil
	}
	return e.repo.Upsert(ctx, &state.DocumentState{
		Address:           doc.Address(),
		Local:             doc.IsLocal(),
		Edition:           doc.LatestEdition(),
		Time:              doc.Time(),
		FollowTime:        doc.FollowTime(),
		MuteNotifications: doc.Options().MuteNotifications,
	})
}

// restore rebuilds the registry from the state repository.
func (e *Engine) restore(ctx context.Context) error {
	if e.repo == nil {
		return nil
	}
	stored, err := e.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range stored {
		var doc *feed.Document
		if s.Local {
			doc = feed.NewLocalDocument(s.Address)
		} else {
			doc = feed.NewRemoteDocument(s.Address)
		}
		doc.SetLatestEdition(s.Edition)
		doc.SetTime(s.Time)
		doc.SetFollowTime(s.FollowTime)
		doc.SetOptions(feed.Options{MuteNotifications: s.MuteNotifications})

		m := e.newManaged(doc)
		if s.RescueError != "" {
			m.rescue.RestoreLastError(s.RescueError)
		}
		if s.Edition > 0 {
			if err := e.recoverContent(ctx, doc, s.Edition); err != nil {
				e.log.Warn(ctx, "content recovery failed", "address", s.Address, "edition", s.Edition, "error", err)
				if s.Local {
					// an empty replica must never become the next
					// published edition; hold publishing until the
					// content is back
					doc.LockForRescue()
					m.pendingRecovery = s.Edition
				}
			}
		}
		if m.detector != nil && s.Fingerprint != "" {
			// with the published content recovered the live fingerprint
			// matches the baseline, so a restart does not republish
			m.detector.SetBaseline(s.Fingerprint)
		}
		e.mu.Lock()
		e.docs[s.Address] = m
		e.mu.Unlock()

		if err := e.fetcher.Watch(doc); err != nil {
			e.log.Error(ctx, "watch failed on restore", "address", s.Address, "error", err)
		}
	}
	e.log.Info(ctx, "restored documents", "count", len(stored))
	return nil
}

// recoverContent refills a restored replica from its last known edition.
// Events are dropped: nothing in a restart is news to the user.
func (e *Engine) recoverContent(ctx context.Context, doc *feed.Document, edition int64) error {
	data, err := e.store.Fetch(ctx, doc.Address(), edition)
	if err != nil {
		return fmt.Errorf("fetching edition %d: %w", edition, err)
	}
	parsed, err := wire.Parse(data, doc.Address())
	if err != nil {
		return fmt.Errorf("parsing edition %d: %w", edition, err)
	}
	if _, err := e.merger.Merge(doc, merge.Incoming{Time: parsed.Time, Edition: edition, Content: parsed.Content}, true); err != nil {
		return fmt.Errorf("merging edition %d: %w", edition, err)
	}
	return nil
}

// recoverLoop keeps retrying a failed startup recovery until the content
// store serves the edition again or the engine stops.
func (e *Engine) recoverLoop(ctx context.Context, m *managedDoc) {
	ticker := time.NewTicker(recoveryRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if e.tryRecover(ctx, m) {
			return
		}
	}
}

// tryRecover reports whether the held document's content came back. On
// success the rescue lock is released and publishing resumes.
func (e *Engine) tryRecover(ctx context.Context, m *managedDoc) bool {
	if err := e.recoverContent(ctx, m.doc, m.pendingRecovery); err != nil {
		e.log.Warn(ctx, "content recovery failed", "address", m.doc.Address(), "edition", m.pendingRecovery, "error", err)
		return false
	}
	e.log.Info(ctx, "content recovered", "address", m.doc.Address(), "edition", m.pendingRecovery)
	m.doc.UnlockRescue()
	return true
}

func sortStatuses(s []DocumentStatus) {
	sort.Slice(s, func(i, j int) bool { return s[i].Address < s[j].Address })
}
