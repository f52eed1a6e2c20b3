// Package sched contains the engine's background schedulers: the
// per-document change detector and publish loop, the shared fetch
// scheduler reacting to version-watch notifications, and the manual
// rescue controller. All of them recover from failures locally; no
// scheduler ever dies on an error.
package sched

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/feedsync/internal/feed"
)

// ChangeDetector decides when a document has settled long enough after
// an edit to be worth publishing. Poll is driven by the document's
// publish loop on a steady cadence, but the baseline can move from other
// goroutines when a merge adopts remotely published content, so the
// detector state is guarded.
type ChangeDetector struct {
	doc      *feed.Document
	settings *feed.Settings
	clock    feed.Clock

	mu         sync.Mutex
	baseline   string
	lastSeen   string
	lastChange time.Time
}

// NewChangeDetector creates a detector for the document. The settings
// are shared and read fresh on every poll, so tuning the insertion delay
// applies to the next cycle.
func NewChangeDetector(doc *feed.Document, settings *feed.Settings, clock feed.Clock) *ChangeDetector {
	if clock == nil {
		clock = feed.SystemClock{}
	}
	return &ChangeDetector{doc: doc, settings: settings, clock: clock}
}

// SetBaseline marks the given fingerprint as published: matching content
// is no longer considered modified. Called after a successful publish,
// and at startup with the persisted baseline so a restart does not force
// a spurious republish.
func (d *ChangeDetector) SetBaseline(fingerprint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseline = fingerprint
	d.lastChange = time.Time{}
}

// IsModified reports whether the current content differs from the
// baseline.
func (d *ChangeDetector) IsModified() bool {
	current := d.doc.Fingerprint()
	d.mu.Lock()
	defer d.mu.Unlock()
	return current != d.baseline
}

// Poll computes eligibility for publishing. The document is eligible
// once its fingerprint differs from the baseline and has stayed stable
// across polls for at least the insertion delay. A rescue lock clears
// the settle timer and reports ineligible.
func (d *ChangeDetector) Poll() bool {
	if d.doc.IsRescueLocked() {
		d.mu.Lock()
		d.lastChange = time.Time{}
		d.mu.Unlock()
		return false
	}

	current := d.doc.Fingerprint()
	d.mu.Lock()
	defer d.mu.Unlock()
	previous := d.lastSeen
	d.lastSeen = current

	if current == d.baseline {
		d.lastChange = time.Time{}
		return false
	}
	if current != previous || d.lastChange.IsZero() {
		// content still in flux, restart the settle window
		d.lastChange = d.clock.Now()
		return false
	}
	return d.clock.Now().Sub(d.lastChange) >= d.settings.InsertionDelay()
}
