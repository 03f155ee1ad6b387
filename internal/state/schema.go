package state

import (
	"sort"
	"time"

	"github.com/danieljhkim/mdbook-confluence/internal/executor"
	"github.com/danieljhkim/mdbook-confluence/internal/sync"
)

// SchemaVersion is bumped when the record layout changes incompatibly.
const SchemaVersion = 1

// Record is the outcome of one sync pass.
type Record struct {
	Schema int `json:"schema"`

	// SyncedAt is when the pass started.
	SyncedAt time.Time `json:"syncedAt"`

	RootPage      int64  `json:"rootPage"`
	ServerVersion string `json:"serverVersion,omitempty"`

	// Pages maps page titles to what the pass left on the remote.
	Pages map[string]PageRecord `json:"pages"`

	// Untouched lists remote pages under the root with no chapter.
	Untouched []int64 `json:"untouched,omitempty"`

	// Aborted holds the abort cause, if the pass stopped early.
	Aborted string `json:"aborted,omitempty"`
}

// PageRecord describes one page after a pass.
type PageRecord struct {
	// PageID is 0 when the page was never created.
	PageID int64 `json:"pageId,omitempty"`

	Version int    `json:"version,omitempty"`
	Digest  string `json:"digest"`
	Status  string `json:"status"`
}

// NewRecord creates an empty Record.
func NewRecord(rootPage int64, syncedAt time.Time) *Record {
	return &Record{
		Schema:   SchemaVersion,
		SyncedAt: syncedAt.UTC(),
		RootPage: rootPage,
		Pages:    make(map[string]PageRecord),
	}
}

// FromReport builds the record for a finished pass. Dry runs have no
// outcomes and produce a record with no pages.
func FromReport(r *sync.Report) *Record {
	var rootPage int64
	if r.Plan != nil {
		rootPage = r.Plan.AnchorID
	}
	rec := NewRecord(rootPage, r.StartedAt)
	rec.ServerVersion = r.ServerVersion
	if r.Aborted != nil {
		rec.Aborted = r.Aborted.Error()
	}

	for _, o := range r.Outcomes {
		rec.Pages[o.Action.Identity] = PageRecord{
			PageID:  o.PageID,
			Version: o.Version,
			Digest:  o.Action.Digest,
			Status:  string(o.Status),
		}
	}
	if r.Plan != nil {
		for _, p := range r.Plan.Untouched {
			rec.Untouched = append(rec.Untouched, p.ID)
		}
	}
	return rec
}

// Changed returns the titles whose digest differs from prev, or that prev
// does not know, sorted. Pages that failed in this record are left out.
func (r *Record) Changed(prev *Record) []string {
	var out []string
	for title, page := range r.Pages {
		if executor.Status(page.Status).Failed() {
			continue
		}
		old, ok := prev.Pages[title]
		if !ok || old.Digest != page.Digest {
			out = append(out, title)
		}
	}
	sort.Strings(out)
	return out
}
