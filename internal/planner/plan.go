package planner

import (
	"github.com/danieljhkim/mdbook-confluence/internal/remote"
)

// ActionKind is the type of change an action makes.
type ActionKind string

// Action kind constants
const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionMove   ActionKind = "move"
	ActionSkip   ActionKind = "skip"
)

// Skip reasons
const (
	ReasonUnchanged = "unchanged"
)

// SyncPlan is the ordered list of actions for one pass.
type SyncPlan struct {
	// AnchorID is the root page every top-level chapter lives under.
	AnchorID int64

	// Actions holds one action per chapter, parents before children.
	Actions []Action

	// Untouched lists remote pages under the anchor with no local chapter.
	// They are reported, never modified.
	Untouched []*remote.Page
}

// Action is a single planned change.
type Action struct {
	Kind ActionKind

	// Identity is the page title.
	Identity string

	// ParentIdentity is empty when the parent is the anchor.
	ParentIdentity string

	// ParentID is the expected parent page. It is 0 when the parent is
	// created earlier in the same plan; the executor resolves it.
	ParentID int64

	// RemoteID is the existing page for update, move and skip.
	RemoteID int64

	// ExpectedVersion is the version read from the remote snapshot.
	ExpectedVersion int

	// Body is the packaged page content.
	Body string

	// Digest is the SHA-256 of Body.
	Digest string

	// ContentChanged is set when Body differs from the remote body. A move
	// carries an update when it is set.
	ContentChanged bool

	// Reason explains a skip or where a moved page sits today.
	Reason string

	Depth    int
	Position int

	// Path is the chapter path, for diagnostics.
	Path string
}

// ParentPending reports whether the parent is created by this plan.
func (a *Action) ParentPending() bool {
	return a.ParentID == 0
}

// NewSyncPlan creates an empty plan.
func NewSyncPlan(anchorID int64) *SyncPlan {
	return &SyncPlan{
		AnchorID:  anchorID,
		Actions:   []Action{},
		Untouched: []*remote.Page{},
	}
}

// AddAction appends an action to the plan.
func (p *SyncPlan) AddAction(a Action) {
	p.Actions = append(p.Actions, a)
}

// Counts returns the number of actions of each kind.
func (p *SyncPlan) Counts() map[ActionKind]int {
	counts := map[ActionKind]int{
		ActionCreate: 0,
		ActionUpdate: 0,
		ActionMove:   0,
		ActionSkip:   0,
	}
	for _, a := range p.Actions {
		counts[a.Kind]++
	}
	return counts
}

// HasChanges returns true if the plan contains anything other than skips.
func (p *SyncPlan) HasChanges() bool {
	for _, a := range p.Actions {
		if a.Kind != ActionSkip {
			return true
		}
	}
	return false
}
