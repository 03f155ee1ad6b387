package planner

import (
	"fmt"

	"github.com/danieljhkim/mdbook-confluence/internal/hash"
	"github.com/danieljhkim/mdbook-confluence/internal/identity"
	"github.com/danieljhkim/mdbook-confluence/internal/remotetree"
)

// Packager produces the storage-format body for a chapter.
type Packager interface {
	Package(identity, markdown string) string
}

// Reconcile builds a plan from mapped chapters (in pre-order) and a remote
// snapshot. The result is deterministic for identical inputs.
func Reconcile(entries []identity.Entry, index *remotetree.Index, packager Packager) (*SyncPlan, error) {
	if index == nil || index.Anchor == nil {
		return nil, fmt.Errorf("remote index has no root page")
	}
	plan := NewSyncPlan(index.Anchor.ID)

	// Page id each identity will have once its action runs; 0 while pending.
	ids := make(map[string]int64, len(entries))
	planned := make(map[int64]bool, len(entries))

	for _, e := range entries {
		var parentID int64
		if e.ParentIdentity == "" {
			parentID = plan.AnchorID
		} else {
			id, ok := ids[e.ParentIdentity]
			if !ok {
				return nil, fmt.Errorf("chapter %q appears before its parent %q", e.Path, e.ParentIdentity)
			}
			parentID = id
		}

		body := packager.Package(e.Identity, e.Node.Content)
		action := Action{
			Identity:       e.Identity,
			ParentIdentity: e.ParentIdentity,
			ParentID:       parentID,
			Body:           body,
			Digest:         hash.Sum(body),
			Depth:          e.Depth,
			Position:       e.Position,
			Path:           e.Path,
		}

		page, found := index.Lookup(e.Identity)
		if !found {
			action.Kind = ActionCreate
			action.ContentChanged = true
			ids[e.Identity] = 0
			plan.AddAction(action)
			continue
		}

		action.RemoteID = page.ID
		action.ExpectedVersion = page.Version
		action.ContentChanged = page.Body != body
		ids[e.Identity] = page.ID
		planned[page.ID] = true

		switch {
		case parentID == 0 || page.ParentID != parentID:
			action.Kind = ActionMove
			action.Reason = "filed under " + currentParent(index, page.ParentID)
		case action.ContentChanged:
			action.Kind = ActionUpdate
		default:
			action.Kind = ActionSkip
			action.Reason = ReasonUnchanged
		}
		plan.AddAction(action)
	}

	for _, page := range index.Pages() {
		if !planned[page.ID] {
			plan.Untouched = append(plan.Untouched, page)
		}
	}

	return plan, nil
}

// currentParent names the page a remote page is filed under today.
func currentParent(index *remotetree.Index, id int64) string {
	if id == index.Anchor.ID {
		return "the root page"
	}
	if p, ok := index.ByID(id); ok {
		return fmt.Sprintf("%q", p.Title)
	}
	return fmt.Sprintf("page %d", id)
}
