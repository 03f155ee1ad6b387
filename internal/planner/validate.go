package planner

import (
	"fmt"
)

// Violation describes a plan that breaks an ordering or safety rule.
type Violation struct {
	Identity string
	Reason   string
}

// ValidationError lists every violation found in a plan.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		v := e.Violations[0]
		return fmt.Sprintf("invalid plan: %q: %s", v.Identity, v.Reason)
	}
	return fmt.Sprintf("invalid plan: %d violations, first: %q: %s",
		len(e.Violations), e.Violations[0].Identity, e.Violations[0].Reason)
}

// Validate checks that every action comes after its parent's action, that a
// pending parent is a create, that identities are unique and that no action
// targets an untouched page.
func (p *SyncPlan) Validate() error {
	var violations []Violation
	add := func(identity, format string, args ...any) {
		violations = append(violations, Violation{Identity: identity, Reason: fmt.Sprintf(format, args...)})
	}

	seen := make(map[string]*Action, len(p.Actions))
	untouched := make(map[int64]bool, len(p.Untouched))
	for _, page := range p.Untouched {
		untouched[page.ID] = true
	}

	for i := range p.Actions {
		a := &p.Actions[i]

		if _, dup := seen[a.Identity]; dup {
			add(a.Identity, "planned more than once")
		}

		switch a.Kind {
		case ActionCreate:
			if a.RemoteID != 0 {
				add(a.Identity, "create targets existing page %d", a.RemoteID)
			}
		case ActionUpdate, ActionMove, ActionSkip:
			if a.RemoteID == 0 {
				add(a.Identity, "%s has no target page", a.Kind)
			}
			if untouched[a.RemoteID] {
				add(a.Identity, "targets page %d, which has no local chapter", a.RemoteID)
			}
		default:
			add(a.Identity, "unknown action kind %q", a.Kind)
		}

		if a.ParentIdentity == "" {
			if a.ParentID != p.AnchorID {
				add(a.Identity, "top-level chapter expects parent %d, not root page %d", a.ParentID, p.AnchorID)
			}
		} else {
			parent, ok := seen[a.ParentIdentity]
			switch {
			case !ok:
				add(a.Identity, "parent %q is not planned before it", a.ParentIdentity)
			case parent.Kind == ActionCreate && !a.ParentPending():
				add(a.Identity, "parent %q is created in this plan but referenced by id %d", a.ParentIdentity, a.ParentID)
			case parent.Kind != ActionCreate && a.ParentID != parent.RemoteID:
				add(a.Identity, "expects parent %d but %q is page %d", a.ParentID, a.ParentIdentity, parent.RemoteID)
			}
		}

		seen[a.Identity] = a
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}
