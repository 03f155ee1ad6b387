// Package planner handles the planning phase of a sync pass.
//
// The planner compares the local chapter tree against a snapshot of the remote
// page tree and produces a deterministic SyncPlan. It never issues remote
// calls; the executor applies the plan.
//
// Key responsibilities:
//   - Emit Create, Update, Move or Skip for every chapter
//   - Forward-reference parents that are created in the same pass
//   - Keep parents ahead of children in plan order
//   - Leave remote pages without a local counterpart untouched
package planner
