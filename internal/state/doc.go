// Package state records what the last sync pass published.
//
// After every pass that writes to the remote, a Record is saved as JSON in
// the backend's output directory (mdBook's destination for the confluence
// renderer). It maps each page title to the page id, version and content
// digest the pass left behind, so a later run can report what changed since.
//
// Key concepts:
//   - Record: the outcome of one pass, keyed by page title
//   - PageRecord: one page's id, version, digest and status
//   - StateStore: interface for loading and saving the record
package state
