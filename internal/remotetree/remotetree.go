// Package remotetree reads the page subtree under the root page into an
// index keyed by page title.
package remotetree

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/danieljhkim/mdbook-confluence/internal/remote"
	"github.com/danieljhkim/mdbook-confluence/internal/retry"
	"github.com/danieljhkim/mdbook-confluence/internal/syncerr"
)

// DefaultConcurrency bounds parallel child listings.
const DefaultConcurrency = 4

// Index is a read-only snapshot of the remote subtree. The anchor page itself
// is not part of the index.
type Index struct {
	Anchor *remote.Page

	byTitle map[string]*remote.Page
	byID    map[int64]*remote.Page
}

// NewIndex builds an Index from pages already read. It fails if two pages
// share a title.
func NewIndex(anchor *remote.Page, pages []remote.Page) (*Index, error) {
	idx := &Index{
		Anchor:  anchor,
		byTitle: make(map[string]*remote.Page, len(pages)),
		byID:    make(map[int64]*remote.Page, len(pages)),
	}
	for i := range pages {
		p := &pages[i]
		if other, dup := idx.byTitle[p.Title]; dup {
			return nil, fmt.Errorf("pages %d and %d are both titled %q", other.ID, p.ID, p.Title)
		}
		idx.byTitle[p.Title] = p
		idx.byID[p.ID] = p
	}
	return idx, nil
}

// Lookup returns the page with the given title.
func (idx *Index) Lookup(title string) (*remote.Page, bool) {
	p, ok := idx.byTitle[title]
	return p, ok
}

// ByID returns the page with the given id.
func (idx *Index) ByID(id int64) (*remote.Page, bool) {
	p, ok := idx.byID[id]
	return p, ok
}

// Len returns the number of pages under the anchor.
func (idx *Index) Len() int {
	return len(idx.byTitle)
}

// Pages returns the indexed pages ordered by id.
func (idx *Index) Pages() []*remote.Page {
	out := make([]*remote.Page, 0, len(idx.byID))
	for _, p := range idx.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reader enumerates the remote subtree.
type Reader struct {
	client      remote.Client
	policy      retry.Policy
	concurrency int
	log         *logrus.Entry
}

// NewReader creates a Reader.
func NewReader(client remote.Client, policy retry.Policy, concurrency int, log *logrus.Entry) *Reader {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Reader{client: client, policy: policy, concurrency: concurrency, log: log}
}

// Read fetches the anchor page and all of its descendants, one tree level at
// a time.
func (r *Reader) Read(ctx context.Context, anchorID int64) (*Index, error) {
	var anchor *remote.Page
	err := retry.Do(ctx, r.policy, r.log, "get root page", func() error {
		p, err := r.client.GetPage(ctx, anchorID)
		if err != nil {
			return err
		}
		anchor = p
		return nil
	})
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) || errors.Is(err, remote.ErrUnauthorized) {
			return nil, &syncerr.AnchorNotFoundError{PageID: anchorID, Err: err}
		}
		return nil, &syncerr.RemoteReadError{PageID: anchorID, Err: err}
	}

	r.log.WithFields(logrus.Fields{
		"page_id": anchor.ID,
		"title":   anchor.Title,
		"version": anchor.Version,
	}).Debug("read root page")

	var (
		pages []remote.Page
		level = []int64{anchorID}
		seen  = map[int64]bool{anchorID: true}
	)
	for len(level) > 0 {
		children, err := r.readLevel(ctx, level)
		if err != nil {
			return nil, err
		}

		var next []int64
		for _, c := range children {
			if seen[c.ID] {
				return nil, &syncerr.RemoteReadError{PageID: c.ID, Err: fmt.Errorf("page %d listed twice", c.ID)}
			}
			seen[c.ID] = true
			pages = append(pages, c)
			next = append(next, c.ID)
		}
		level = next
	}

	idx, err := NewIndex(anchor, pages)
	if err != nil {
		return nil, &syncerr.RemoteReadError{PageID: anchorID, Err: err}
	}

	r.log.WithField("pages", idx.Len()).Info("read remote page tree")
	return idx, nil
}

// readLevel lists the children of every page in parents concurrently. Results
// keep the order of parents.
func (r *Reader) readLevel(ctx context.Context, parents []int64) ([]remote.Page, error) {
	results := make([][]remote.Page, len(parents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, parentID := range parents {
		g.Go(func() error {
			var children []remote.Page
			err := retry.Do(gctx, r.policy, r.log, "list children", func() error {
				c, err := r.client.ListChildren(gctx, parentID)
				if err != nil {
					return err
				}
				children = c
				return nil
			})
			if err != nil {
				return &syncerr.RemoteReadError{PageID: parentID, Err: err}
			}
			for j := range children {
				children[j].ParentID = parentID
			}
			results[i] = children
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []remote.Page
	for _, children := range results {
		out = append(out, children...)
	}
	return out, nil
}
