package remote

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Op names a remote operation in the FakeClient call log.
type Op string

const (
	OpGetPage       Op = "get"
	OpListChildren  Op = "list"
	OpCreatePage    Op = "create"
	OpUpdatePage    Op = "update"
	OpMovePage      Op = "move"
	OpServerVersion Op = "version"
)

// Call records one call made to a FakeClient.
type Call struct {
	Op              Op
	ID              int64
	ParentID        int64
	Title           string
	ExpectedVersion int
	// ResultID is the id assigned by a successful create.
	ResultID int64
	Err      error
}

// FakeClient is an in-memory page tree. Titles are unique across the fake
// space, as they are within a Confluence space.
type FakeClient struct {
	mu       sync.Mutex
	pages    map[int64]*Page
	nextID   int64
	injected map[string][]error
	calls    []Call

	inFlight    int
	maxInFlight int

	// Delay is applied to every call, to exercise concurrency.
	Delay time.Duration

	// Version is returned by ServerVersion.
	Version string
}

// NewFakeClient creates an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		pages:    make(map[int64]*Page),
		nextID:   1000,
		injected: make(map[string][]error),
		Version:  "8.5.0",
	}
}

// AddPage seeds a page. A parentID of 0 creates a page with no parent.
func (f *FakeClient) AddPage(id, parentID int64, title, body string, version int) *Page {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := &Page{ID: id, Title: title, Version: version, ParentID: parentID, Body: body}
	f.pages[id] = p
	if parent, ok := f.pages[parentID]; ok {
		parent.Children = append(parent.Children, id)
	}
	if id >= f.nextID {
		f.nextID = id + 1
	}
	return p
}

// Bump simulates a concurrent edit by incrementing the page's version.
func (f *FakeClient) Bump(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pages[id]; ok {
		p.Version++
	}
}

// Inject queues errors returned, one per call, by op on the page titled
// title. For creates the title is the new page's title; for listings it is
// the parent's title.
func (f *FakeClient) Inject(op Op, title string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(op) + ":" + title
	f.injected[key] = append(f.injected[key], errs...)
}

// Page returns a copy of the page with the given id.
func (f *FakeClient) Page(id int64) (Page, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[id]
	if !ok {
		return Page{}, false
	}
	return clonePage(p), true
}

// FindByTitle returns a copy of the page with the given title.
func (f *FakeClient) FindByTitle(title string) (Page, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pages {
		if p.Title == title {
			return clonePage(p), true
		}
	}
	return Page{}, false
}

// Calls returns the call log in the order calls completed.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor returns the logged calls of one kind.
func (f *FakeClient) CallsFor(op Op) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (f *FakeClient) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *FakeClient) enter(ctx context.Context) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			f.mu.Lock()
			f.inFlight--
			f.mu.Unlock()
			return ctx.Err()
		}
	}
	return nil
}

// leave must be called with f.mu held.
func (f *FakeClient) leave(c Call) {
	f.inFlight--
	f.calls = append(f.calls, c)
}

// popInjected must be called with f.mu held.
func (f *FakeClient) popInjected(op Op, title string) error {
	key := string(op) + ":" + title
	queue := f.injected[key]
	if len(queue) == 0 {
		return nil
	}
	f.injected[key] = queue[1:]
	return queue[0]
}

func (f *FakeClient) GetPage(ctx context.Context, id int64) (*Page, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	call := Call{Op: OpGetPage, ID: id}
	p, ok := f.pages[id]
	if !ok {
		call.Err = fmt.Errorf("page %d: %w", id, ErrNotFound)
		f.leave(call)
		return nil, call.Err
	}
	call.Title = p.Title
	if err := f.popInjected(OpGetPage, p.Title); err != nil {
		call.Err = err
		f.leave(call)
		return nil, err
	}
	f.leave(call)
	out := clonePage(p)
	return &out, nil
}

func (f *FakeClient) ListChildren(ctx context.Context, id int64) ([]Page, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	call := Call{Op: OpListChildren, ID: id}
	parent, ok := f.pages[id]
	if !ok {
		call.Err = fmt.Errorf("page %d: %w", id, ErrNotFound)
		f.leave(call)
		return nil, call.Err
	}
	call.Title = parent.Title
	if err := f.popInjected(OpListChildren, parent.Title); err != nil {
		call.Err = err
		f.leave(call)
		return nil, err
	}

	children := make([]Page, 0, len(parent.Children))
	for _, childID := range parent.Children {
		if child, ok := f.pages[childID]; ok {
			children = append(children, clonePage(child))
		}
	}
	f.leave(call)
	return children, nil
}

func (f *FakeClient) CreatePage(ctx context.Context, parentID int64, title, body string) (*PageRef, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	call := Call{Op: OpCreatePage, ParentID: parentID, Title: title}
	if err := f.popInjected(OpCreatePage, title); err != nil {
		call.Err = err
		f.leave(call)
		return nil, err
	}
	parent, ok := f.pages[parentID]
	if !ok {
		call.Err = fmt.Errorf("parent page %d: %w", parentID, ErrNotFound)
		f.leave(call)
		return nil, call.Err
	}
	for _, p := range f.pages {
		if p.Title == title {
			call.Err = fmt.Errorf("a page titled %q already exists", title)
			f.leave(call)
			return nil, call.Err
		}
	}

	id := f.nextID
	f.nextID++
	f.pages[id] = &Page{ID: id, Title: title, Version: 1, ParentID: parentID, Body: body}
	parent.Children = append(parent.Children, id)

	call.ResultID = id
	f.leave(call)
	return &PageRef{ID: id, Version: 1}, nil
}

func (f *FakeClient) UpdatePage(ctx context.Context, id int64, expectedVersion int, title, body string) (int, error) {
	if err := f.enter(ctx); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	call := Call{Op: OpUpdatePage, ID: id, Title: title, ExpectedVersion: expectedVersion}
	if err := f.popInjected(OpUpdatePage, title); err != nil {
		call.Err = err
		f.leave(call)
		return 0, err
	}
	p, ok := f.pages[id]
	if !ok {
		call.Err = fmt.Errorf("page %d: %w", id, ErrNotFound)
		f.leave(call)
		return 0, call.Err
	}
	if p.Version != expectedVersion {
		call.Err = fmt.Errorf("page %d is at version %d, not %d: %w", id, p.Version, expectedVersion, ErrVersionConflict)
		f.leave(call)
		return 0, call.Err
	}

	p.Title = title
	p.Body = body
	p.Version++
	f.leave(call)
	return p.Version, nil
}

func (f *FakeClient) MovePage(ctx context.Context, id int64, expectedVersion int, newParentID int64) (int, error) {
	if err := f.enter(ctx); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	call := Call{Op: OpMovePage, ID: id, ParentID: newParentID, ExpectedVersion: expectedVersion}
	p, ok := f.pages[id]
	if !ok {
		call.Err = fmt.Errorf("page %d: %w", id, ErrNotFound)
		f.leave(call)
		return 0, call.Err
	}
	call.Title = p.Title
	if err := f.popInjected(OpMovePage, p.Title); err != nil {
		call.Err = err
		f.leave(call)
		return 0, err
	}
	newParent, ok := f.pages[newParentID]
	if !ok {
		call.Err = fmt.Errorf("parent page %d: %w", newParentID, ErrNotFound)
		f.leave(call)
		return 0, call.Err
	}
	if p.Version != expectedVersion {
		call.Err = fmt.Errorf("page %d is at version %d, not %d: %w", id, p.Version, expectedVersion, ErrVersionConflict)
		f.leave(call)
		return 0, call.Err
	}

	if oldParent, ok := f.pages[p.ParentID]; ok {
		kept := oldParent.Children[:0]
		for _, c := range oldParent.Children {
			if c != id {
				kept = append(kept, c)
			}
		}
		oldParent.Children = kept
	}
	newParent.Children = append(newParent.Children, id)
	p.ParentID = newParentID
	p.Version++
	f.leave(call)
	return p.Version, nil
}

func (f *FakeClient) ServerVersion(ctx context.Context) (string, error) {
	if err := f.enter(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	call := Call{Op: OpServerVersion}
	if err := f.popInjected(OpServerVersion, ""); err != nil {
		call.Err = err
		f.leave(call)
		return "", err
	}
	f.leave(call)
	return f.Version, nil
}

func clonePage(p *Page) Page {
	out := *p
	out.Children = append([]int64(nil), p.Children...)
	return out
}
