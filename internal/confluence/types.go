package confluence

import (
	"fmt"
	"strconv"

	"github.com/danieljhkim/mdbook-confluence/internal/remote"
)

const (
	contentTypePage      = "page"
	representationStored = "storage"

	// expandPage is requested wherever a full page is read.
	expandPage = "version,ancestors,body.storage,space"

	// expandChild omits ancestors; the parent is the listed page.
	expandChild = "version,body.storage"
)

type idRef struct {
	ID string `json:"id"`
}

type spaceRef struct {
	Key string `json:"key"`
}

type versionRef struct {
	Number int `json:"number"`
}

type storageBody struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

type bodyRef struct {
	Storage *storageBody `json:"storage,omitempty"`
}

// content is the subset of the Confluence content entity this client uses.
type content struct {
	ID        string      `json:"id,omitempty"`
	Type      string      `json:"type"`
	Title     string      `json:"title"`
	Space     *spaceRef   `json:"space,omitempty"`
	Version   *versionRef `json:"version,omitempty"`
	Ancestors []idRef     `json:"ancestors,omitempty"`
	Body      *bodyRef    `json:"body,omitempty"`
}

type links struct {
	Next string `json:"next"`
}

type contentList struct {
	Results []content `json:"results"`
	Start   int       `json:"start"`
	Limit   int       `json:"limit"`
	Size    int       `json:"size"`
	Links   links     `json:"_links"`
}

type manifest struct {
	Version string `json:"version"`
}

// apiErrorBody is the error entity Confluence returns with 4xx and 5xx.
type apiErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func newStorageBody(value string) *bodyRef {
	return &bodyRef{Storage: &storageBody{Value: value, Representation: representationStored}}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid content id %q: %w", s, err)
	}
	return id, nil
}

// toPage converts a content entity. parentID overrides the ancestors when
// non-zero.
func (c *content) toPage(parentID int64) (remote.Page, error) {
	id, err := parseID(c.ID)
	if err != nil {
		return remote.Page{}, err
	}
	p := remote.Page{ID: id, Title: c.Title, ParentID: parentID}
	if c.Version != nil {
		p.Version = c.Version.Number
	}
	if c.Body != nil && c.Body.Storage != nil {
		p.Body = c.Body.Storage.Value
	}
	if parentID == 0 && len(c.Ancestors) > 0 {
		parent, err := parseID(c.Ancestors[len(c.Ancestors)-1].ID)
		if err != nil {
			return remote.Page{}, err
		}
		p.ParentID = parent
	}
	return p, nil
}
