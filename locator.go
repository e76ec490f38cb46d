package doctxn

import (
	"net/url"
	"strings"
)

// LocatorSpec is the caller-facing description of a document address. Exactly one form
// must be used: URL alone, or all of Couch, DB and ID.
type LocatorSpec struct {
	// URL is the direct document address, e.g. http://localhost:5984/db/doc_a.
	URL string `json:"url,omitempty"`
	// Couch is the store root, e.g. http://localhost:5984.
	Couch string `json:"couch,omitempty"`
	// DB is the collection (CouchDB database) name.
	DB string `json:"db,omitempty"`
	// ID is the document id.
	ID string `json:"id,omitempty"`
}

// Locator identifies a single document. It is immutable; build it with NewLocator.
type Locator struct {
	address    string
	root       string
	collection string
	id         string
}

// NewLocator validates spec and builds a Locator from it.
func NewLocator(spec LocatorSpec) (Locator, error) {
	decomposed := spec.Couch != "" || spec.DB != "" || spec.ID != ""
	if spec.URL != "" && decomposed {
		return Locator{}, &ConfigurationError{
			Constraint: ConstraintLocatorClash,
			Detail:     "url can't be combined with couch, db or id",
		}
	}
	if spec.URL != "" {
		return parseLocatorURL(spec.URL)
	}
	if spec.Couch == "" || spec.DB == "" || spec.ID == "" {
		return Locator{}, &ConfigurationError{
			Constraint: ConstraintLocatorRequired,
			Detail:     "url, or all of couch, db and id, are required",
		}
	}
	root := strings.TrimRight(spec.Couch, "/")
	return Locator{
		address:    root + "/" + url.PathEscape(spec.DB) + "/" + url.PathEscape(spec.ID),
		root:       root,
		collection: spec.DB,
		id:         spec.ID,
	}, nil
}

// The last two path segments of a direct address are the collection and document id.
func parseLocatorURL(raw string) (Locator, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Locator{}, &ConfigurationError{Constraint: ConstraintLocatorMalformed, Detail: err.Error()}
	}
	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	if len(segments) < 2 || segments[len(segments)-1] == "" || segments[len(segments)-2] == "" {
		return Locator{}, &ConfigurationError{
			Constraint: ConstraintLocatorMalformed,
			Detail:     "url path must end with /<db>/<id>: " + raw,
		}
	}
	n := len(segments)
	collection, err := url.PathUnescape(segments[n-2])
	if err != nil {
		return Locator{}, &ConfigurationError{Constraint: ConstraintLocatorMalformed, Detail: err.Error()}
	}
	id, err := url.PathUnescape(segments[n-1])
	if err != nil {
		return Locator{}, &ConfigurationError{Constraint: ConstraintLocatorMalformed, Detail: err.Error()}
	}
	var r string
	if u.Scheme != "" {
		r = u.Scheme + "://"
	}
	if u.User != nil {
		r += u.User.String() + "@"
	}
	r += u.Host
	if prefix := strings.Join(segments[:n-2], "/"); prefix != "" {
		r += "/" + prefix
	}
	return Locator{
		address:    raw,
		root:       r,
		collection: collection,
		id:         id,
	}, nil
}

// Address returns the direct document address.
func (l Locator) Address() string { return l.address }

// Root returns the store root (scheme, host and any path prefix before the collection).
func (l Locator) Root() string { return l.root }

// Collection returns the collection (database) name.
func (l Locator) Collection() string { return l.collection }

// DocumentID returns the document id.
func (l Locator) DocumentID() string { return l.id }

// IsZero reports whether the Locator was never built.
func (l Locator) IsZero() bool { return l.address == "" }

// String returns Address.
func (l Locator) String() string { return l.address }
