// Package memory is an in-process remote.Client. It keeps created resources
// in maps, answers repeated creations with conflicts and records every call,
// which makes it the backend for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/openfroyo/schemaprov/pkg/remote"
)

// Call is one recorded client call.
type Call struct {
	Op       string
	Resource string
}

// Hook runs before every call. A non-nil error becomes the call's result.
type Hook func(op, resource string) error

// Option configures a Store.
type Option func(*Store)

// WithAttributeLag makes each new attribute report "processing" for n status
// reads before it becomes available. Index creation over an attribute that is
// not yet available fails, as it does on a real remote.
func WithAttributeLag(n int) Option {
	return func(s *Store) {
		s.lag = n
	}
}

// WithHook installs a hook consulted before every call.
func WithHook(h Hook) Option {
	return func(s *Store) {
		s.hook = h
	}
}

type attribute struct {
	pending int
}

// Store is a goroutine-safe in-memory remote.
type Store struct {
	mu sync.Mutex

	databases   map[string]string
	collections map[string]remote.CollectionRequest
	attributes  map[string]*attribute
	indexes     map[string]remote.IndexRequest
	documents   map[string][]map[string]interface{}
	documentIDs map[string]bool

	failures map[string]error
	calls    []Call
	lag      int
	hook     Hook
}

var (
	_ remote.Client                = (*Store)(nil)
	_ remote.AttributeStatusReader = (*Store)(nil)
)

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		databases:   make(map[string]string),
		collections: make(map[string]remote.CollectionRequest),
		attributes:  make(map[string]*attribute),
		indexes:     make(map[string]remote.IndexRequest),
		documents:   make(map[string][]map[string]interface{}),
		documentIDs: make(map[string]bool),
		failures:    make(map[string]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fail makes every call of op on resource return err. Resource uses the
// request's Resource() form, e.g. "widgets.name" for an attribute.
func (s *Store) Fail(op, resource string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op+" "+resource] = err
}

// Calls returns a copy of the recorded calls in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// ResetCalls clears the call record but keeps stored resources.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// HasCollection reports whether the collection exists.
func (s *Store) HasCollection(databaseID, collectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[collKey(databaseID, collectionID)]
	return ok
}

// HasAttribute reports whether the attribute exists.
func (s *Store) HasAttribute(databaseID, collectionID, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.attributes[attrKey(databaseID, collectionID, key)]
	return ok
}

// HasIndex reports whether the index exists.
func (s *Store) HasIndex(databaseID, collectionID, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.indexes[attrKey(databaseID, collectionID, key)]
	return ok
}

// Documents returns the documents stored in a collection.
func (s *Store) Documents(databaseID, collectionID string) []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.documents[collKey(databaseID, collectionID)]
	out := make([]map[string]interface{}, len(docs))
	copy(out, docs)
	return out
}

// begin records the call and returns an injected failure, if any.
// Callers hold s.mu.
func (s *Store) begin(op, resource string) error {
	s.calls = append(s.calls, Call{Op: op, Resource: resource})
	if s.hook != nil {
		if err := s.hook(op, resource); err != nil {
			return err
		}
	}
	if err, ok := s.failures[op+" "+resource]; ok {
		return err
	}
	return nil
}

// CreateDatabase implements remote.Client.
func (s *Store) CreateDatabase(ctx context.Context, req remote.DatabaseRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(remote.OpCreateDatabase, req.Resource()); err != nil {
		return err
	}
	if _, ok := s.databases[req.DatabaseID]; ok {
		return remote.NewConflict(remote.OpCreateDatabase, req.Resource())
	}
	s.databases[req.DatabaseID] = req.Name
	return nil
}

// CreateCollection implements remote.Client.
func (s *Store) CreateCollection(ctx context.Context, req remote.CollectionRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(remote.OpCreateCollection, req.Resource()); err != nil {
		return err
	}
	if _, ok := s.databases[req.DatabaseID]; !ok {
		return notFound(remote.OpCreateCollection, req.Resource(), "database "+req.DatabaseID)
	}
	key := collKey(req.DatabaseID, req.CollectionID)
	if _, ok := s.collections[key]; ok {
		return remote.NewConflict(remote.OpCreateCollection, req.Resource())
	}
	s.collections[key] = req
	return nil
}

// CreateAttribute implements remote.Client.
func (s *Store) CreateAttribute(ctx context.Context, req remote.AttributeRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(remote.OpCreateAttribute, req.Resource()); err != nil {
		return err
	}
	if _, ok := s.collections[collKey(req.DatabaseID, req.CollectionID)]; !ok {
		return notFound(remote.OpCreateAttribute, req.Resource(), "collection "+req.CollectionID)
	}
	key := attrKey(req.DatabaseID, req.CollectionID, req.Attribute.Meta().Key)
	if _, ok := s.attributes[key]; ok {
		return remote.NewConflict(remote.OpCreateAttribute, req.Resource())
	}
	s.attributes[key] = &attribute{pending: s.lag}
	return nil
}

// CreateIndex implements remote.Client.
func (s *Store) CreateIndex(ctx context.Context, req remote.IndexRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(remote.OpCreateIndex, req.Resource()); err != nil {
		return err
	}
	key := attrKey(req.DatabaseID, req.CollectionID, req.Index.Key)
	if _, ok := s.indexes[key]; ok {
		return remote.NewConflict(remote.OpCreateIndex, req.Resource())
	}
	for _, a := range req.Index.Attributes {
		attr, ok := s.attributes[attrKey(req.DatabaseID, req.CollectionID, a)]
		if !ok {
			return &remote.Error{
				Code:     http.StatusBadRequest,
				Type:     "attribute_unknown",
				Message:  fmt.Sprintf("unknown attribute %s", a),
				Op:       remote.OpCreateIndex,
				Resource: req.Resource(),
			}
		}
		if attr.pending > 0 {
			return &remote.Error{
				Code:     http.StatusBadRequest,
				Type:     "attribute_not_available",
				Message:  fmt.Sprintf("attribute %s is not yet available", a),
				Op:       remote.OpCreateIndex,
				Resource: req.Resource(),
			}
		}
	}
	s.indexes[key] = req
	return nil
}

// CreateDocument implements remote.Client.
func (s *Store) CreateDocument(ctx context.Context, req remote.DocumentRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(remote.OpCreateDocument, req.Resource()); err != nil {
		return err
	}
	ckey := collKey(req.DatabaseID, req.CollectionID)
	if _, ok := s.collections[ckey]; !ok {
		return notFound(remote.OpCreateDocument, req.Resource(), "collection "+req.CollectionID)
	}
	dkey := ckey + "/" + req.DocumentID
	if s.documentIDs[dkey] {
		return remote.NewConflict(remote.OpCreateDocument, req.Resource())
	}
	doc := make(map[string]interface{}, len(req.Data)+1)
	for k, v := range req.Data {
		doc[k] = v
	}
	doc["$id"] = req.DocumentID
	s.documentIDs[dkey] = true
	s.documents[ckey] = append(s.documents[ckey], doc)
	return nil
}

// AttributeStatus implements remote.AttributeStatusReader. Each read of a
// pending attribute brings it one step closer to available.
func (s *Store) AttributeStatus(ctx context.Context, databaseID, collectionID, key string) (remote.AttributeStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	attr, ok := s.attributes[attrKey(databaseID, collectionID, key)]
	if !ok {
		return "", notFound(remote.OpAttributeStatus, collectionID+"."+key, "attribute "+key)
	}
	if attr.pending > 0 {
		attr.pending--
		return remote.AttributeProcessing, nil
	}
	return remote.AttributeAvailable, nil
}

func notFound(op, resource, what string) *remote.Error {
	return &remote.Error{
		Code:     http.StatusNotFound,
		Type:     "not_found",
		Message:  what + " not found",
		Op:       op,
		Resource: resource,
	}
}

func collKey(databaseID, collectionID string) string {
	return databaseID + "/" + collectionID
}

func attrKey(databaseID, collectionID, key string) string {
	return databaseID + "/" + collectionID + "/" + key
}
