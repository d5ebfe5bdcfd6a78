// Package remote defines the control API the provisioning engine drives and
// the conflict taxonomy that makes runs idempotent.
//
// Every creation call returns nil (the resource was created), an error for
// which IsConflict reports true (the resource already exists), or any other
// error (the call failed). Implementations must keep the conflict case
// distinguishable; Classify is the one place that decides it.
package remote

import (
	"context"
	"fmt"

	"github.com/openfroyo/schemaprov/pkg/catalog"
)

// Kind names the resource a call creates.
type Kind string

const (
	KindDatabase   Kind = "database"
	KindCollection Kind = "collection"
	KindAttribute  Kind = "attribute"
	KindIndex      Kind = "index"
	KindDocument   Kind = "document"
)

// Operation names used in errors, spans and metrics.
const (
	OpCreateDatabase   = "create_database"
	OpCreateCollection = "create_collection"
	OpCreateAttribute  = "create_attribute"
	OpCreateIndex      = "create_index"
	OpCreateDocument   = "create_document"
	OpAttributeStatus  = "attribute_status"
)

// Client creates schema resources on a remote store.
type Client interface {
	CreateDatabase(ctx context.Context, req DatabaseRequest) error
	CreateCollection(ctx context.Context, req CollectionRequest) error
	CreateAttribute(ctx context.Context, req AttributeRequest) error
	CreateIndex(ctx context.Context, req IndexRequest) error
	CreateDocument(ctx context.Context, req DocumentRequest) error
}

// AttributeStatus is the materialization state the remote reports for an
// attribute. Attributes are created asynchronously and can only be indexed
// once available.
type AttributeStatus string

const (
	AttributeAvailable  AttributeStatus = "available"
	AttributeProcessing AttributeStatus = "processing"
	AttributeDeleting   AttributeStatus = "deleting"
	AttributeStuck      AttributeStatus = "stuck"
	AttributeFailed     AttributeStatus = "failed"
)

// Terminal reports whether the status will not change without intervention.
func (s AttributeStatus) Terminal() bool {
	switch s {
	case AttributeAvailable, AttributeStuck, AttributeFailed:
		return true
	default:
		return false
	}
}

// AttributeStatusReader is implemented by clients that can report attribute
// materialization. The engine polls it instead of sleeping a fixed delay.
type AttributeStatusReader interface {
	AttributeStatus(ctx context.Context, databaseID, collectionID, key string) (AttributeStatus, error)
}

// DatabaseRequest creates a database.
type DatabaseRequest struct {
	DatabaseID string
	Name       string
}

// Resource returns the identifier used in logs and errors.
func (r DatabaseRequest) Resource() string { return r.DatabaseID }

// CollectionRequest creates a collection inside a database.
type CollectionRequest struct {
	DatabaseID       string
	CollectionID     string
	Name             string
	Permissions      []string
	DocumentSecurity bool
}

// Resource returns the identifier used in logs and errors.
func (r CollectionRequest) Resource() string { return r.CollectionID }

// AttributeRequest creates one typed attribute on a collection.
type AttributeRequest struct {
	DatabaseID   string
	CollectionID string
	Attribute    catalog.Attribute
}

// Resource returns the identifier used in logs and errors.
func (r AttributeRequest) Resource() string {
	return fmt.Sprintf("%s.%s", r.CollectionID, r.Attribute.Meta().Key)
}

// IndexRequest creates one index on a collection.
type IndexRequest struct {
	DatabaseID   string
	CollectionID string
	Index        catalog.Index
}

// Resource returns the identifier used in logs and errors.
func (r IndexRequest) Resource() string {
	return fmt.Sprintf("%s.%s", r.CollectionID, r.Index.Key)
}

// DocumentRequest creates one document.
type DocumentRequest struct {
	DatabaseID   string
	CollectionID string
	DocumentID   string
	Data         map[string]interface{}
	Permissions  []string
}

// Resource returns the identifier used in logs and errors.
func (r DocumentRequest) Resource() string {
	return fmt.Sprintf("%s/%s", r.CollectionID, r.DocumentID)
}
