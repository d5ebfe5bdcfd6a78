package catalog

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// AttributeType is the storage type of a collection attribute.
type AttributeType string

const (
	AttributeString   AttributeType = "string"
	AttributeInteger  AttributeType = "integer"
	AttributeFloat    AttributeType = "float"
	AttributeBoolean  AttributeType = "boolean"
	AttributeDatetime AttributeType = "datetime"
	AttributeEmail    AttributeType = "email"
	AttributeURL      AttributeType = "url"
)

// Validate checks if the attribute type is known.
func (t AttributeType) Validate() error {
	switch t {
	case AttributeString, AttributeInteger, AttributeFloat, AttributeBoolean,
		AttributeDatetime, AttributeEmail, AttributeURL:
		return nil
	default:
		return fmt.Errorf("invalid attribute type: %s", t)
	}
}

// IndexType is the kind of index the remote builds.
type IndexType string

const (
	IndexKey      IndexType = "key"
	IndexUnique   IndexType = "unique"
	IndexFulltext IndexType = "fulltext"
)

// Validate checks if the index type is known.
func (t IndexType) Validate() error {
	switch t {
	case IndexKey, IndexUnique, IndexFulltext:
		return nil
	default:
		return fmt.Errorf("invalid index type: %s", t)
	}
}

// DefaultStringSize is used when a string attribute omits its size.
const DefaultStringSize = 255

// Definition is the desired state of one remote database. A Definition is
// configuration: it is built before a run and the engine never mutates it.
type Definition struct {
	// DatabaseID is the remote identifier of the database.
	DatabaseID string

	// DatabaseName is the human-readable database name.
	DatabaseName string

	// Collections are provisioned in slice order.
	Collections []Collection

	// Seeds are sample documents inserted after the schema exists.
	Seeds []SeedSet
}

// Collection describes one collection and its ordered attributes and indexes.
type Collection struct {
	ID               string
	Name             string
	Permissions      []string
	DocumentSecurity bool
	Attributes       []Attribute
	Indexes          []Index
}

// Index describes one index over attributes of the same collection.
type Index struct {
	Key        string
	Type       IndexType
	Attributes []string
	Orders     []string
}

// SeedSet is a group of sample documents for one collection.
type SeedSet struct {
	// Collection is the target collection ID.
	Collection string

	// Label names the document field used in log messages.
	Label string

	// Documents are inserted in order, each independently.
	Documents []map[string]interface{}
}

// NowPlaceholder in a seed document value is replaced with the run time.
const NowPlaceholder = "$now"

// Attribute is a tagged union over the supported attribute types. Each
// variant carries only the fields valid for its type.
type Attribute interface {
	// Meta returns the fields shared by every variant.
	Meta() AttributeMeta

	// Type returns the variant tag.
	Type() AttributeType

	// DefaultValue returns the default and whether one is set.
	DefaultValue() (interface{}, bool)

	validate() error
	clone() Attribute
}

// AttributeMeta holds the fields common to every attribute variant.
type AttributeMeta struct {
	Key      string
	Required bool
	Array    bool
}

// StringAttribute is a bounded text attribute.
type StringAttribute struct {
	AttributeMeta
	Size    int
	Default *string
}

func (a StringAttribute) Meta() AttributeMeta { return a.AttributeMeta }
func (a StringAttribute) Type() AttributeType { return AttributeString }
func (a StringAttribute) clone() Attribute {
	a.Default = clonePtr(a.Default)
	return a
}
func (a StringAttribute) DefaultValue() (interface{}, bool) {
	if a.Default == nil {
		return nil, false
	}
	return *a.Default, true
}

func (a StringAttribute) validate() error {
	if a.Size <= 0 {
		return fmt.Errorf("size must be positive, got %d", a.Size)
	}
	if a.Default != nil && utf8.RuneCountInString(*a.Default) > a.Size {
		return fmt.Errorf("default exceeds size %d", a.Size)
	}
	return nil
}

// IntegerAttribute is a signed 64-bit integer attribute.
type IntegerAttribute struct {
	AttributeMeta
	Min     *int64
	Max     *int64
	Default *int64
}

func (a IntegerAttribute) Meta() AttributeMeta { return a.AttributeMeta }
func (a IntegerAttribute) Type() AttributeType { return AttributeInteger }
func (a IntegerAttribute) clone() Attribute {
	a.Min, a.Max, a.Default = clonePtr(a.Min), clonePtr(a.Max), clonePtr(a.Default)
	return a
}
func (a IntegerAttribute) DefaultValue() (interface{}, bool) {
	if a.Default == nil {
		return nil, false
	}
	return *a.Default, true
}

func (a IntegerAttribute) validate() error {
	if a.Min != nil && a.Max != nil && *a.Min > *a.Max {
		return fmt.Errorf("min %d greater than max %d", *a.Min, *a.Max)
	}
	if a.Default != nil {
		if a.Min != nil && *a.Default < *a.Min {
			return fmt.Errorf("default %d below min %d", *a.Default, *a.Min)
		}
		if a.Max != nil && *a.Default > *a.Max {
			return fmt.Errorf("default %d above max %d", *a.Default, *a.Max)
		}
	}
	return nil
}

// FloatAttribute is a double precision attribute.
type FloatAttribute struct {
	AttributeMeta
	Min     *float64
	Max     *float64
	Default *float64
}

func (a FloatAttribute) Meta() AttributeMeta { return a.AttributeMeta }
func (a FloatAttribute) Type() AttributeType { return AttributeFloat }
func (a FloatAttribute) clone() Attribute {
	a.Min, a.Max, a.Default = clonePtr(a.Min), clonePtr(a.Max), clonePtr(a.Default)
	return a
}
func (a FloatAttribute) DefaultValue() (interface{}, bool) {
	if a.Default == nil {
		return nil, false
	}
	return *a.Default, true
}

func (a FloatAttribute) validate() error {
	if a.Min != nil && a.Max != nil && *a.Min > *a.Max {
		return fmt.Errorf("min %g greater than max %g", *a.Min, *a.Max)
	}
	if a.Default != nil {
		if a.Min != nil && *a.Default < *a.Min {
			return fmt.Errorf("default %g below min %g", *a.Default, *a.Min)
		}
		if a.Max != nil && *a.Default > *a.Max {
			return fmt.Errorf("default %g above max %g", *a.Default, *a.Max)
		}
	}
	return nil
}

// BooleanAttribute is a true/false attribute.
type BooleanAttribute struct {
	AttributeMeta
	Default *bool
}

func (a BooleanAttribute) Meta() AttributeMeta { return a.AttributeMeta }
func (a BooleanAttribute) Type() AttributeType { return AttributeBoolean }
func (a BooleanAttribute) clone() Attribute {
	a.Default = clonePtr(a.Default)
	return a
}
func (a BooleanAttribute) DefaultValue() (interface{}, bool) {
	if a.Default == nil {
		return nil, false
	}
	return *a.Default, true
}
func (a BooleanAttribute) validate() error { return nil }

// DatetimeAttribute stores an ISO 8601 timestamp.
type DatetimeAttribute struct {
	AttributeMeta
	Default *string
}

func (a DatetimeAttribute) Meta() AttributeMeta { return a.AttributeMeta }
func (a DatetimeAttribute) Type() AttributeType { return AttributeDatetime }
func (a DatetimeAttribute) clone() Attribute {
	a.Default = clonePtr(a.Default)
	return a
}
func (a DatetimeAttribute) DefaultValue() (interface{}, bool) {
	if a.Default == nil {
		return nil, false
	}
	return *a.Default, true
}

func (a DatetimeAttribute) validate() error {
	if a.Default != nil {
		if _, err := time.Parse(time.RFC3339, *a.Default); err != nil {
			return fmt.Errorf("default is not an RFC 3339 timestamp: %w", err)
		}
	}
	return nil
}

// EmailAttribute is a string attribute validated as an email address.
type EmailAttribute struct {
	AttributeMeta
	Default *string
}

func (a EmailAttribute) Meta() AttributeMeta { return a.AttributeMeta }
func (a EmailAttribute) Type() AttributeType { return AttributeEmail }
func (a EmailAttribute) clone() Attribute {
	a.Default = clonePtr(a.Default)
	return a
}
func (a EmailAttribute) DefaultValue() (interface{}, bool) {
	if a.Default == nil {
		return nil, false
	}
	return *a.Default, true
}

func (a EmailAttribute) validate() error {
	if a.Default != nil {
		if err := validate.Var(*a.Default, "email"); err != nil {
			return fmt.Errorf("default %q is not an email address", *a.Default)
		}
	}
	return nil
}

// URLAttribute is a string attribute validated as a URL.
type URLAttribute struct {
	AttributeMeta
	Default *string
}

func (a URLAttribute) Meta() AttributeMeta { return a.AttributeMeta }
func (a URLAttribute) Type() AttributeType { return AttributeURL }
func (a URLAttribute) clone() Attribute {
	a.Default = clonePtr(a.Default)
	return a
}
func (a URLAttribute) DefaultValue() (interface{}, bool) {
	if a.Default == nil {
		return nil, false
	}
	return *a.Default, true
}

func (a URLAttribute) validate() error {
	if a.Default != nil {
		if err := validate.Var(*a.Default, "url"); err != nil {
			return fmt.Errorf("default %q is not a URL", *a.Default)
		}
	}
	return nil
}

// Attribute returns the attribute with the given key.
func (c Collection) Attribute(key string) (Attribute, bool) {
	for _, a := range c.Attributes {
		if a.Meta().Key == key {
			return a, true
		}
	}
	return nil, false
}

// Collection returns the collection with the given ID.
func (d Definition) Collection(id string) (Collection, bool) {
	for _, c := range d.Collections {
		if c.ID == id {
			return c, true
		}
	}
	return Collection{}, false
}

// CountAttributes returns the total number of attributes across collections.
func (d Definition) CountAttributes() int {
	n := 0
	for _, c := range d.Collections {
		n += len(c.Attributes)
	}
	return n
}

// CountIndexes returns the total number of indexes across collections.
func (d Definition) CountIndexes() int {
	n := 0
	for _, c := range d.Collections {
		n += len(c.Indexes)
	}
	return n
}

// Clone returns a deep copy of the definition. Nothing reachable from the
// copy is shared with d.
func (d Definition) Clone() Definition {
	out := Definition{
		DatabaseID:   d.DatabaseID,
		DatabaseName: d.DatabaseName,
		Collections:  make([]Collection, len(d.Collections)),
		Seeds:        make([]SeedSet, len(d.Seeds)),
	}

	for i, c := range d.Collections {
		cc := c
		cc.Permissions = append([]string(nil), c.Permissions...)
		cc.Attributes = make([]Attribute, len(c.Attributes))
		for j, a := range c.Attributes {
			cc.Attributes[j] = a.clone()
		}
		cc.Indexes = make([]Index, len(c.Indexes))
		for j, idx := range c.Indexes {
			idx.Attributes = append([]string(nil), idx.Attributes...)
			idx.Orders = append([]string(nil), idx.Orders...)
			cc.Indexes[j] = idx
		}
		out.Collections[i] = cc
	}

	for i, s := range d.Seeds {
		ss := s
		ss.Documents = make([]map[string]interface{}, len(s.Documents))
		for j, doc := range s.Documents {
			ss.Documents[j] = cloneValue(doc).(map[string]interface{})
		}
		out.Seeds[i] = ss
	}

	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// cloneValue copies the maps and slices of a decoded seed value.
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
