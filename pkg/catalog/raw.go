package catalog

import (
	"fmt"
	"math"
)

// document is the on-disk shape of a catalog. It is converted into a
// Definition, which holds attributes as typed variants.
type document struct {
	Database    databaseDoc     `yaml:"database" json:"database"`
	Collections []collectionDoc `yaml:"collections" json:"collections" validate:"required,min=1,dive"`
	Seeds       []seedDoc       `yaml:"seeds,omitempty" json:"seeds,omitempty" validate:"dive"`
}

type databaseDoc struct {
	ID   string `yaml:"id" json:"id" validate:"required,max=36"`
	Name string `yaml:"name" json:"name" validate:"required,max=128"`
}

type collectionDoc struct {
	ID               string         `yaml:"id" json:"id" validate:"required,max=36"`
	Name             string         `yaml:"name" json:"name" validate:"required,max=128"`
	Permissions      []string       `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	DocumentSecurity *bool          `yaml:"document_security,omitempty" json:"document_security,omitempty"`
	Attributes       []attributeDoc `yaml:"attributes" json:"attributes" validate:"dive"`
	Indexes          []indexDoc     `yaml:"indexes,omitempty" json:"indexes,omitempty" validate:"dive"`
}

type attributeDoc struct {
	Key      string      `yaml:"key" json:"key" validate:"required,max=36"`
	Type     string      `yaml:"type" json:"type" validate:"required,oneof=string integer float boolean datetime email url"`
	Size     int         `yaml:"size,omitempty" json:"size,omitempty" validate:"gte=0"`
	Required bool        `yaml:"required" json:"required"`
	Array    bool        `yaml:"array,omitempty" json:"array,omitempty"`
	Default  interface{} `yaml:"default,omitempty" json:"default,omitempty"`
	Min      *float64    `yaml:"min,omitempty" json:"min,omitempty"`
	Max      *float64    `yaml:"max,omitempty" json:"max,omitempty"`
}

type indexDoc struct {
	Key        string   `yaml:"key" json:"key" validate:"required,max=36"`
	Type       string   `yaml:"type" json:"type" validate:"required,oneof=key unique fulltext"`
	Attributes []string `yaml:"attributes" json:"attributes" validate:"required,min=1"`
	Orders     []string `yaml:"orders,omitempty" json:"orders,omitempty" validate:"omitempty,dive,oneof=ASC DESC"`
}

type seedDoc struct {
	Collection string                   `yaml:"collection" json:"collection" validate:"required"`
	Label      string                   `yaml:"label,omitempty" json:"label,omitempty"`
	Documents  []map[string]interface{} `yaml:"documents" json:"documents"`
}

// defaultPermissions grant authenticated users full access to a collection.
var defaultPermissions = []string{
	`read("users")`,
	`create("users")`,
	`update("users")`,
	`delete("users")`,
}

// toDefinition converts a decoded document into a Definition.
func (doc *document) toDefinition() (Definition, error) {
	def := Definition{
		DatabaseID:   doc.Database.ID,
		DatabaseName: doc.Database.Name,
		Collections:  make([]Collection, 0, len(doc.Collections)),
		Seeds:        make([]SeedSet, 0, len(doc.Seeds)),
	}

	for _, cd := range doc.Collections {
		c := Collection{
			ID:               cd.ID,
			Name:             cd.Name,
			Permissions:      cd.Permissions,
			DocumentSecurity: true,
			Attributes:       make([]Attribute, 0, len(cd.Attributes)),
			Indexes:          make([]Index, 0, len(cd.Indexes)),
		}
		if c.Permissions == nil {
			c.Permissions = append([]string(nil), defaultPermissions...)
		}
		if cd.DocumentSecurity != nil {
			c.DocumentSecurity = *cd.DocumentSecurity
		}

		for _, ad := range cd.Attributes {
			a, err := ad.toAttribute()
			if err != nil {
				return Definition{}, fmt.Errorf("collection %s attribute %s: %w", cd.ID, ad.Key, err)
			}
			c.Attributes = append(c.Attributes, a)
		}

		for _, id := range cd.Indexes {
			c.Indexes = append(c.Indexes, Index{
				Key:        id.Key,
				Type:       IndexType(id.Type),
				Attributes: id.Attributes,
				Orders:     id.Orders,
			})
		}

		def.Collections = append(def.Collections, c)
	}

	for _, sd := range doc.Seeds {
		def.Seeds = append(def.Seeds, SeedSet{
			Collection: sd.Collection,
			Label:      sd.Label,
			Documents:  sd.Documents,
		})
	}

	return def, nil
}

// toAttribute builds the typed variant for a decoded attribute. Defaults
// whose type does not match the attribute type are rejected here.
func (ad attributeDoc) toAttribute() (Attribute, error) {
	meta := AttributeMeta{Key: ad.Key, Required: ad.Required, Array: ad.Array}

	if ad.Size != 0 && AttributeType(ad.Type) != AttributeString {
		return nil, fmt.Errorf("size is only valid for string attributes")
	}
	if (ad.Min != nil || ad.Max != nil) && AttributeType(ad.Type) != AttributeInteger && AttributeType(ad.Type) != AttributeFloat {
		return nil, fmt.Errorf("min/max are only valid for numeric attributes")
	}

	switch AttributeType(ad.Type) {
	case AttributeString:
		a := StringAttribute{AttributeMeta: meta, Size: ad.Size}
		if a.Size == 0 {
			a.Size = DefaultStringSize
		}
		s, err := stringDefault(ad.Default)
		if err != nil {
			return nil, err
		}
		a.Default = s
		return a, nil

	case AttributeInteger:
		a := IntegerAttribute{AttributeMeta: meta}
		if ad.Default != nil {
			v, ok := toInt64(ad.Default)
			if !ok {
				return nil, fmt.Errorf("default %v is not an integer", ad.Default)
			}
			a.Default = &v
		}
		if ad.Min != nil {
			v, ok := floatToInt64(*ad.Min)
			if !ok {
				return nil, fmt.Errorf("min %v is not an integer", *ad.Min)
			}
			a.Min = &v
		}
		if ad.Max != nil {
			v, ok := floatToInt64(*ad.Max)
			if !ok {
				return nil, fmt.Errorf("max %v is not an integer", *ad.Max)
			}
			a.Max = &v
		}
		return a, nil

	case AttributeFloat:
		a := FloatAttribute{AttributeMeta: meta, Min: ad.Min, Max: ad.Max}
		if ad.Default != nil {
			v, ok := toFloat64(ad.Default)
			if !ok {
				return nil, fmt.Errorf("default %v is not a number", ad.Default)
			}
			a.Default = &v
		}
		return a, nil

	case AttributeBoolean:
		a := BooleanAttribute{AttributeMeta: meta}
		if ad.Default != nil {
			v, ok := ad.Default.(bool)
			if !ok {
				return nil, fmt.Errorf("default %v is not a boolean", ad.Default)
			}
			a.Default = &v
		}
		return a, nil

	case AttributeDatetime:
		s, err := stringDefault(ad.Default)
		if err != nil {
			return nil, err
		}
		return DatetimeAttribute{AttributeMeta: meta, Default: s}, nil

	case AttributeEmail:
		s, err := stringDefault(ad.Default)
		if err != nil {
			return nil, err
		}
		return EmailAttribute{AttributeMeta: meta, Default: s}, nil

	case AttributeURL:
		s, err := stringDefault(ad.Default)
		if err != nil {
			return nil, err
		}
		return URLAttribute{AttributeMeta: meta, Default: s}, nil

	default:
		return nil, fmt.Errorf("invalid attribute type: %s", ad.Type)
	}
}

func stringDefault(v interface{}) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("default %v is not a string", v)
	}
	return &s, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		return floatToInt64(n)
	default:
		return 0, false
	}
}

// floatToInt64 converts whole numbers in the int64 range. float64(MaxInt64)
// rounds up to 2^63, so the upper bound is exclusive.
func floatToInt64(n float64) (int64, bool) {
	if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// fromDefinition converts a Definition back into its on-disk shape.
func fromDefinition(def Definition) *document {
	doc := &document{
		Database: databaseDoc{ID: def.DatabaseID, Name: def.DatabaseName},
	}

	for _, c := range def.Collections {
		ds := c.DocumentSecurity
		cd := collectionDoc{
			ID:               c.ID,
			Name:             c.Name,
			Permissions:      c.Permissions,
			DocumentSecurity: &ds,
		}
		for _, a := range c.Attributes {
			meta := a.Meta()
			ad := attributeDoc{
				Key:      meta.Key,
				Type:     string(a.Type()),
				Required: meta.Required,
				Array:    meta.Array,
			}
			if v, ok := a.DefaultValue(); ok {
				ad.Default = v
			}
			switch v := a.(type) {
			case StringAttribute:
				ad.Size = v.Size
			case IntegerAttribute:
				if v.Min != nil {
					f := float64(*v.Min)
					ad.Min = &f
				}
				if v.Max != nil {
					f := float64(*v.Max)
					ad.Max = &f
				}
			case FloatAttribute:
				ad.Min, ad.Max = v.Min, v.Max
			}
			cd.Attributes = append(cd.Attributes, ad)
		}
		for _, idx := range c.Indexes {
			cd.Indexes = append(cd.Indexes, indexDoc{
				Key:        idx.Key,
				Type:       string(idx.Type),
				Attributes: idx.Attributes,
				Orders:     idx.Orders,
			})
		}
		doc.Collections = append(doc.Collections, cd)
	}

	for _, s := range def.Seeds {
		doc.Seeds = append(doc.Seeds, seedDoc{
			Collection: s.Collection,
			Label:      s.Label,
			Documents:  s.Documents,
		})
	}

	return doc
}
