package catalog

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError describes one problem found in a definition.
type ValidationError struct {
	// Path locates the problem, e.g. "collections[patients].indexes[idx_name]".
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks every invariant of the definition and returns all
// problems joined together, or nil.
func (d Definition) Validate() error {
	var errs []error
	add := func(path, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if d.DatabaseID == "" {
		add("database.id", "is required")
	}
	if d.DatabaseName == "" {
		add("database.name", "is required")
	}

	collections := make(map[string]Collection, len(d.Collections))
	for i, c := range d.Collections {
		path := fmt.Sprintf("collections[%d]", i)
		if c.ID == "" {
			add(path+".id", "is required")
			continue
		}
		path = fmt.Sprintf("collections[%s]", c.ID)
		if _, dup := collections[c.ID]; dup {
			add(path, "duplicate collection id")
			continue
		}
		collections[c.ID] = c
		errs = append(errs, validateCollection(path, c)...)
	}

	for i, s := range d.Seeds {
		path := fmt.Sprintf("seeds[%d]", i)
		if _, ok := collections[s.Collection]; !ok {
			add(path+".collection", "unknown collection %q", s.Collection)
		}
	}

	return errors.Join(errs...)
}

func validateCollection(path string, c Collection) []error {
	var errs []error
	add := func(p, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Path: p, Message: fmt.Sprintf(format, args...)})
	}

	if c.Name == "" {
		add(path+".name", "is required")
	}

	keys := make(map[string]bool, len(c.Attributes))
	for i, a := range c.Attributes {
		if a == nil {
			add(fmt.Sprintf("%s.attributes[%d]", path, i), "is nil")
			continue
		}
		meta := a.Meta()
		apath := fmt.Sprintf("%s.attributes[%s]", path, meta.Key)
		if meta.Key == "" {
			add(fmt.Sprintf("%s.attributes[%d].key", path, i), "is required")
			continue
		}
		if keys[meta.Key] {
			add(apath, "duplicate attribute key")
			continue
		}
		keys[meta.Key] = true
		if err := a.Type().Validate(); err != nil {
			add(apath, "%v", err)
		}
		if err := a.validate(); err != nil {
			add(apath, "%v", err)
		}
	}

	indexes := make(map[string]bool, len(c.Indexes))
	for i, idx := range c.Indexes {
		ipath := fmt.Sprintf("%s.indexes[%s]", path, idx.Key)
		if idx.Key == "" {
			add(fmt.Sprintf("%s.indexes[%d].key", path, i), "is required")
			continue
		}
		if indexes[idx.Key] {
			add(ipath, "duplicate index key")
			continue
		}
		indexes[idx.Key] = true
		if err := idx.Type.Validate(); err != nil {
			add(ipath, "%v", err)
		}
		if len(idx.Attributes) == 0 {
			add(ipath, "must reference at least one attribute")
		}
		for _, key := range idx.Attributes {
			if !keys[key] {
				add(ipath, "references unknown attribute %q", key)
			}
		}
		if len(idx.Orders) > 0 && len(idx.Orders) != len(idx.Attributes) {
			add(ipath, "has %d orders for %d attributes", len(idx.Orders), len(idx.Attributes))
		}
		for _, o := range idx.Orders {
			if o != "ASC" && o != "DESC" {
				add(ipath, "invalid order %q", o)
			}
		}
	}

	return errs
}
