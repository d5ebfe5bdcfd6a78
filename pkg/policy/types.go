package policy

import (
	"time"

	"github.com/openfroyo/schemaprov/pkg/catalog"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not
	// block provisioning.
	SeverityWarning Severity = "warning"

	// SeverityError blocks provisioning.
	SeverityError Severity = "error"
)

// Blocking reports whether a violation of this severity blocks a run.
func (s Severity) Blocking() bool {
	return s == SeverityError
}

// Policy is a Rego module whose deny set lists violations.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. It must define a deny set in its
	// package.
	Rego string `json:"rego"`

	// Severity applies to violations that do not carry their own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source is the file the policy came from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is one finding of one policy.
type Violation struct {
	Policy   string   `json:"policy"`
	Resource string   `json:"resource,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every enabled policy against a catalog.
type Result struct {
	// Allowed is false when any violation has a blocking severity.
	Allowed bool `json:"allowed"`

	// Violations are the blocking findings.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are the non-blocking findings.
	Warnings []Violation `json:"warnings,omitempty"`

	// Errors lists policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// Input is the document policies see as input.
type Input struct {
	Database    DatabaseInput     `json:"database"`
	Collections []CollectionInput `json:"collections"`
	Seeds       []SeedInput       `json:"seeds"`
}

// DatabaseInput describes the target database.
type DatabaseInput struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CollectionInput describes one collection.
type CollectionInput struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Permissions      []string         `json:"permissions"`
	DocumentSecurity bool             `json:"document_security"`
	Attributes       []AttributeInput `json:"attributes"`
	Indexes          []IndexInput     `json:"indexes"`
}

// AttributeInput flattens an attribute variant.
type AttributeInput struct {
	Key        string      `json:"key"`
	Type       string      `json:"type"`
	Required   bool        `json:"required"`
	Array      bool        `json:"array"`
	Size       int         `json:"size,omitempty"`
	HasDefault bool        `json:"has_default"`
	Default    interface{} `json:"default,omitempty"`
}

// IndexInput describes one index.
type IndexInput struct {
	Key        string   `json:"key"`
	Type       string   `json:"type"`
	Attributes []string `json:"attributes"`
	Orders     []string `json:"orders,omitempty"`
}

// SeedInput summarizes one seed set.
type SeedInput struct {
	Collection string `json:"collection"`
	Documents  int    `json:"documents"`
}

// NewInput builds the policy input for def.
func NewInput(def catalog.Definition) Input {
	in := Input{
		Database:    DatabaseInput{ID: def.DatabaseID, Name: def.DatabaseName},
		Collections: make([]CollectionInput, 0, len(def.Collections)),
		Seeds:       make([]SeedInput, 0, len(def.Seeds)),
	}

	for _, c := range def.Collections {
		ci := CollectionInput{
			ID:               c.ID,
			Name:             c.Name,
			Permissions:      append([]string{}, c.Permissions...),
			DocumentSecurity: c.DocumentSecurity,
			Attributes:       make([]AttributeInput, 0, len(c.Attributes)),
			Indexes:          make([]IndexInput, 0, len(c.Indexes)),
		}
		for _, a := range c.Attributes {
			meta := a.Meta()
			ai := AttributeInput{
				Key:      meta.Key,
				Type:     string(a.Type()),
				Required: meta.Required,
				Array:    meta.Array,
			}
			if s, ok := a.(catalog.StringAttribute); ok {
				ai.Size = s.Size
			}
			ai.Default, ai.HasDefault = a.DefaultValue()
			ci.Attributes = append(ci.Attributes, ai)
		}
		for _, idx := range c.Indexes {
			ci.Indexes = append(ci.Indexes, IndexInput{
				Key:        idx.Key,
				Type:       string(idx.Type),
				Attributes: append([]string{}, idx.Attributes...),
				Orders:     idx.Orders,
			})
		}
		in.Collections = append(in.Collections, ci)
	}

	for _, s := range def.Seeds {
		in.Seeds = append(in.Seeds, SeedInput{Collection: s.Collection, Documents: len(s.Documents)})
	}
	return in
}
