package policy

// MaxStringSize is the largest string attribute the remote accepts.
const MaxStringSize = 1073741824

// MaxIndexesPerCollection is the remote's index limit per collection.
const MaxIndexesPerCollection = 64

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		indexAttributesPolicy(),
		attributeLimitsPolicy(),
		collectionLimitsPolicy(),
		identifierPolicy(),
	}
}

// indexAttributesPolicy checks that indexes suit the attributes they cover.
func indexAttributesPolicy() Policy {
	return Policy{
		Name:        "index-attributes",
		Description: "Unique indexes should cover required attributes; fulltext indexes need string attributes",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package schemaprov.policies.indexes

import rego.v1

attribute(collection, key) := attr if {
	some attr in collection.attributes
	attr.key == key
}

# A unique index over an optional attribute lets many documents share null.
deny contains violation if {
	some collection in input.collections
	some index in collection.indexes
	index.type == "unique"
	some key in index.attributes
	attr := attribute(collection, key)
	not attr.required
	violation := {
		"message": sprintf("unique index %s covers optional attribute %s", [index.key, key]),
		"severity": "warning",
		"resource": sprintf("%s.%s", [collection.id, index.key]),
	}
}

deny contains violation if {
	some collection in input.collections
	some index in collection.indexes
	index.type == "fulltext"
	some key in index.attributes
	attr := attribute(collection, key)
	attr.type != "string"
	violation := {
		"message": sprintf("fulltext index %s covers %s attribute %s", [index.key, attr.type, key]),
		"severity": "error",
		"resource": sprintf("%s.%s", [collection.id, index.key]),
	}
}
`,
	}
}

// attributeLimitsPolicy checks attribute sizes and defaults.
func attributeLimitsPolicy() Policy {
	return Policy{
		Name:        "attribute-limits",
		Description: "String sizes must fit the remote; required attributes should not carry defaults",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package schemaprov.policies.attributes

import rego.v1

max_string_size := 1073741824

deny contains violation if {
	some collection in input.collections
	some attr in collection.attributes
	attr.type == "string"
	attr.size > max_string_size
	violation := {
		"message": sprintf("string attribute %s has size %d, the limit is %d", [attr.key, attr.size, max_string_size]),
		"severity": "error",
		"resource": sprintf("%s.%s", [collection.id, attr.key]),
	}
}

# The remote ignores defaults on required attributes.
deny contains violation if {
	some collection in input.collections
	some attr in collection.attributes
	attr.required
	attr.has_default
	violation := {
		"message": sprintf("required attribute %s carries a default that will never apply", [attr.key]),
		"severity": "warning",
		"resource": sprintf("%s.%s", [collection.id, attr.key]),
	}
}
`,
	}
}

// collectionLimitsPolicy checks per-collection limits.
func collectionLimitsPolicy() Policy {
	return Policy{
		Name:        "collection-limits",
		Description: "Collections must stay within the remote's index limit",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package schemaprov.policies.collections

import rego.v1

max_indexes := 64

deny contains violation if {
	some collection in input.collections
	count(collection.indexes) > max_indexes
	violation := {
		"message": sprintf("collection %s has %d indexes, the limit is %d", [collection.id, count(collection.indexes), max_indexes]),
		"severity": "error",
		"resource": collection.id,
	}
}

deny contains violation if {
	some collection in input.collections
	count(collection.attributes) == 0
	violation := {
		"message": sprintf("collection %s has no attributes", [collection.id]),
		"severity": "info",
		"resource": collection.id,
	}
}
`,
	}
}

// identifierPolicy enforces the remote's identifier rules.
func identifierPolicy() Policy {
	return Policy{
		Name:        "identifiers",
		Description: "Database, collection and attribute IDs must be valid remote identifiers",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package schemaprov.policies.identifiers

import rego.v1

valid_id(id) if regex.match("^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,35}$", id)

deny contains violation if {
	not valid_id(input.database.id)
	violation := {
		"message": sprintf("database id '%s' is not a valid identifier", [input.database.id]),
		"resource": input.database.id,
	}
}

deny contains violation if {
	some collection in input.collections
	not valid_id(collection.id)
	violation := {
		"message": sprintf("collection id '%s' is not a valid identifier", [collection.id]),
		"resource": collection.id,
	}
}

deny contains violation if {
	some collection in input.collections
	some attr in collection.attributes
	not valid_id(attr.key)
	violation := {
		"message": sprintf("attribute key '%s' is not a valid identifier", [attr.key]),
		"resource": sprintf("%s.%s", [collection.id, attr.key]),
	}
}
`,
	}
}
