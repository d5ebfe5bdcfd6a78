// Package policy checks catalogs against Open Policy Agent (OPA) Rego
// policies before they are provisioned.
//
// An Engine holds the built-in policies plus any loaded from files, each
// compiled once. Evaluate runs the enabled ones against a catalog and splits
// the findings into blocking violations and warnings:
//
//	pe, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := pe.LoadPolicies(ctx, []string{"./policies"}); err != nil {
//	    return err
//	}
//	res, err := pe.Evaluate(ctx, def)
//
// res.Allowed is false when any error-severity finding exists. A Loader
// can also watch policy directories and feed reloads to Engine.Replace.
//
// # Writing Policies
//
// A policy is a Rego module that defines a deny set in its own package.
// Members may be plain strings or objects with message, severity and
// resource fields:
//
//	# Collections must not be public.
//	# severity: error
//	package schemaprov.custom.permissions
//
//	import rego.v1
//
//	deny contains violation if {
//	    some collection in input.collections
//	    some perm in collection.permissions
//	    startswith(perm, "read(\"any\")")
//	    violation := {
//	        "message": sprintf("collection %s is world readable", [collection.id]),
//	        "resource": collection.id,
//	    }
//	}
//
// Leading comments become the description; a "severity:" comment sets the
// default severity, which is warning otherwise. Only error findings block.
//
// The input document mirrors the catalog: input.database, input.collections
// (with attributes and indexes) and input.seeds. See Input.
package policy
