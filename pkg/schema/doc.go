// Package schema defines the typed form definition served by the registration
// backend: ordered sections of fields drawn from a closed set of fourteen
// input types, plus the payment flags the submission flow depends on.
//
// Schemas are decoded from JSON (the backend's flat {_id, formName, fields}
// layout is accepted alongside the sectioned one) or from YAML fixtures, and
// are treated as immutable snapshots. Session-scoped additions such as options
// typed through a select's "Other" entry are recorded in an Overlay and merged
// at render time with Overlay.Apply, leaving the base schema untouched.
package schema
