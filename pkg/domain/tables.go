// Package domain defines the value types, changeset contracts, and check
// evaluation primitives shared by the formsentry validation engine.
package domain

// Table identifies one of the form-definition entity tables.
type Table string

// The five entity tables covered by changeset validation.
const (
	// TableForms holds form records.
	TableForms Table = "forms"
	// TableFields holds field records belonging to a form.
	TableFields Table = "fields"
	// TableOptionSets holds named option collections.
	TableOptionSets Table = "option_sets"
	// TableOptionItems holds the individual options of an option set.
	TableOptionItems Table = "option_items"
	// TableLogicRules holds conditional show/hide/require rules.
	TableLogicRules Table = "logic_rules"
)

// Op indicates the kind of changeset operation applied to a row.
type Op string

// Changeset operations mirror the upstream synthesis contract.
const (
	// OpInsert creates a new row.
	OpInsert Op = "insert"
	// OpUpdate mutates columns of an existing row.
	OpUpdate Op = "update"
	// OpDelete removes an existing row.
	OpDelete Op = "delete"
)

// Severity classifies a violation's effect on the verdict.
type Severity string

const (
	// SeverityFatal blocks the changeset from being committed.
	SeverityFatal Severity = "fatal"
	// SeverityWarning surfaces an advisory without blocking commit.
	SeverityWarning Severity = "warning"
)

// CheckKind tags a violation with the check family that produced it.
type CheckKind string

// Check families, in the order the validator runs them.
const (
	CheckStructural  CheckKind = "structural"
	CheckReferential CheckKind = "referential"
	CheckBusiness    CheckKind = "business"
	CheckImpact      CheckKind = "impact"
)
