package schema

import "formsentry/pkg/domain"

// Field type keys recognised by the built-in model.
const (
	FieldTypeText        = "text"
	FieldTypeTextarea    = "textarea"
	FieldTypeNumber      = "number"
	FieldTypeDate        = "date"
	FieldTypeSelect      = "select"
	FieldTypeMultiselect = "multiselect"
	FieldTypeCheckbox    = "checkbox"
)

// FieldTypes lists the valid values of fields.type.
var FieldTypes = []string{
	FieldTypeText, FieldTypeTextarea, FieldTypeNumber, FieldTypeDate,
	FieldTypeSelect, FieldTypeMultiselect, FieldTypeCheckbox,
}

// OptionBackedFieldTypes lists the field types that take their values from
// an option set.
var OptionBackedFieldTypes = []string{FieldTypeSelect, FieldTypeMultiselect}

// Logic rule operators and actions recognised by the built-in model.
var (
	LogicOperators = []string{"equals", "not_equals", "contains", "greater_than", "less_than"}
	LogicActions   = []string{"show", "hide", "require"}
)

// Builtin returns the compiled-in model of the five form-definition tables.
func Builtin() *Model {
	m := &Model{Tables: []Table{
		{
			Name: domain.TableForms,
			Columns: []Column{
				{Name: "id", Kind: KindString, Required: true},
				{Name: "slug", Kind: KindString, Required: true},
				{Name: "title", Kind: KindString, Required: true},
				{Name: "description", Kind: KindString},
			},
			Uniques: []Unique{{Columns: []string{"slug"}}},
		},
		{
			Name: domain.TableOptionSets,
			Columns: []Column{
				{Name: "id", Kind: KindString, Required: true},
				{Name: "name", Kind: KindString, Required: true},
				{Name: "form_id", Kind: KindString},
			},
			ForeignKeys: []ForeignKey{{Column: "form_id", Parent: domain.TableForms}},
		},
		{
			Name: domain.TableFields,
			Columns: []Column{
				{Name: "id", Kind: KindString, Required: true},
				{Name: "form_id", Kind: KindString, Required: true},
				{Name: "code", Kind: KindString, Required: true},
				{Name: "label", Kind: KindString, Required: true},
				{Name: "type", Kind: KindString, Required: true},
				{Name: "position", Kind: KindInt, Required: true},
				{Name: "required", Kind: KindBool},
				{Name: "option_set_id", Kind: KindString},
			},
			Uniques: []Unique{{Columns: []string{"form_id", "code"}}},
			ForeignKeys: []ForeignKey{
				{Column: "form_id", Parent: domain.TableForms},
				{Column: "option_set_id", Parent: domain.TableOptionSets},
			},
		},
		{
			Name: domain.TableOptionItems,
			Columns: []Column{
				{Name: "id", Kind: KindString, Required: true},
				{Name: "option_set_id", Kind: KindString, Required: true},
				{Name: "value", Kind: KindString, Required: true},
				{Name: "label", Kind: KindString, Required: true},
				{Name: "position", Kind: KindInt, Required: true},
				{Name: "active", Kind: KindBool},
			},
			Uniques:     []Unique{{Columns: []string{"option_set_id", "value"}}},
			ForeignKeys: []ForeignKey{{Column: "option_set_id", Parent: domain.TableOptionSets}},
		},
		{
			Name: domain.TableLogicRules,
			Columns: []Column{
				{Name: "id", Kind: KindString, Required: true},
				{Name: "form_id", Kind: KindString, Required: true},
				{Name: "field_id", Kind: KindString, Required: true},
				{Name: "operator", Kind: KindString, Required: true},
				{Name: "value", Kind: KindString},
				{Name: "action", Kind: KindString, Required: true},
				{Name: "target_field_id", Kind: KindString, Required: true},
			},
			ForeignKeys: []ForeignKey{
				{Column: "form_id", Parent: domain.TableForms},
				{Column: "field_id", Parent: domain.TableFields},
				{Column: "target_field_id", Parent: domain.TableFields},
			},
		},
	}}
	if err := m.finalize(); err != nil {
		panic(err) // built-in model is statically correct
	}
	return m
}
