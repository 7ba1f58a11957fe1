// Package intake implements the project request wizard: field and step
// validation, the step state machine, attachment intake, suggestions,
// draft autosave/restore and the submission coordinator.
package intake

import "strings"

// Field names a single input of the intake form.
type Field string

const (
	FieldName          Field = "name"
	FieldEmail         Field = "email"
	FieldPhone         Field = "phone"
	FieldCompany       Field = "company"
	FieldMessage       Field = "message"
	FieldIndustry      Field = "industry"
	FieldContactMethod Field = "contactMethod"
	FieldTimeline      Field = "timeline"
	FieldBudget        Field = "budget"
	FieldEstimatedCost Field = "estimatedCost"
)

// AllFields is the fixed field set of a draft.
var AllFields = []Field{
	FieldName,
	FieldEmail,
	FieldPhone,
	FieldCompany,
	FieldMessage,
	FieldIndustry,
	FieldContactMethod,
	FieldTimeline,
	FieldBudget,
	FieldEstimatedCost,
}

// Known reports whether f belongs to the fixed field set.
func (f Field) Known() bool {
	for _, k := range AllFields {
		if k == f {
			return true
		}
	}
	return false
}

// ParseField resolves a field name, accepting any casing.
func ParseField(s string) (Field, bool) {
	s = strings.TrimSpace(s)
	for _, f := range AllFields {
		if strings.EqualFold(string(f), s) {
			return f, true
		}
	}
	return "", false
}

// Step is a wizard screen index.
type Step int

const (
	StepService Step = iota
	StepDetails
	StepContact
	StepTimeline
)

// FirstStep and LastStep bound the step index.
const (
	FirstStep = StepService
	LastStep  = StepTimeline
)

func (s Step) String() string {
	switch s {
	case StepService:
		return "service"
	case StepDetails:
		return "details"
	case StepContact:
		return "contact"
	case StepTimeline:
		return "timeline"
	default:
		return "unknown"
	}
}

// Valid reports whether s is within the wizard range.
func (s Step) Valid() bool {
	return s >= FirstStep && s <= LastStep
}
