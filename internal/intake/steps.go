package intake

import "strings"

var stepFields = map[Step][]Field{
	StepService:  nil,
	StepDetails:  {FieldMessage},
	StepContact:  {FieldName, FieldEmail, FieldPhone},
	StepTimeline: {FieldTimeline, FieldBudget},
}

// StepFields lists the fields whose errors become visible when the user
// tries to leave step without completing it.
func StepFields(step Step) []Field {
	return stepFields[step]
}

// ValidateStep reports whether the draft satisfies step. It reads only
// the draft and catalog, so repeated calls without edits agree.
func ValidateStep(step Step, d *Draft, cat *Catalog) bool {
	switch step {
	case StepService:
		return strings.TrimSpace(d.SelectedService) != ""
	case StepDetails:
		return Validate(FieldMessage, d.Field(FieldMessage)).Valid
	case StepContact:
		return Validate(FieldName, d.Field(FieldName)).Valid &&
			Validate(FieldEmail, d.Field(FieldEmail)).Valid &&
			Validate(FieldPhone, d.Field(FieldPhone)).Valid
	case StepTimeline:
		return cat.HasTimeline(d.Field(FieldTimeline)) && cat.HasBudget(d.Field(FieldBudget))
	default:
		return false
	}
}

// ServiceKey is the error key used when no service is selected.
const ServiceKey Field = "service"

// fieldMessage validates one field in the context of the catalog: timeline
// and budget must name a known option.
func fieldMessage(f Field, d *Draft, cat *Catalog) string {
	switch f {
	case FieldTimeline:
		if !cat.HasTimeline(d.Field(f)) {
			return "Please select a timeline"
		}
		return ""
	case FieldBudget:
		if !cat.HasBudget(d.Field(f)) {
			return "Please select a budget range"
		}
		return ""
	}
	return Validate(f, d.Field(f)).Message
}

// stepErrors collects the messages that block step.
func stepErrors(step Step, d *Draft, cat *Catalog) map[Field]string {
	out := map[Field]string{}
	if step == StepService && strings.TrimSpace(d.SelectedService) == "" {
		out[ServiceKey] = "Please select a service"
	}
	for _, f := range StepFields(step) {
		if msg := fieldMessage(f, d, cat); msg != "" {
			out[f] = msg
		}
	}
	return out
}

// furthestReachable returns the highest step not beyond want that can be
// reached with every earlier step valid.
func furthestReachable(want Step, d *Draft, cat *Catalog) Step {
	if want > LastStep {
		want = LastStep
	}
	s := FirstStep
	for s < want && ValidateStep(s, d, cat) {
		s++
	}
	return s
}
