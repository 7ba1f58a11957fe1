package intake

import "time"

// SuggestionView is the visible suggestion list of the focused field.
type SuggestionView struct {
	Field Field    `json:"field"`
	Items []string `json:"items"`
}

// View is the render state of a session: only touched fields show errors.
type View struct {
	ID              string            `json:"id"`
	Step            Step              `json:"step"`
	StepName        string            `json:"step_name"`
	CanAdvance      bool              `json:"can_advance"`
	Fields          map[Field]string  `json:"fields"`
	SelectedService string            `json:"selected_service,omitempty"`
	Errors          map[Field]string  `json:"errors"`
	Attachments     []Attachment      `json:"attachments"`
	Suggestions     *SuggestionView   `json:"suggestions,omitempty"`
	Notice          string            `json:"notice,omitempty"`
	State           SubmissionState   `json:"state"`
	Result          *SubmissionResult `json:"result,omitempty"`
	LastPersistedAt *time.Time        `json:"last_persisted_at,omitempty"`
}

// View builds the render state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.draft.clone()
	v := View{
		ID:              s.id,
		Step:            d.CurrentStep,
		StepName:        d.CurrentStep.String(),
		CanAdvance:      ValidateStep(d.CurrentStep, s.draft, s.cfg.Catalog),
		Fields:          d.Fields,
		SelectedService: d.SelectedService,
		Errors:          map[Field]string{},
		Attachments:     d.Attachments,
		State:           s.state,
		LastPersistedAt: d.LastPersistedAt,
	}
	if v.Attachments == nil {
		v.Attachments = []Attachment{}
	}
	for f, msg := range d.Errors {
		if msg != "" && d.Touched[f] {
			v.Errors[f] = msg
		}
	}
	if s.focus != "" && len(s.suggestions) > 0 {
		v.Suggestions = &SuggestionView{Field: s.focus, Items: append([]string(nil), s.suggestions...)}
	}
	if s.notice != "" && s.now().Before(s.noticeUntil) {
		v.Notice = s.notice
	}
	if s.result != nil {
		r := *s.result
		v.Result = &r
	}
	return v
}
