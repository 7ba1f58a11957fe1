package intake

import (
	"strings"
	"time"
)

// Attachment is a file accepted into a draft. Name, SizeBytes and MIMEType
// never change after intake; Progress only grows until it reaches 100.
type Attachment struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SizeBytes    int64     `json:"size"`
	MIMEType     string    `json:"type"`
	LastModified int64     `json:"lastModified,omitempty"`
	Progress     float64   `json:"progress"`
	AddedAt      time.Time `json:"added_at"`
}

// Complete reports whether the upload finished.
func (a Attachment) Complete() bool { return a.Progress >= 100 }

// Draft is the mutable working state of one wizard session.
type Draft struct {
	Fields          map[Field]string `json:"fields"`
	SelectedService string           `json:"selected_service,omitempty"`
	CurrentStep     Step             `json:"current_step"`
	Attachments     []Attachment     `json:"attachments"`
	Touched         map[Field]bool   `json:"-"`
	Errors          map[Field]string `json:"-"`
	LastPersistedAt *time.Time       `json:"last_persisted_at,omitempty"`
}

// NewDraft returns an empty draft positioned on the first step.
func NewDraft() *Draft {
	d := &Draft{
		Fields:  make(map[Field]string, len(AllFields)),
		Touched: map[Field]bool{},
		Errors:  map[Field]string{},
	}
	for _, f := range AllFields {
		d.Fields[f] = ""
	}
	return d
}

// Field returns the current value of f.
func (d Draft) Field(f Field) string {
	return d.Fields[f]
}

// worthPersisting reports whether the draft holds enough user input to be
// saved; a draft with no identifying or descriptive text is skipped.
func (d *Draft) worthPersisting() bool {
	for _, f := range []Field{FieldMessage, FieldName, FieldEmail, FieldCompany} {
		if strings.TrimSpace(d.Field(f)) != "" {
			return true
		}
	}
	return false
}

// clone returns a deep copy safe to hand out of the session lock.
func (d *Draft) clone() Draft {
	out := Draft{
		Fields:          make(map[Field]string, len(d.Fields)),
		SelectedService: d.SelectedService,
		CurrentStep:     d.CurrentStep,
		Attachments:     append([]Attachment(nil), d.Attachments...),
		Touched:         make(map[Field]bool, len(d.Touched)),
		Errors:          make(map[Field]string, len(d.Errors)),
	}
	for k, v := range d.Fields {
		out.Fields[k] = v
	}
	for k, v := range d.Touched {
		out.Touched[k] = v
	}
	for k, v := range d.Errors {
		out.Errors[k] = v
	}
	if d.LastPersistedAt != nil {
		t := *d.LastPersistedAt
		out.LastPersistedAt = &t
	}
	return out
}

func (d *Draft) attachmentIndex(id string) int {
	for i := range d.Attachments {
		if d.Attachments[i].ID == id {
			return i
		}
	}
	return -1
}
