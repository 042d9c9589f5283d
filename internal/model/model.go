package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type FieldKind int

const (
	KindText FieldKind = iota
	KindTextarea
	KindSelect
	KindTel
	KindEmail
	KindNumber
	KindDate
	KindURL
)

var kindNames = map[FieldKind]string{
	KindText:     "text",
	KindTextarea: "textarea",
	KindSelect:   "select",
	KindTel:      "tel",
	KindEmail:    "email",
	KindNumber:   "number",
	KindDate:     "date",
	KindURL:      "url",
}

// ParseFieldKind maps the API's type string onto a kind. Anything unknown,
// including the empty string, is rendered as a plain text input.
func ParseFieldKind(s string) FieldKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "textarea":
		return KindTextarea
	case "select":
		return KindSelect
	case "tel":
		return KindTel
	case "email":
		return KindEmail
	case "number":
		return KindNumber
	case "date":
		return KindDate
	case "url":
		return KindURL
	default:
		return KindText
	}
}

func (k FieldKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "text"
}

func (k FieldKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *FieldKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("field type: %w", err)
	}
	*k = ParseFieldKind(s)
	return nil
}

type FieldSchema struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Type        FieldKind `json:"type"`
	Required    bool      `json:"required"`
	Validation  string    `json:"validation,omitempty"`
	Options     []string  `json:"options,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Description string    `json:"description,omitempty"`
}

// DisplayLabel is used in user-facing messages.
func (f FieldSchema) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

func (f FieldSchema) PlaceholderText() string {
	if f.Placeholder != "" {
		return f.Placeholder
	}
	return "Enter " + f.DisplayLabel()
}

type Event struct {
	ID                 string        `json:"_id"`
	Title              string        `json:"title"`
	Date               string        `json:"date"`
	Time               string        `json:"time,omitempty"`
	Description        string        `json:"description,omitempty"`
	UseCustomForm      bool          `json:"useCustomForm"`
	GoogleFormLink     string        `json:"googleFormLink,omitempty"`
	RegistrationFields []FieldSchema `json:"registrationFields,omitempty"`
	ResultLink         string        `json:"resultLink,omitempty"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// When parses the event date. ok is false when the date is missing or in a
// format the API is not known to produce.
func (e Event) When() (t time.Time, ok bool) {
	s := strings.TrimSpace(e.Date)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DeadlinePassed reports whether registration is closed at now. Events
// without a usable date never close.
func (e Event) DeadlinePassed(now time.Time) bool {
	t, ok := e.When()
	if !ok {
		return false
	}
	return now.After(t)
}

// ValidateSchema checks the invariants the form relies on: unique field
// names and non-empty options for select fields.
func ValidateSchema(fields []FieldSchema) error {
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("registration field #%d has no name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("registration field %q is declared twice", f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Type == KindSelect && len(f.Options) == 0 {
			return fmt.Errorf("select field %q has no options", f.Name)
		}
	}
	return nil
}

// FixedFields are the inputs every registration form carries.
type FixedFields struct {
	Name      string `json:"name" form:"name" validate:"notblank"`
	Gender    string `json:"gender" form:"gender" validate:"required"`
	RollNo    string `json:"rollNo" form:"rollNo" validate:"notblank"`
	ContactNo string `json:"contactNo" form:"contactNo" validate:"notblank,phone"`
}

func (f FixedFields) Map() map[string]string {
	return map[string]string{
		"name":      f.Name,
		"gender":    f.Gender,
		"rollNo":    f.RollNo,
		"contactNo": f.ContactNo,
	}
}

var Genders = []struct{ Value, Label string }{
	{"male", "Male"},
	{"female", "Female"},
	{"other", "Other"},
	{"prefer-not-to-say", "Prefer not to say"},
}

// User is the record returned by the login endpoint. Its shape belongs to
// the API, so it is kept opaque.
type User map[string]any

func (u User) str(key string) string {
	if v, ok := u[key].(string); ok {
		return v
	}
	return ""
}

func (u User) Email() string {
	return u.str("email")
}

func (u User) DisplayName() string {
	if n := u.str("name"); n != "" {
		return n
	}
	return u.Email()
}
