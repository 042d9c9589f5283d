// Package form holds the registration form: its state, the rules it must
// pass, and the submission of the merged payload.
package form

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"eventreg/internal/model"
)

// ErrSubmitInFlight is returned while an earlier submission of the same
// form has not finished.
var ErrSubmitInFlight = errors.New("registration is already being submitted")

// DynamicPrefix namespaces schema fields in a posted HTML form.
const DynamicPrefix = "f."

type Form struct {
	Event   *model.Event
	Fixed   model.FixedFields
	Dynamic map[string]string

	submitter *Submitter

	mu       sync.Mutex
	inFlight bool
}

func New(event *model.Event, submitter *Submitter) *Form {
	return &Form{
		Event:     event,
		Dynamic:   make(map[string]string),
		submitter: submitter,
	}
}

// Set updates one of the fixed fields by its payload key.
func (f *Form) Set(key, value string) error {
	switch key {
	case "name":
		f.Fixed.Name = value
	case "gender":
		f.Fixed.Gender = value
	case "rollNo":
		f.Fixed.RollNo = value
	case "contactNo":
		f.Fixed.ContactNo = value
	default:
		return fmt.Errorf("unknown fixed field %q", key)
	}
	return nil
}

func (f *Form) SetDynamic(name, value string) {
	f.Dynamic[name] = value
}

// Bind copies posted values into the form. Fixed fields use their payload
// keys, schema fields are read from DynamicPrefix+name. Anything else is
// ignored.
func (f *Form) Bind(get func(key string) (string, bool)) {
	for key := range f.Fixed.Map() {
		if v, ok := get(key); ok {
			_ = f.Set(key, v)
		}
	}
	for _, field := range f.Event.RegistrationFields {
		if v, ok := get(DynamicPrefix + field.Name); ok {
			f.SetDynamic(field.Name, v)
		}
	}
}

func (f *Form) Validate(ctx context.Context) error {
	return Validate(ctx, f.Fixed, f.Dynamic, f.Event.RegistrationFields)
}

// Submitting reports whether a submission is in flight; views use it to
// disable the submit control.
func (f *Form) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Submit validates and, if the form passes, sends it. Only one submission
// runs at a time.
func (f *Form) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return ErrSubmitInFlight
	}
	f.inFlight = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight = false
		f.mu.Unlock()
	}()

	if err := f.Validate(ctx); err != nil {
		return err
	}
	return f.submitter.Submit(ctx, f.Event, f.Fixed, f.Dynamic)
}

// Control is the widget an input renders as.
type Control string

const (
	ControlInput    Control = "input"
	ControlTextarea Control = "textarea"
	ControlSelect   Control = "select"
)

type Input struct {
	Key         string
	Label       string
	Control     Control
	InputType   string
	Required    bool
	Placeholder string
	Description string
	Options     []string
	Value       string
}

// Inputs maps the event schema onto renderable inputs, carrying the
// current values.
func (f *Form) Inputs() []Input {
	inputs := make([]Input, 0, len(f.Event.RegistrationFields))
	for _, field := range f.Event.RegistrationFields {
		in := Input{
			Key:         DynamicPrefix + field.Name,
			Label:       field.DisplayLabel(),
			Required:    field.Required,
			Description: field.Description,
			Value:       f.Dynamic[field.Name],
		}
		switch field.Type {
		case model.KindSelect:
			in.Control = ControlSelect
			in.Options = field.Options
			in.Placeholder = "Select " + field.DisplayLabel()
		case model.KindTextarea:
			in.Control = ControlTextarea
			in.Placeholder = field.PlaceholderText()
		case model.KindText, model.KindTel, model.KindEmail, model.KindNumber, model.KindDate, model.KindURL:
			in.Control = ControlInput
			in.InputType = field.Type.String()
			in.Placeholder = field.PlaceholderText()
		}
		inputs = append(inputs, in)
	}
	return inputs
}
