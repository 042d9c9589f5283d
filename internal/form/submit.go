package form

import (
	"context"
	"fmt"
	"maps"

	"eventreg/internal/apiclient"
	"eventreg/internal/model"

	"github.com/rs/zerolog"
)

const registrationFailed = "Registration failed. Please try again."

type Registrar interface {
	RegisterEvent(ctx context.Context, payload map[string]string) error
}

// SubmitError carries the message to show the user.
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string { return e.Message }

func (e *SubmitError) Unwrap() error { return e.Err }

type Submitter struct {
	api Registrar
	log *zerolog.Logger
}

func NewSubmitter(api Registrar, log *zerolog.Logger) *Submitter {
	return &Submitter{api: api, log: log}
}

// BuildPayload merges the fixed fields, the dynamic fields and the event
// id. Dynamic names are assumed not to collide with the fixed ones; if one
// does, the dynamic value wins. The event id always comes from event.
func BuildPayload(event *model.Event, fixed model.FixedFields, dynamic map[string]string) map[string]string {
	payload := make(map[string]string, 5+len(dynamic))
	maps.Copy(payload, fixed.Map())
	maps.Copy(payload, dynamic)
	payload["eventId"] = event.ID
	return payload
}

// Submit sends one registration. It does not validate and never retries.
// If ctx is cancelled while the call is in flight the outcome is dropped
// and the context error returned.
func (s *Submitter) Submit(ctx context.Context, event *model.Event, fixed model.FixedFields, dynamic map[string]string) error {
	payload := BuildPayload(event, fixed, dynamic)
	err := s.api.RegisterEvent(ctx, payload)
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.log.Debug().Str("event_id", event.ID).Msg("registration result discarded, caller went away")
		return ctxErr
	}
	if err != nil {
		s.log.Error().Err(err).Str("event_id", event.ID).Msg("failed to register for event")
		return &SubmitError{
			Message: apiclient.Message(err, registrationFailed),
			Err:     fmt.Errorf("submit registration: %w", err),
		}
	}
	s.log.Info().
		Str("event_id", event.ID).
		Str("roll_no", fixed.RollNo).
		Msg("registration submitted")
	return nil
}
