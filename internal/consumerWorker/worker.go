package consumerWorker

import (
	"context"
	"encoding/json"

	"eventreg/internal/dto"
	"eventreg/internal/mailer"

	"github.com/wb-go/wbf/zlog"
)

type Consumer interface {
	Consume(handler func([]byte) error) error
}

type Sender interface {
	SendRegistrationEmail(c mailer.Confirmation) error
}

// Reader turns registration notices into confirmation emails.
type Reader struct {
	RMQ    Consumer
	mail   Sender
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq Consumer, mail Sender) *Reader {
	return &Reader{
		RMQ:  rmq,
		mail: mail,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("registration notice reader started")

	go func() {
		defer close(r.done)

		if err := r.RMQ.Consume(r.handle); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("registration notice reader stopped by context")
	}()
}

// handle acks everything it can make sense of. Malformed notices are
// dropped rather than requeued, and a failed email is not retried.
func (r *Reader) handle(body []byte) error {
	var msg dto.RegistrationNotice
	if err := json.Unmarshal(body, &msg); err != nil {
		zlog.Logger.Error().
			Err(err).
			Msgf("dropping malformed notice: %s", string(body))
		return nil
	}
	if msg.Email == "" {
		zlog.Logger.Warn().Str("event_id", msg.EventID).Msg("notice has no recipient, skipping")
		return nil
	}

	zlog.Logger.Info().
		Str("event_id", msg.EventID).
		Str("email", msg.Email).
		Msg("received registration notice")

	if err := r.mail.SendRegistrationEmail(mailer.Confirmation{
		Recipient:  msg.Email,
		Name:       msg.Name,
		RollNo:     msg.RollNo,
		EventTitle: msg.EventTitle,
	}); err != nil {
		zlog.Logger.Warn().
			Err(err).
			Str("email", msg.Email).
			Msg("failed to send registration confirmation")
	}
	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
