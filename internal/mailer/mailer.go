package mailer

import (
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

type Config struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// SendFunc matches smtp.SendMail and is swapped out in tests.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Mailer struct {
	cfg  Config
	send SendFunc
	log  *zerolog.Logger
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail, log: log}
}

func (m *Mailer) WithSender(send SendFunc) *Mailer {
	m.send = send
	return m
}

// Confirmation is what a registration confirmation mail says.
type Confirmation struct {
	Recipient  string
	Name       string
	RollNo     string
	EventTitle string
}

func (c Confirmation) subject() string {
	return headerValue(fmt.Sprintf("Registration received: %s", c.EventTitle))
}

// headerValue folds line breaks and runs of whitespace into single spaces
// and encodes anything that is not plain ASCII.
func headerValue(s string) string {
	return mime.QEncoding.Encode("utf-8", strings.Join(strings.Fields(s), " "))
}

func (c Confirmation) body() string {
	var b strings.Builder
	name := c.Name
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hello %s,\n\n", name)
	fmt.Fprintf(&b, "Your registration for %q has been received.\n", c.EventTitle)
	if c.RollNo != "" {
		fmt.Fprintf(&b, "Roll number: %s\n", c.RollNo)
	}
	b.WriteString("\nSee you there!\n")
	return b.String()
}

func (m *Mailer) SendRegistrationEmail(c Confirmation) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.cfg.From, headerValue(c.Recipient), c.subject(), c.body(),
	)

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := m.send(addr, auth, m.cfg.From, []string{c.Recipient}, []byte(msg)); err != nil {
		m.log.Warn().Err(err).Str("email", c.Recipient).Msg("failed to send registration email")
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().Str("email", c.Recipient).Str("event", c.EventTitle).Msg("registration email sent")
	return nil
}
