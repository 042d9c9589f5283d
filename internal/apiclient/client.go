// Package apiclient talks to the event registration REST API.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"eventreg/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"resty.dev/v3"
)

var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer. Message is whatever the server put in the
// body's "message" field and may be empty.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

// Message picks the server supplied message out of err, or returns
// fallback when there is none.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

type errorBody struct {
	Message string `json:"message"`
}

type eventEnvelope struct {
	Event *model.Event `json:"event"`
}

type eventsEnvelope struct {
	Events []model.Event `json:"events"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	rc  *resty.Client
	log *zerolog.Logger
}

func New(cfg Config, log *zerolog.Logger) *Client {
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	return &Client{rc: rc, log: log}
}

func (c *Client) Close() error {
	return c.rc.Close()
}

func (c *Client) request(ctx context.Context, eb *errorBody) *resty.Request {
	return c.rc.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString()).
		SetError(eb)
}

func (c *Client) check(res *resty.Response, err error, eb *errorBody, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.IsSuccess() {
		return nil
	}
	apiErr := &APIError{Status: res.StatusCode(), Message: eb.Message}
	c.log.Debug().
		Str("op", op).
		Int("status", apiErr.Status).
		Str("message", apiErr.Message).
		Msg("api returned an error")
	if apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, errors.Join(ErrNotFound, apiErr))
	}
	return fmt.Errorf("%s: %w", op, apiErr)
}

func (c *Client) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var env eventEnvelope
	var eb errorBody
	res, err := c.request(ctx, &eb).
		SetResult(&env).
		Get("/v1/events/" + url.PathEscape(id))
	if err := c.check(res, err, &eb, "get event"); err != nil {
		return nil, err
	}
	if env.Event == nil {
		return nil, fmt.Errorf("get event %s: %w", id, ErrNotFound)
	}
	return env.Event, nil
}

func (c *Client) ListEvents(ctx context.Context) ([]model.Event, error) {
	var env eventsEnvelope
	var eb errorBody
	res, err := c.request(ctx, &eb).
		SetResult(&env).
		Get("/v1/events")
	if err := c.check(res, err, &eb, "list events"); err != nil {
		return nil, err
	}
	return env.Events, nil
}

func (c *Client) RegisterEvent(ctx context.Context, payload map[string]string) error {
	var eb errorBody
	res, err := c.request(ctx, &eb).
		SetBody(payload).
		Post("/v1/registerEvent")
	return c.check(res, err, &eb, "register event")
}

// Login returns the user record. The API either wraps it in "user" or
// returns its fields at the top level.
func (c *Client) Login(ctx context.Context, email, password string) (model.User, error) {
	body := map[string]any{}
	var eb errorBody
	res, err := c.request(ctx, &eb).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&body).
		Post("/v1/login")
	if err := c.check(res, err, &eb, "login"); err != nil {
		return nil, err
	}
	if res.StatusCode() != http.StatusOK || len(body) == 0 {
		return nil, &APIError{Status: res.StatusCode()}
	}
	if u, ok := body["user"].(map[string]any); ok {
		return model.User(u), nil
	}
	return model.User(body), nil
}

func (c *Client) Logout(ctx context.Context) error {
	var eb errorBody
	res, err := c.request(ctx, &eb).Post("/v1/logout")
	return c.check(res, err, &eb, "logout")
}
