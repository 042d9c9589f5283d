package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"eventreg/internal/api/api"
	"eventreg/internal/apiclient"
	"eventreg/internal/dto"
	"eventreg/internal/model"
	"eventreg/internal/repo"
	"eventreg/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu        sync.Mutex
	events    map[string]model.Event
	payloads  []map[string]string
	regErr    error
	logoutErr error

	// entered and block, when set, hold RegisterEvent open until block is
	// closed.
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeAPI) GetEvent(_ context.Context, id string) (*model.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, apiclient.ErrNotFound
	}
	return &e, nil
}

func (f *fakeAPI) ListEvents(context.Context) ([]model.Event, error) {
	out := make([]model.Event, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeAPI) RegisterEvent(_ context.Context, payload map[string]string) error {
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	err := f.regErr
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return err
}

func (f *fakeAPI) registered() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.payloads...)
}

func (f *fakeAPI) Login(_ context.Context, email, password string) (model.User, error) {
	if password != "secret" {
		return nil, &apiclient.APIError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	}
	return model.User{"email": email, "name": "Asha"}, nil
}

func (f *fakeAPI) Logout(context.Context) error { return f.logoutErr }

type fakeNotifier struct {
	mu       sync.Mutex
	messages [][]byte
}

func (n *fakeNotifier) Publish(message []byte, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func newAPI() *fakeAPI {
	return &fakeAPI{events: map[string]model.Event{
		"open": {
			ID: "open", Title: "Hack Night", Date: "2025-07-01", UseCustomForm: true,
			RegistrationFields: []model.FieldSchema{
				{Name: "college", Label: "College", Required: true},
				{Name: "year", Label: "Year", Type: model.KindSelect, Options: []string{"1", "2"}},
			},
		},
		"done": {ID: "done", Title: "Spring Quiz", Date: "2025-03-01", ResultLink: "https://results.example/quiz"},
		"broken": {
			ID: "broken", Title: "Broken", Date: "2025-07-01",
			RegistrationFields: []model.FieldSchema{{Name: "x"}, {Name: "x"}},
		},
	}}
}

type harness struct {
	t       *testing.T
	handler http.Handler
	api     *fakeAPI
	notify  *fakeNotifier
	cookie  *http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := zerolog.Nop()
	fa := newAPI()
	fn := &fakeNotifier{}
	svc, err := service.NewService(fa, repo.NewMemoryStore(), &l, service.Options{
		CookieMaxAge: 3600,
		Notifier:     fn,
		Now:          func() time.Time { return now },
	})
	require.NoError(t, err)
	return &harness{
		t:       t,
		handler: api.NewRouters(&api.Routers{Service: svc, Mode: "test"}),
		api:     fa,
		notify:  fn,
	}
}

func (h *harness) do(method, path, contentType, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == service.SessionCookie {
			h.cookie = c
		}
	}
	return rec
}

func (h *harness) postForm(path string, values url.Values) *httptest.ResponseRecorder {
	return h.do(http.MethodPost, path, "application/x-www-form-urlencoded", values.Encode())
}

func validForm() url.Values {
	return url.Values{
		"name":      {"Asha Rao"},
		"gender":    {"female"},
		"rollNo":    {"21CS042"},
		"contactNo": {"9876543210"},
		"f.college": {"IIT"},
	}
}

func TestEventsPage_ListsUpcomingAndPast(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/events", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "Hack Night")
	require.Contains(t, body, "/events/open/register")
	require.Contains(t, body, "Past Event")
	require.Contains(t, body, "https://results.example/quiz")
	require.NotNil(t, h.cookie, "first visit issues a session cookie")
}

func TestRegisterPage_RendersSchemaInputs(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/events/open/register", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "Register: Hack Night")
	require.Contains(t, body, `name="f.college"`)
	require.Contains(t, body, `<select name="f.year"`)
	require.Contains(t, body, "Select Year")
}

func TestRegisterPage_PastEventIsClosed(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/events/done/register", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "Registration Closed")
	require.Contains(t, body, "Spring Quiz")
	require.NotContains(t, body, `name="rollNo"`)

	rec = h.postForm("/events/done/register", validForm())
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Empty(t, h.api.payloads)
}

func TestRegisterPage_MissingEventRedirectsWithNotice(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/events/nope/register", "", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/events", rec.Header().Get("Location"))

	rec = h.do(http.MethodGet, "/events", "", "")
	require.Contains(t, rec.Body.String(), "Event not found")

	rec = h.do(http.MethodGet, "/events", "", "")
	require.NotContains(t, rec.Body.String(), "Event not found", "notices are shown once")
}

func TestRegisterPage_MalformedSchemaFailsToLoad(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/events/broken/register", "", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = h.do(http.MethodGet, "/events", "", "")
	require.Contains(t, rec.Body.String(), "Failed to load event")
}

func TestRegister_ValidationErrorRerendersForm(t *testing.T) {
	h := newHarness(t)
	form := validForm()
	form.Del("gender")

	rec := h.postForm("/events/open/register", form)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "Gender is required")
	require.Contains(t, body, `value="Asha Rao"`, "entered values are kept")
	require.Empty(t, h.api.payloads)
}

func TestRegister_SuccessSendsPayloadAndRedirects(t *testing.T) {
	h := newHarness(t)
	form := validForm()
	form.Set("f.year", "2")

	rec := h.postForm("/events/open/register", form)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, h.api.payloads, 1)
	require.Equal(t, map[string]string{
		"eventId":   "open",
		"name":      "Asha Rao",
		"gender":    "female",
		"rollNo":    "21CS042",
		"contactNo": "9876543210",
		"college":   "IIT",
		"year":      "2",
	}, h.api.payloads[0])
	require.Empty(t, h.notify.messages, "anonymous registrations are not announced")

	rec = h.do(http.MethodGet, "/events", "", "")
	require.Contains(t, rec.Body.String(), "Registration successful!")
}

func TestRegister_ServerFailureShowsServerMessage(t *testing.T) {
	h := newHarness(t)
	h.api.regErr = &apiclient.APIError{Status: http.StatusConflict, Message: "Already registered"}

	rec := h.postForm("/events/open/register", validForm())
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "Already registered")
}

func TestRegisterJSON(t *testing.T) {
	h := newHarness(t)

	body := `{"name":"Asha","gender":"female","rollNo":"7","contactNo":"1234567890","fields":{"college":"IIT"}}`
	rec := h.do(http.MethodPost, "/api/v1/events/open/register", "application/json", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, dto.ValidationFailed, resp.Error.Code)
	require.Equal(t, "Please enter a valid 10-digit phone number", resp.Error.Desc)

	body = strings.Replace(body, "1234567890", "9876543210", 1)
	rec = h.do(http.MethodPost, "/api/v1/events/open/register", "application/json", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, h.api.payloads, 1)

	rec = h.do(http.MethodPost, "/api/v1/events/nope/register", "application/json", body)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/events/done/register", "application/json", body)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/events/open/register", "application/json", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func sessionInfo(t *testing.T, h *harness) dto.SessionResponse {
	t.Helper()
	rec := h.do(http.MethodGet, "/api/v1/session", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data dto.SessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data
}

func TestLoginLogoutFlow(t *testing.T) {
	h := newHarness(t)

	require.False(t, sessionInfo(t, h).Authenticated)

	rec := h.postForm("/login", url.Values{"email": {"a@b.com"}, "password": {"wrong"}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "Invalid credentials")

	rec = h.postForm("/login", url.Values{"email": {"a@b.com"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.postForm("/login", url.Values{"email": {"a@b.com"}, "password": {"secret"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	info := sessionInfo(t, h)
	require.True(t, info.Authenticated)
	require.Equal(t, "a@b.com", info.User.Email())

	rec = h.do(http.MethodGet, "/login", "", "")
	require.Equal(t, http.StatusSeeOther, rec.Code, "logged in users skip the login page")

	// A registration by a logged in user is announced for the mailer.
	rec = h.postForm("/events/open/register", validForm())
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, h.notify.messages, 1)
	var notice dto.RegistrationNotice
	require.NoError(t, json.Unmarshal(h.notify.messages[0], &notice))
	require.Equal(t, "a@b.com", notice.Email)
	require.Equal(t, "Hack Night", notice.EventTitle)

	h.api.logoutErr = errors.New("api down")
	rec = h.do(http.MethodPost, "/logout", "", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.False(t, sessionInfo(t, h).Authenticated)
}

func TestSessionsAreIsolatedPerVisitor(t *testing.T) {
	h := newHarness(t)
	rec := h.postForm("/login", url.Values{"email": {"a@b.com"}, "password": {"secret"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.True(t, sessionInfo(t, h).Authenticated)

	other := &harness{t: t, handler: h.handler, api: h.api, notify: h.notify}
	require.False(t, sessionInfo(t, other).Authenticated)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("X-Request-ID"), "-")
}

func TestRegisterJSON_OnlyDeclaredFieldsAreSent(t *testing.T) {
	h := newHarness(t)

	body := `{"name":"Asha","gender":"female","rollNo":"7","contactNo":"9876543210",` +
		`"fields":{"college":"IIT","eventId":"done","extra":"1"}}`
	rec := h.do(http.MethodPost, "/api/v1/events/open/register", "application/json", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, dto.FieldIncorrect, resp.Error.Code)
	require.Empty(t, h.api.registered())

	body = `{"name":"Asha","gender":"female","rollNo":"7","contactNo":"9876543210","fields":{"college":"IIT","year":"1"}}`
	rec = h.do(http.MethodPost, "/api/v1/events/open/register", "application/json", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	sent := h.api.registered()
	require.Len(t, sent, 1)
	require.Equal(t, "open", sent[0]["eventId"])
	require.Equal(t, "1", sent[0]["year"])
}

func TestRegister_DuplicateSubmitWhileInFlight(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/events", "", "")
	require.NotNil(t, h.cookie)

	h.api.entered = make(chan struct{}, 1)
	h.api.block = make(chan struct{})

	first := make(chan int, 1)
	go func() {
		first <- h.postForm("/events/open/register", validForm()).Code
	}()
	select {
	case <-h.api.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first registration never reached the API")
	}

	rec := h.postForm("/events/open/register", validForm())
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Your registration is already being submitted")
	require.Contains(t, rec.Body.String(), "Registering...")

	body := `{"name":"Asha","gender":"female","rollNo":"7","contactNo":"9876543210","fields":{"college":"IIT"}}`
	rec = h.do(http.MethodPost, "/api/v1/events/open/register", "application/json", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, dto.SubmitInFlight, resp.Error.Code)

	close(h.api.block)
	select {
	case code := <-first:
		require.Equal(t, http.StatusSeeOther, code)
	case <-time.After(2 * time.Second):
		t.Fatal("first registration never finished")
	}
	require.Len(t, h.api.registered(), 1)

	// The guard is released once the first submission is over.
	rec = h.postForm("/events/open/register", validForm())
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, h.api.registered(), 2)
}
