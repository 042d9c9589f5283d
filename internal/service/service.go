package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"eventreg/internal/apiclient"
	"eventreg/internal/card"
	"eventreg/internal/dto"
	"eventreg/internal/form"
	"eventreg/internal/model"
	"eventreg/internal/repo"
	"eventreg/internal/session"
	"eventreg/pkg/validator"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"
)

const (
	SessionCookie = "eventreg_sid"
	sessionPrefix = "sess:"
	visitorKey    = "visitor"
	noticeKey     = "notice"
)

// EventAPI is everything the frontend needs from the registration API.
type EventAPI interface {
	session.Authenticator
	form.Registrar
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
}

// Notifier publishes registration notices; rabbit.Client implements it.
type Notifier interface {
	Publish(message []byte, delaySeconds int) error
}

type Service interface {
	Sessions(ctx *ginext.Context)
	ListEvents(ctx *ginext.Context)
	RegisterPage(ctx *ginext.Context)
	Register(ctx *ginext.Context)
	RegisterJSON(ctx *ginext.Context)
	LoginPage(ctx *ginext.Context)
	Login(ctx *ginext.Context)
	Logout(ctx *ginext.Context)
	SessionInfo(ctx *ginext.Context)
	Health(ctx *ginext.Context)
}

type Options struct {
	CookieMaxAge int
	SecureCookie bool
	// Notifier is optional; nil disables registration notices.
	Notifier Notifier
	Now      func() time.Time
}

type service struct {
	api       EventAPI
	store     repo.Store
	submitter *form.Submitter
	notifier  Notifier
	pages     pages
	log       *zerolog.Logger
	opts      Options

	// inFlight holds sid:eventID for every registration being submitted.
	inFlight sync.Map
}

func NewService(api EventAPI, store repo.Store, logger *zerolog.Logger, opts Options) (Service, error) {
	p, err := loadPages()
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &service{
		api:       api,
		store:     store,
		submitter: form.NewSubmitter(api, logger),
		notifier:  opts.Notifier,
		pages:     p,
		log:       logger,
		opts:      opts,
	}, nil
}

type visitor struct {
	id    string
	store repo.Store
	sess  *session.Session
}

// Sessions attaches the visitor's auth session, issuing a session cookie
// on the first visit.
func (s *service) Sessions(ctx *ginext.Context) {
	sid, err := ctx.Cookie(SessionCookie)
	if err != nil || uuid.Validate(sid) != nil {
		sid = uuid.NewString()
		ctx.SetCookie(SessionCookie, sid, s.opts.CookieMaxAge, "/", "", s.opts.SecureCookie, true)
	}
	store := repo.Scoped(s.store, sessionPrefix+sid+":")
	sess, err := session.Load(ctx.Request.Context(), store, s.api, s.log)
	if err != nil {
		s.log.Error().Err(err).Str("sid", sid).Msg("failed to load visitor session")
		dto.InternalServerError(ctx)
		ctx.Abort()
		return
	}
	ctx.Set(visitorKey, &visitor{id: sid, store: store, sess: sess})
	ctx.Next()
}

func (s *service) visitor(ctx *ginext.Context) *visitor {
	if v, ok := ctx.Get(visitorKey); ok {
		if vis, ok := v.(*visitor); ok {
			return vis
		}
	}
	// Routes outside the Sessions middleware get a throwaway session.
	store := repo.NewMemoryStore()
	sess, _ := session.Load(ctx.Request.Context(), store, s.api, s.log)
	return &visitor{store: store, sess: sess}
}

// claim marks a registration by v for eventID as in flight. ok is false
// when one is already running; otherwise release must be called once the
// submission is over.
func (s *service) claim(v *visitor, eventID string) (release func(), ok bool) {
	key := v.id + ":" + eventID
	if _, busy := s.inFlight.LoadOrStore(key, struct{}{}); busy {
		return nil, false
	}
	return func() { s.inFlight.Delete(key) }, true
}

func (s *service) flash(ctx context.Context, v *visitor, n Notice) {
	raw, err := json.Marshal(n)
	if err != nil {
		return
	}
	if err := v.store.Set(ctx, noticeKey, string(raw)); err != nil {
		s.log.Warn().Err(err).Msg("failed to store notice")
	}
}

func (s *service) popNotice(ctx context.Context, v *visitor) *Notice {
	raw, err := v.store.Get(ctx, noticeKey)
	if err != nil {
		return nil
	}
	_ = v.store.Remove(ctx, noticeKey)
	var n Notice
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return nil
	}
	return &n
}

func (s *service) render(ctx *ginext.Context, v *visitor, status int, page, title string, notice *Notice, data any) {
	if notice == nil {
		notice = s.popNotice(ctx.Request.Context(), v)
	}
	err := s.pages.render(ctx, status, page, pageData{
		Title:  title,
		User:   v.sess.User(),
		Notice: notice,
		Data:   data,
	})
	if err != nil {
		s.log.Error().Err(err).Str("page", page).Msg("failed to render page")
		ctx.String(http.StatusInternalServerError, dto.InternalError)
	}
}

func (s *service) redirect(ctx *ginext.Context, v *visitor, to string, n Notice) {
	s.flash(ctx.Request.Context(), v, n)
	ctx.Redirect(http.StatusSeeOther, to)
}

type eventsView struct {
	Upcoming []card.Card
	Past     []card.Card
}

func (s *service) ListEvents(ctx *ginext.Context) {
	v := s.visitor(ctx)
	events, err := s.api.ListEvents(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list events")
		s.render(ctx, v, http.StatusBadGateway, pageEvents, "Events", &Notice{Kind: NoticeError, Text: "Failed to load events"}, eventsView{})
		return
	}
	upcoming, past := card.Split(events, s.opts.Now())
	s.render(ctx, v, http.StatusOK, pageEvents, "Events", nil, eventsView{Upcoming: upcoming, Past: past})
}

// fetchEvent loads the event named in the path and checks its schema.
func (s *service) fetchEvent(ctx *ginext.Context) (*model.Event, error) {
	id := ctx.Param("id")
	event, err := s.api.GetEvent(ctx.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if err := model.ValidateSchema(event.RegistrationFields); err != nil {
		return nil, fmt.Errorf("event %s: %w", id, err)
	}
	return event, nil
}

// loadEvent is fetchEvent for pages: on failure the visitor is sent back
// to the listing with a notice and nil is returned.
func (s *service) loadEvent(ctx *ginext.Context, v *visitor) *model.Event {
	event, err := s.fetchEvent(ctx)
	if err == nil {
		return event
	}
	if errors.Is(err, apiclient.ErrNotFound) {
		s.redirect(ctx, v, "/events", Notice{Kind: NoticeError, Text: "Event not found"})
		return nil
	}
	s.log.Error().Err(err).Str("event_id", ctx.Param("id")).Msg("failed to load event")
	s.redirect(ctx, v, "/events", Notice{Kind: NoticeError, Text: "Failed to load event"})
	return nil
}

type registerView struct {
	Event      *model.Event
	Fixed      model.FixedFields
	Genders    any
	Inputs     []form.Input
	Submitting bool
}

func newRegisterView(f *form.Form) registerView {
	return registerView{
		Event:      f.Event,
		Fixed:      f.Fixed,
		Genders:    model.Genders,
		Inputs:     f.Inputs(),
		Submitting: f.Submitting(),
	}
}

func (s *service) RegisterPage(ctx *ginext.Context) {
	v := s.visitor(ctx)
	event := s.loadEvent(ctx, v)
	if event == nil {
		return
	}
	if event.DeadlinePassed(s.opts.Now()) {
		s.render(ctx, v, http.StatusOK, pageClosed, "Registration Closed", nil, event)
		return
	}
	f := form.New(event, s.submitter)
	s.render(ctx, v, http.StatusOK, pageRegister, "Register: "+event.Title, nil, newRegisterView(f))
}

func (s *service) Register(ctx *ginext.Context) {
	v := s.visitor(ctx)
	event := s.loadEvent(ctx, v)
	if event == nil {
		return
	}
	if event.DeadlinePassed(s.opts.Now()) {
		s.render(ctx, v, http.StatusConflict, pageClosed, "Registration Closed", nil, event)
		return
	}

	f := form.New(event, s.submitter)
	f.Bind(ctx.GetPostForm)

	release, ok := s.claim(v, event.ID)
	if !ok {
		view := newRegisterView(f)
		view.Submitting = true
		s.render(ctx, v, http.StatusConflict, pageRegister, "Register: "+event.Title,
			&Notice{Kind: NoticeError, Text: "Your registration is already being submitted"}, view)
		return
	}
	err := f.Submit(ctx.Request.Context())
	release()
	if err == nil {
		s.announce(ctx.Request.Context(), v, f)
		s.redirect(ctx, v, "/events", Notice{Kind: NoticeSuccess, Text: "Registration successful!"})
		return
	}

	var vErr *form.ValidationError
	var sErr *form.SubmitError
	switch {
	case errors.As(err, &vErr):
		s.render(ctx, v, http.StatusUnprocessableEntity, pageRegister, "Register: "+event.Title,
			&Notice{Kind: NoticeError, Text: vErr.Message}, newRegisterView(f))
	case errors.As(err, &sErr):
		s.render(ctx, v, http.StatusBadGateway, pageRegister, "Register: "+event.Title,
			&Notice{Kind: NoticeError, Text: sErr.Message}, newRegisterView(f))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.log.Debug().Str("event_id", event.ID).Msg("visitor left before registration finished")
	default:
		s.log.Error().Err(err).Str("event_id", event.ID).Msg("unexpected registration failure")
		s.render(ctx, v, http.StatusInternalServerError, pageRegister, "Register: "+event.Title,
			&Notice{Kind: NoticeError, Text: dto.InternalError}, newRegisterView(f))
	}
}

func (s *service) RegisterJSON(ctx *ginext.Context) {
	v := s.visitor(ctx)
	var req dto.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	event, err := s.fetchEvent(ctx)
	if err != nil {
		if errors.Is(err, apiclient.ErrNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("event_id", ctx.Param("id")).Msg("failed to load event")
		dto.InternalServerError(ctx)
		return
	}
	if event.DeadlinePassed(s.opts.Now()) {
		dto.RegistrationClosedError(ctx, event.Title)
		return
	}

	f := form.New(event, s.submitter)
	f.Fixed = req.FixedFields
	declared := make(map[string]bool, len(event.RegistrationFields))
	for _, field := range event.RegistrationFields {
		declared[field.Name] = true
	}
	for name, value := range req.Fields {
		if !declared[name] {
			dto.FieldIncorrectError(ctx, "fields."+name)
			return
		}
		f.SetDynamic(name, value)
	}

	release, ok := s.claim(v, event.ID)
	if !ok {
		dto.ErrorResponse(ctx, http.StatusConflict, dto.SubmitInFlight, form.ErrSubmitInFlight.Error())
		return
	}
	err = f.Submit(ctx.Request.Context())
	release()
	var vErr *form.ValidationError
	var sErr *form.SubmitError
	switch {
	case err == nil:
		s.announce(ctx.Request.Context(), v, f)
		dto.SuccessCreatedResponse(ctx, dto.RegistrationResponse{
			EventID:     event.ID,
			Title:       event.Title,
			SubmittedAt: s.opts.Now(),
		})
	case errors.As(err, &vErr):
		dto.ValidationError(ctx, vErr.Message)
	case errors.As(err, &sErr):
		dto.RegistrationFailedError(ctx, sErr.Message)
	default:
		s.log.Error().Err(err).Str("event_id", event.ID).Msg("unexpected registration failure")
		dto.InternalServerError(ctx)
	}
}

// announce publishes a notice for logged in users so the worker can mail
// them a confirmation. Failures only get logged; the registration stands.
func (s *service) announce(ctx context.Context, v *visitor, f *form.Form) {
	if s.notifier == nil || !v.sess.IsAuthenticated() {
		return
	}
	email := v.sess.User().Email()
	if email == "" {
		return
	}
	payload, err := json.Marshal(dto.RegistrationNotice{
		EventID:     f.Event.ID,
		EventTitle:  f.Event.Title,
		Email:       email,
		Name:        f.Fixed.Name,
		RollNo:      f.Fixed.RollNo,
		SubmittedAt: s.opts.Now(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal registration notice")
		return
	}
	if err := s.notifier.Publish(payload, 0); err != nil {
		s.log.Error().Err(err).Str("event_id", f.Event.ID).Msg("failed to publish registration notice")
	}
}

type loginView struct {
	Email string
}

func (s *service) LoginPage(ctx *ginext.Context) {
	v := s.visitor(ctx)
	if v.sess.IsAuthenticated() {
		ctx.Redirect(http.StatusSeeOther, "/events")
		return
	}
	s.render(ctx, v, http.StatusOK, pageLogin, "Log in", nil, loginView{})
}

func (s *service) Login(ctx *ginext.Context) {
	v := s.visitor(ctx)
	var req dto.LoginRequest
	if err := ctx.ShouldBind(&req); err != nil {
		s.render(ctx, v, http.StatusBadRequest, pageLogin, "Log in",
			&Notice{Kind: NoticeError, Text: "Invalid login request"}, loginView{})
		return
	}
	if err := validator.Validate(ctx, req); err != nil {
		s.render(ctx, v, http.StatusBadRequest, pageLogin, "Log in",
			&Notice{Kind: NoticeError, Text: "Email and password are required"}, loginView{Email: req.Email})
		return
	}

	user, err := v.sess.Login(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		var lErr *session.LoginError
		msg := "Login failed. Please try again."
		if errors.As(err, &lErr) {
			msg = lErr.Message
		}
		s.render(ctx, v, http.StatusUnauthorized, pageLogin, "Log in",
			&Notice{Kind: NoticeError, Text: msg}, loginView{Email: req.Email})
		return
	}
	s.redirect(ctx, v, "/events", Notice{Kind: NoticeSuccess, Text: "Welcome back, " + user.DisplayName() + "!"})
}

func (s *service) Logout(ctx *ginext.Context) {
	v := s.visitor(ctx)
	if err := v.sess.Logout(ctx.Request.Context()); err != nil {
		s.log.Error().Err(err).Str("sid", v.id).Msg("failed to clear session")
	}
	s.redirect(ctx, v, "/events", Notice{Kind: NoticeSuccess, Text: "You have been logged out"})
}

func (s *service) SessionInfo(ctx *ginext.Context) {
	v := s.visitor(ctx)
	dto.SuccessResponse(ctx, dto.SessionResponse{
		Authenticated: v.sess.IsAuthenticated(),
		User:          v.sess.User(),
	})
}

func (s *service) Health(ctx *ginext.Context) {
	dto.SuccessResponse(ctx, map[string]string{"service": "eventreg"})
}
