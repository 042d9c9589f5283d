package dto

import (
	"net/http"
	"time"

	"eventreg/internal/model"

	"github.com/wb-go/wbf/ginext"
)

const (
	FieldIncorrect     = "FIELD_INCORRECT"
	ValidationFailed   = "VALIDATION_FAILED"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	EventNotFound      = "EVENT_NOT_FOUND"
	RegistrationClosed = "REGISTRATION_CLOSED"
	RegistrationFailed = "REGISTRATION_FAILED"
	SubmitInFlight     = "SUBMIT_IN_FLIGHT"
	LoginFailed        = "LOGIN_FAILED"
)

// RegisterRequest is the JSON form of a registration. Schema fields go in
// Fields, keyed by their schema name.
type RegisterRequest struct {
	model.FixedFields
	Fields map[string]string `json:"fields"`
}

type LoginRequest struct {
	Email    string `json:"email" form:"email" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

type RegistrationResponse struct {
	EventID     string    `json:"eventId"`
	Title       string    `json:"title"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type SessionResponse struct {
	Authenticated bool       `json:"isAuthenticated"`
	User          model.User `json:"user,omitempty"`
}

// RegistrationNotice is published after a logged in user registers; the
// notification worker turns it into a confirmation email.
type RegistrationNotice struct {
	EventID     string    `json:"event_id"`
	EventTitle  string    `json:"event_title"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	RollNo      string    `json:"roll_no"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func ErrorResponse(c *ginext.Context, status int, code, desc string) {
	c.JSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	ErrorResponse(c, http.StatusBadRequest, code, desc)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func FieldIncorrectError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldIncorrect, "Field '"+fieldName+"' is incorrect")
}

func ValidationError(c *ginext.Context, desc string) {
	ErrorResponse(c, http.StatusUnprocessableEntity, ValidationFailed, desc)
}

func EventNotFoundError(c *ginext.Context) {
	ErrorResponse(c, http.StatusNotFound, EventNotFound, "Event not found")
}

func RegistrationClosedError(c *ginext.Context, title string) {
	ErrorResponse(c, http.StatusConflict, RegistrationClosed, `The registration deadline for "`+title+`" has passed.`)
}

func RegistrationFailedError(c *ginext.Context, desc string) {
	ErrorResponse(c, http.StatusBadGateway, RegistrationFailed, desc)
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}
