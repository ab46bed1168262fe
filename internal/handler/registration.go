package handler

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/wishday/wishday/internal/metrics"
	"github.com/wishday/wishday/internal/middleware"
	"github.com/wishday/wishday/internal/model"
)

// Response bodies of POST /send.
const (
	MsgRegistered  = "User registration successful!"
	MsgSaveFailure = "Server error: Unable to save user"
)

const maxMultipartMemory = 1 << 20

//go:embed templates/*.html
var templateFS embed.FS

//go:embed public
var publicFS embed.FS

var contactTemplate = template.Must(template.ParseFS(templateFS, "templates/contact.html"))

// UserCreator persists a new user.
type UserCreator interface {
	CreateUser(ctx context.Context, user *model.User) error
}

// RegistrationHandler serves the sign-up page and accepts submissions.
type RegistrationHandler struct {
	store   UserCreator
	logger  *slog.Logger
	metrics metrics.Recorder
	clock   func() time.Time
	title   string
}

// NewRegistrationHandler creates a RegistrationHandler.
func NewRegistrationHandler(store UserCreator, logger *slog.Logger, recorder metrics.Recorder) *RegistrationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &RegistrationHandler{
		store:   store,
		logger:  logger.With("component", "handler.registration"),
		metrics: recorder,
		clock:   time.Now,
		title:   "Birthday Wishes",
	}
}

type pageData struct {
	Title string
}

// Page renders the registration form.
// GET /
func (h *RegistrationHandler) Page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := contactTemplate.Execute(w, pageData{Title: h.title}); err != nil {
		h.logger.Error("failed to render page", "error", err)
	}
}

// Send stores a registration.
// Any failure, validation included, is reported as a plaintext 500.
// POST /send
func (h *RegistrationHandler) Send(w http.ResponseWriter, r *http.Request) {
	input := h.decode(r)

	user, err := model.NewUser(input, h.clock())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		h.fail(w, r, err)
		return
	}

	h.metrics.IncRegistration("success")
	h.logger.Info("user registered",
		"user_id", user.ID,
		"request_id", middleware.GetRequestID(r.Context()),
	)
	writeText(w, http.StatusOK, MsgRegistered)
}

func (h *RegistrationHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.metrics.IncRegistration("failed")
	h.logger.Error("failed to save user",
		"error", err,
		"request_id", middleware.GetRequestID(r.Context()),
	)
	writeText(w, http.StatusInternalServerError, MsgSaveFailure)
}

// decode reads the submission in whichever encoding the client used.
// Undecodable bodies yield empty fields.
func (h *RegistrationHandler) decode(r *http.Request) model.RegistrationInput {
	var input model.RegistrationInput

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil && err != io.EOF {
			h.logger.Warn("invalid JSON body", "error", err)
			return model.RegistrationInput{}
		}
		return input
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			h.logger.Warn("invalid multipart body", "error", err)
			return input
		}
	default:
		if err := r.ParseForm(); err != nil {
			h.logger.Warn("invalid form body", "error", err)
			return input
		}
	}

	input.Username = r.PostFormValue("username")
	input.Email = r.PostFormValue("email")
	input.DOB = r.PostFormValue("dob")
	return input
}

// Static serves the embedded assets. Mount it under /public/.
func Static() http.Handler {
	sub, err := fs.Sub(publicFS, "public")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/public/", http.FileServer(http.FS(sub)))
}
