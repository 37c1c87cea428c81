package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/getsentry/sentry-go"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const maxJSONBodyBytes = 1 << 20

// AuthorizationCookie is the HTTP-only cookie carrying the bearer token.
const AuthorizationCookie = "Authorization"

type Handler struct {
	service       *Service
	secureCookies bool
}

func NewHandler(service *Service, secureCookies bool) *Handler {
	return &Handler{service: service, secureCookies: secureCookies}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeEnvelope(w, http.StatusBadRequest, Envelope{Status: StatusFailure, Message: "invalid json body"})
		return
	}

	if !emailRegex.MatchString(strings.TrimSpace(strings.ToLower(body.Email))) {
		writeEnvelope(w, http.StatusBadRequest, Envelope{Status: StatusFailure, Message: "email format is invalid"})
		return
	}

	token, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setAuthCookie(w, token)
	w.Header().Set("Authorization", "Bearer "+token)
	writeEnvelope(w, http.StatusOK, Envelope{Status: StatusSuccess, Message: "login successful"})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := TokenFromRequest(r)
	if token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			h.writeError(w, err)
			return
		}
	}

	h.clearAuthCookie(w)
	writeEnvelope(w, http.StatusOK, Envelope{Status: StatusSuccess, Message: "logout successful"})
}

func (h *Handler) ExtendSession(w http.ResponseWriter, r *http.Request) {
	token := TokenFromRequest(r)
	if token == "" {
		writeEnvelope(w, http.StatusUnauthorized, Envelope{Status: StatusUnauthorized, Message: reauthenticateMessage})
		return
	}

	newToken, err := h.service.ExtendSession(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setAuthCookie(w, newToken)
	w.Header().Set("Authorization", "Bearer "+newToken)
	writeEnvelope(w, http.StatusOK, Envelope{Status: StatusSuccess, Message: "session extended"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body signupRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeEnvelope(w, http.StatusBadRequest, Envelope{Status: StatusFailure, Message: "invalid json body"})
		return
	}

	if !emailRegex.MatchString(strings.TrimSpace(strings.ToLower(body.Email))) {
		writeEnvelope(w, http.StatusBadRequest, Envelope{Status: StatusFailure, Message: "email format is invalid"})
		return
	}
	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.Tel) == "" || strings.TrimSpace(body.Birth) == "" {
		writeEnvelope(w, http.StatusBadRequest, Envelope{Status: StatusFailure, Message: "name, birth, and tel are required"})
		return
	}

	err := h.service.Register(r.Context(), RegisterRequest{
		Email:    body.Email,
		Name:     body.Name,
		Birth:    body.Birth,
		Password: body.Password,
		Tel:      body.Tel,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeEnvelope(w, http.StatusOK, Envelope{Status: StatusSuccess, Message: "signup completed"})
}

func (h *Handler) CheckDuplicateEmail(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body duplicateEmailRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeEnvelope(w, http.StatusBadRequest, Envelope{Status: StatusFailure, Message: "invalid json body"})
		return
	}

	if !emailRegex.MatchString(strings.TrimSpace(strings.ToLower(body.Email))) {
		writeEnvelope(w, http.StatusBadRequest, Envelope{Status: StatusFailure, Message: "email format is invalid"})
		return
	}

	if err := h.service.CheckDuplicateEmail(r.Context(), body.Email); err != nil {
		h.writeError(w, err)
		return
	}

	writeEnvelope(w, http.StatusOK, Envelope{Status: StatusSuccess, Message: "email is available"})
}

const reauthenticateMessage = "session is invalid or expired, please log in again"

// writeError maps engine errors onto the response envelope. Token failures
// collapse into one generic message; the distinct reasons stay internal.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var policyErr *PolicyViolation
	switch {
	case errors.As(err, &policyErr):
		writeEnvelope(w, http.StatusBadRequest, Envelope{Status: StatusFailure, Message: policyErr.Message})
	case errors.Is(err, ErrEmailTaken):
		writeEnvelope(w, http.StatusConflict, Envelope{Status: StatusFailure, Message: "this email is already registered"})
	case errors.Is(err, ErrTelTaken):
		writeEnvelope(w, http.StatusConflict, Envelope{Status: StatusFailure, Message: "an account already exists for this phone number, please log in"})
	case errors.Is(err, ErrInvalidCredentials):
		writeEnvelope(w, http.StatusUnauthorized, Envelope{Status: StatusUnauthorized, Message: "email or password is incorrect, please try again"})
	case errors.Is(err, ErrAccountLocked):
		writeEnvelope(w, http.StatusForbidden, Envelope{Status: StatusFailure, Message: "account is locked after repeated failures, please wait 10 minutes and try again"})
	case errors.Is(err, ErrInvalidToken):
		writeEnvelope(w, http.StatusUnauthorized, Envelope{Status: StatusUnauthorized, Message: reauthenticateMessage})
	default:
		sentry.CaptureException(err)
		writeEnvelope(w, http.StatusInternalServerError, Envelope{Status: StatusFailure, Message: "internal server error, please contact the administrator"})
	}
}

func (h *Handler) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthorizationCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   h.service.TokenTTLSeconds(),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthorizationCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest extracts the bearer token from the Authorization cookie
// or, failing that, the Authorization header.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AuthorizationCookie); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}

	return ""
}

func writeEnvelope(w http.ResponseWriter, status int, envelope Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope)
}
