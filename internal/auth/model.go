package auth

// Envelope statuses carried on every response.
const (
	StatusSuccess      = "SUCCESS"
	StatusFailure      = "FAILURE"
	StatusUnauthorized = "UNAUTHORIZED"
)

// Envelope is the JSON shape of every auth response.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Birth    string `json:"birth"`
	Password string `json:"password"`
	Tel      string `json:"tel"`
}

type duplicateEmailRequest struct {
	Email string `json:"email"`
}
