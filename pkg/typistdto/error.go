package typistdto

// DomainError is the JSON error body of the API.
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "pgn typist error"
}

// Error codes.
const (
	CodeNotFound    = "not_found"
	CodeBadRequest  = "bad_request"
	CodeIllegalMove = "illegal_move"
	CodeUnavailable = "unavailable"
	CodeInternal    = "internal"
)
