package apiframework

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/contenox/coffeehouse/libtracker"
)

// Version is the API version reported by the meta endpoints.
const Version = "0.1.0"

func GetVersion() string {
	return Version
}

// AboutServer is the response shape of the server meta endpoint.
type AboutServer struct {
	Version        string `json:"version"`
	NodeInstanceID string `json:"nodeInstanceID"`
	Tenancy        string `json:"tenancy"`
}

// APIError is the structured error returned to API clients in an
// OpenAI-style error envelope.
type APIError struct {
	err       error
	message   string
	param     string
	errorType string
	errorCode string
}

func (e *APIError) Error() string {
	return e.message
}

func (e *APIError) Unwrap() error {
	return e.err
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message   string  `json:"message"`
	Type      string  `json:"type"`
	Param     *string `json:"param"`
	Code      string  `json:"code"`
	RequestID string  `json:"request_id,omitempty"`
}

// Encode writes v as a JSON response with the given status code.
func Encode[T any](w http.ResponseWriter, _ *http.Request, status int, v T) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// Decode reads the request body as JSON into T.
func Decode[T any](r *http.Request) (T, error) {
	var v T
	if r.Body == nil {
		return v, ErrEmptyRequestBody
	}
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return v, ErrEmptyRequestBody
		}
		return v, fmt.Errorf("%w: decode json: %s", ErrUnprocessableEntity, err)
	}
	return v, nil
}

// Error writes err as an OpenAI-style error envelope. The HTTP status is
// derived from the error chain and the operation kind.
func Error(w http.ResponseWriter, r *http.Request, err error, op Operation) error {
	status := mapErrorToStatus(op, err)

	message := err.Error()
	param := ""
	errorType, errorCode := getErrorMapping(err)

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		message = apiErr.message
		param = apiErr.param
		if apiErr.errorType != "" {
			errorType = apiErr.errorType
		}
		if apiErr.errorCode != "" {
			errorCode = apiErr.errorCode
		}
	}
	if errorType == "" {
		errorType, errorCode = getErrorTypeAndCode(status)
	}

	var paramPtr *string
	if param != "" {
		paramPtr = &param
	}
	requestID, _ := r.Context().Value(libtracker.ContextKeyRequestID).(string)

	return Encode(w, r, status, errorEnvelope{Error: errorBody{
		Message:   message,
		Type:      errorType,
		Param:     paramPtr,
		Code:      errorCode,
		RequestID: requestID,
	}})
}

// GetPathParam returns the named path wildcard value. The doc string is
// consumed by the API documentation generator.
func GetPathParam(r *http.Request, name string, _ string) string {
	return r.PathValue(name)
}

// GetQueryParam returns the named query parameter or defaultValue when it
// is absent. The doc string is consumed by the API documentation generator.
func GetQueryParam(r *http.Request, name, defaultValue string, _ string) string {
	if v := r.URL.Query().Get(name); v != "" {
		return v
	}
	return defaultValue
}
