package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(ErrCodeNotFound, "test message", http.StatusNotFound),
			want: "[RES_4001] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(ErrCodeInternal, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[SVC_5001] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, "test", http.StatusInternalServerError, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestServiceError_WithDetails(t *testing.T) {
	err := New(ErrCodeInvalidInput, "test", http.StatusBadRequest)
	err.WithDetails("field", "timeLimit").WithDetails("reason", "negative")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}

	if err.Details["field"] != "timeLimit" {
		t.Errorf("Details[field] = %v, want timeLimit", err.Details["field"])
	}

	if err.Details["reason"] != "negative" {
		t.Errorf("Details[reason] = %v, want negative", err.Details["reason"])
	}
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("timeLimit", "must be non-negative")

	if err.Code != ErrCodeInvalidInput {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidInput)
	}

	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}

	if err.Details["field"] != "timeLimit" {
		t.Errorf("Details[field] = %v, want timeLimit", err.Details["field"])
	}
}

func TestMissingParameter(t *testing.T) {
	err := MissingParameter("lraId")

	if err.Code != ErrCodeMissingParameter {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMissingParameter)
	}

	if err.Details["parameter"] != "lraId" {
		t.Errorf("Details[parameter] = %v, want lraId", err.Details["parameter"])
	}
}

func TestInvalidFormat(t *testing.T) {
	err := InvalidFormat("lraId", "urn:lra format")

	if err.Code != ErrCodeInvalidFormat {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidFormat)
	}

	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
}

func TestOutOfRange(t *testing.T) {
	err := OutOfRange("timeLimit", 0, 86400)

	if err.Code != ErrCodeOutOfRange {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeOutOfRange)
	}

	if err.Details["field"] != "timeLimit" {
		t.Errorf("Details[field] = %v, want timeLimit", err.Details["field"])
	}

	if err.Details["min"] != 0 {
		t.Errorf("Details[min] = %v, want 0", err.Details["min"])
	}

	if err.Details["max"] != 86400 {
		t.Errorf("Details[max] = %v, want 86400", err.Details["max"])
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("lra", "123")

	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotFound)
	}

	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusNotFound)
	}

	if err.Details["resource"] != "lra" {
		t.Errorf("Details[resource] = %v, want lra", err.Details["resource"])
	}

	if err.Details["id"] != "123" {
		t.Errorf("Details[id] = %v, want 123", err.Details["id"])
	}
}

func TestAlreadyExists(t *testing.T) {
	err := AlreadyExists("lra", "123")

	if err.Code != ErrCodeAlreadyExists {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeAlreadyExists)
	}

	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusConflict)
	}
}

func TestConflict(t *testing.T) {
	err := Conflict("lra locked by another participant")

	if err.Code != ErrCodeConflict {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeConflict)
	}

	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusConflict)
	}

	if err.Message != "lra locked by another participant" {
		t.Errorf("Message = %v, want lra locked by another participant", err.Message)
	}
}

func TestGone(t *testing.T) {
	err := Gone("123")

	if err.Code != ErrCodeGone {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeGone)
	}

	if err.HTTPStatus != http.StatusGone {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusGone)
	}

	if err.Details["lraId"] != "123" {
		t.Errorf("Details[lraId] = %v, want 123", err.Details["lraId"])
	}
}

func TestPreconditionFailed(t *testing.T) {
	err := PreconditionFailed("participant link is malformed")

	if err.Code != ErrCodePreconditionFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodePreconditionFailed)
	}

	if err.HTTPStatus != http.StatusPreconditionFailed {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusPreconditionFailed)
	}
}

func TestInternal(t *testing.T) {
	underlying := errors.New("unexpected nil pointer")
	err := Internal("internal error", underlying)

	if err.Code != ErrCodeInternal {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInternal)
	}

	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusInternalServerError)
	}

	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestStoreError(t *testing.T) {
	underlying := errors.New("disk full")
	err := StoreError("write", underlying)

	if err.Code != ErrCodeStoreError {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeStoreError)
	}

	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusInternalServerError)
	}

	if err.Details["operation"] != "write" {
		t.Errorf("Details[operation] = %v, want write", err.Details["operation"])
	}
}

func TestParticipantError(t *testing.T) {
	underlying := errors.New("connection refused")
	err := ParticipantError("http://participant/compensate", underlying)

	if err.Code != ErrCodeParticipantError {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeParticipantError)
	}

	if err.HTTPStatus != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadGateway)
	}

	if err.Details["endpoint"] != "http://participant/compensate" {
		t.Errorf("Details[endpoint] = %v, want endpoint", err.Details["endpoint"])
	}
}

func TestTimeout(t *testing.T) {
	err := Timeout("participant callback")

	if err.Code != ErrCodeTimeout {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeTimeout)
	}

	if err.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusGatewayTimeout)
	}

	if err.Details["operation"] != "participant callback" {
		t.Errorf("Details[operation] = %v, want participant callback", err.Details["operation"])
	}
}

func TestServiceUnavailable(t *testing.T) {
	err := ServiceUnavailable("no coordinator instances available")

	if err.Code != ErrCodeServiceUnavailable {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeServiceUnavailable)
	}

	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusServiceUnavailable)
	}
}

func TestIsServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "service error",
			err:  New(ErrCodeInternal, "test", http.StatusInternalServerError),
			want: true,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServiceError(tt.err); got != tt.want {
				t.Errorf("IsServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetServiceError(t *testing.T) {
	serviceErr := New(ErrCodeInternal, "test", http.StatusInternalServerError)
	standardErr := errors.New("standard error")

	tests := []struct {
		name string
		err  error
		want *ServiceError
	}{
		{
			name: "service error",
			err:  serviceErr,
			want: serviceErr,
		},
		{
			name: "standard error",
			err:  standardErr,
			want: nil,
		},
		{
			name: "nil error",
			err:  nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetServiceError(tt.err)
			if got != tt.want {
				t.Errorf("GetServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "service error",
			err:  New(ErrCodeGone, "test", http.StatusGone),
			want: http.StatusGone,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: http.StatusInternalServerError,
		},
		{
			name: "nil error",
			err:  nil,
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.want {
				t.Errorf("GetHTTPStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
