package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/convmap/internal/conv"
	"github.com/samcharles93/convmap/internal/gmap"
	"github.com/samcharles93/convmap/internal/transpose"
	"github.com/samcharles93/convmap/internal/tunable"
)

// ErrInvalidRequest reports a malformed request body or query.
var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string { return e.msg }
func (e invalidRequestError) Unwrap() error { return ErrInvalidRequest }

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// clientErrors are configuration problems reported as 400.
var clientErrors = []error{
	ErrInvalidRequest,
	conv.ErrInvalid,
	tunable.ErrInvalid,
	tunable.ErrUnsupported,
	gmap.ErrUnsupported,
	transpose.ErrShape,
	transpose.ErrElemSize,
}

func isClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

func writeFailure(c *echo.Context, err error) error {
	if isClientError(err) {
		return writeBadRequest(c, err.Error())
	}
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]ErrorBody{
		"error": {Message: msg, Type: errType},
	})
}
