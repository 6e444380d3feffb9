// Package handlers exposes the reservation, access, payment and device
// APIs over PocketBase's router.
package handlers

import (
	"errors"
	"strconv"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"reservation-system/apperror"
)

// apiError converts a service error into the matching HTTP error response.
func apiError(err error) error {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		return apis.NewBadRequestError("Request failed", err)
	}
	return apis.NewApiError(apperror.HTTPStatus(err), appErr.Message, err)
}

func queryInt(e *core.RequestEvent, name string, fallback int) int {
	raw := e.Request.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
