package domain

import (
	"fmt"

	appErrors "fflux/internal/errors"
)

func invalidRoleError(role string) error {
	return appErrors.New(appErrors.CodeInvalidInput, fmt.Sprintf("invalid user role: %s", role), nil)
}

func invalidUploadError(reason string) error {
	return appErrors.New(appErrors.CodeInvalidInput, reason, nil)
}
