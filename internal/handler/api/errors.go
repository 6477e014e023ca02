package api

import (
	"errors"

	drepo "OraclePull/internal/domain/repository"
	"OraclePull/internal/usecase"
	xhttp "OraclePull/pkg/http"
)

// toAppError maps domain input errors to 400 and anything else to 500.
func toAppError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, usecase.ErrInvalidSource),
		errors.Is(err, usecase.ErrInvalidSymbol),
		errors.Is(err, usecase.ErrInvalidChain),
		errors.Is(err, usecase.ErrInvalidPeriod),
		errors.Is(err, drepo.ErrUnknownAsset),
		errors.Is(err, drepo.ErrUnknownNetwork):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}
