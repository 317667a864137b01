package handlers

import (
	"errors"
	"net/http"

	"umrah-backend/internal/apperrors"
	"umrah-backend/pkg/utils"
)

// writeServiceError maps error classifications to HTTP statuses. Transient
// failures come back as 500 without leaking internals.
func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperrors.ErrNothingToPayout) {
		utils.Error(w, http.StatusUnprocessableEntity, "no approved commissions to pay out")
		return
	}

	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidArgument:
		utils.Error(w, http.StatusBadRequest, err.Error())
	case apperrors.KindNotFound:
		utils.Error(w, http.StatusNotFound, err.Error())
	case apperrors.KindConflict:
		utils.Error(w, http.StatusConflict, err.Error())
	case apperrors.KindConfiguration:
		utils.Error(w, http.StatusUnprocessableEntity, err.Error())
	default:
		utils.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
