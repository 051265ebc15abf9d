package main

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Message shown when the ledger and the catalog may disagree.
const partialFailureMessage = "book status may be out of sync, please refresh"

// reservationErrorResponse maps a coordinator failure to its http status and user message.
func reservationErrorResponse(err error) (int, string) {
	var rerr *ReservationError
	if !errors.As(err, &rerr) {
		return http.StatusInternalServerError, "failed to change the book status"
	}
	switch rerr.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized, "authentication required"
	case KindNotFound:
		return http.StatusNotFound, "book does not exist"
	case KindForbidden:
		return http.StatusForbidden, "book is reserved by another user"
	case KindConflict:
		return http.StatusConflict, "book status changed meanwhile, please retry"
	case KindReadFailed:
		return http.StatusServiceUnavailable, "failed to read the book, please retry"
	case KindPartialFailure:
		if rerr.Compensated {
			return http.StatusInternalServerError, "failed to change the book status, nothing was changed, please retry"
		}
		return http.StatusInternalServerError, partialFailureMessage
	default:
		return http.StatusInternalServerError, "failed to change the book status, please retry"
	}
}

// ChangeBookStatus toggles the book between available and reserved on behalf of the caller.
func (api *APIHandler) ChangeBookStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	userID := GetValueFromContext(r.Context(), UserIDContextKey)
	id := ps.ByName("id")
	if !api.validBookID(w, r, id) {
		return
	}

	result, err := api.reservationService.ChangeStatus(r.Context(), id, userID)
	if err != nil {
		status, message := reservationErrorResponse(err)
		errResp := NewAPIError(requestID, status, message, EmptyData)
		errResp.Kind = KindOf(err)
		api.sendError(w, r, errResp, "failed to change book status", err,
			zap.String("book.id", id),
			zap.String("user.id", userID),
			zap.Bool("partial", IsPartialFailure(err)),
		)
		if errResp.Kind == KindPartialFailure {
			// whatever the store holds now, cached views are stale.
			api.invalidate(id, "handler")
		}
		return
	}

	api.invalidate(id, "handler")
	api.logger.Info("success to change book status",
		zap.String("request.id", requestID),
		zap.String("book.id", id),
		zap.String("user.id", userID),
		zap.String("book.status", string(result.Status)),
	)
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusOK, "Book status changed successfully.", nil, result))
}

// GetOpenReservation returns the open reservation of a book.
func (api *APIHandler) GetOpenReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	id := ps.ByName("id")
	if !api.validBookID(w, r, id) {
		return
	}

	var reservation Reservation
	var err error
	if api.cache != nil {
		reservation, err = api.cache.GetOpenReservation(r.Context(), id)
	} else {
		reservation, err = api.reservationService.GetOpen(r.Context(), id)
	}
	if errors.Is(err, ErrNoOpenReservation) {
		errResp := NewAPIError(requestID, http.StatusNotFound, "book has no open reservation", EmptyData)
		api.sendError(w, r, errResp, "book has no open reservation", err, zap.String("book.id", id))
		return
	}
	if err != nil {
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to get the reservation", EmptyData)
		api.sendError(w, r, errResp, "failed to get open reservation", err, zap.String("book.id", id))
		return
	}
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusOK, "Reservation fetched successfully.", nil, reservation))
}

// GetBookReservations returns the reservation history of a book.
func (api *APIHandler) GetBookReservations(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	id := ps.ByName("id")
	if !api.validBookID(w, r, id) {
		return
	}
	api.extendWriteDeadline(w, requestID)

	reservations, err := api.reservationService.ListByBook(r.Context(), id)
	if err != nil {
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to get the reservations", EmptyData)
		api.sendError(w, r, errResp, "failed to list book reservations", err, zap.String("book.id", id))
		return
	}
	total := len(reservations)
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusOK, "Reservations fetched successfully.", &total, reservations))
}

// GetMyReservations returns the reservations made by the caller.
func (api *APIHandler) GetMyReservations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	userID := GetValueFromContext(r.Context(), UserIDContextKey)

	reservations, err := api.reservationService.ListByUser(r.Context(), userID)
	if KindOf(err) == KindUnauthorized {
		errResp := NewAPIError(requestID, http.StatusUnauthorized, "authentication required", EmptyData)
		errResp.Kind = KindUnauthorized
		api.sendError(w, r, errResp, "failed to list user reservations", err)
		return
	}
	if err != nil {
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to get the reservations", EmptyData)
		api.sendError(w, r, errResp, "failed to list user reservations", err, zap.String("user.id", userID))
		return
	}
	total := len(reservations)
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusOK, "Reservations fetched successfully.", &total, reservations))
}
