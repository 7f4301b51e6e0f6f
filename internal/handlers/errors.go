package handlers

import (
	"context"
	"errors"
	"net/http"
	"taskflow/internal/logger"
	"taskflow/internal/middleware"
	"taskflow/internal/service"

	"go.uber.org/zap"
)

func handleBusinessError(w http.ResponseWriter, err error) bool {
	var businessErr *service.BusinessError
	if !errors.As(err, &businessErr) {
		return false
	}

	statusCode := mapBusinessErrorToHTTP(businessErr.Code)

	logger.Warn("HTTP: Business error",
		zap.String("error_code", businessErr.Code),
		zap.Int("http_status", statusCode))

	responseWithJSON(w, statusCode,
		toPayload("error", businessErr.Code),
		toPayload("message", businessErr.Message),
		toPayload("details", businessErr.Details),
	)
	return true
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeValidation, service.CodeInvalidCode:
		return http.StatusBadRequest
	case service.CodeVersionConflict, service.CodeUserExists:
		return http.StatusConflict
	case service.CodeUnauthorized, service.CodeInvalidCredentials:
		return http.StatusUnauthorized
	case service.CodeEmailNotConfirmed:
		return http.StatusForbidden
	case service.CodeTimelineCapacity:
		return http.StatusUnprocessableEntity
	case service.CodeAuthProvider:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// handleServiceError writes the response for any error returned by a service.
// Errors that are not business errors never leak their text to the client.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	if handleBusinessError(w, err) {
		return
	}

	requestID := middleware.GetRequestID(r.Context())
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("HTTP: Service timed out",
			zap.String("request_id", requestID),
			zap.String("operation", operation))
		responseWithJSON(w, http.StatusGatewayTimeout,
			toPayload("error", "request timeout"),
			toPayload("request_id", requestID))
		return
	}

	logger.Error("HTTP: Service error", err,
		zap.String("request_id", requestID),
		zap.String("operation", operation),
		zap.String("client_ip", r.RemoteAddr))
	responseWithJSON(w, http.StatusInternalServerError,
		toPayload("error", "internal server error"),
		toPayload("request_id", requestID))
}
