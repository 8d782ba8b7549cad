package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
)

// Коды ошибок в теле ответа.
const (
	CodeValidation        = "validation_error"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal_error"
)

// mapError переводит ошибку в HTTP-статус и тело ответа.
func mapError(err error) (int, errorBody) {
	var (
		validationErr *domain.ValidationError
		notFoundErr   *domain.NotFoundError
		transitionErr *domain.InvalidTransitionError
		httpErr       *echo.HTTPError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, errorBody{Error: errorPayload{
			Code:    CodeValidation,
			Message: validationErr.Error(),
			Details: map[string]string{"field": validationErr.Field},
		}}
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, errorBody{Error: errorPayload{
			Code:    CodeNotFound,
			Message: notFoundErr.Error(),
			Details: map[string]string{"entity": notFoundErr.Entity, "id": notFoundErr.ID},
		}}
	case errors.As(err, &transitionErr):
		return http.StatusConflict, errorBody{Error: errorPayload{
			Code:    CodeInvalidTransition,
			Message: transitionErr.Error(),
			Details: map[string]string{
				"order_id": transitionErr.OrderID,
				"status":   string(transitionErr.From),
				"trigger":  string(transitionErr.Trigger),
			},
		}}
	case errors.As(err, &httpErr):
		code := CodeBadRequest
		if httpErr.Code == http.StatusNotFound {
			code = CodeNotFound
		} else if httpErr.Code >= http.StatusInternalServerError {
			code = CodeInternal
		}
		message := http.StatusText(httpErr.Code)
		if msg, ok := httpErr.Message.(string); ok && msg != "" {
			message = msg
		}
		return httpErr.Code, errorBody{Error: errorPayload{Code: code, Message: message}}
	default:
		return http.StatusInternalServerError, errorBody{Error: errorPayload{
			Code:    CodeInternal,
			Message: "internal error",
		}}
	}
}

// errorHandler — централизованный обработчик ошибок echo.
func errorHandler(logger *log.Entry) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := mapError(err)
		entry := logger.WithError(err).WithFields(log.Fields{
			"method": c.Request().Method,
			"path":   c.Request().URL.Path,
			"status": status,
		})
		if status >= http.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Debug("request rejected")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.WithError(err).Warn("write error response failed")
		}
	}
}
