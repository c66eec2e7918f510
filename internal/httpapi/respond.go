package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Spok95/achievement-service/internal/logging"
	"github.com/Spok95/achievement-service/internal/metrics"
	"github.com/Spok95/achievement-service/internal/observability"
	"github.com/Spok95/achievement-service/internal/workflow"
)

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind   workflow.Kind     `json:"kind"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respond(c *fiber.Ctx, status int, msg string, data any) error {
	return c.Status(status).JSON(successResponse{Success: true, Message: msg, Data: data})
}

// inputError — ошибка разбора/схемы запроса, до вызова сервиса.
type inputError struct {
	msg    string
	fields map[string]string
}

func (e *inputError) Error() string { return e.msg }

func badInput(msg string, fields map[string]string) error {
	return &inputError{msg: msg, fields: fields}
}

func statusFor(kind workflow.Kind) int {
	switch kind {
	case workflow.KindValidation, workflow.KindConflict:
		return fiber.StatusBadRequest
	case workflow.KindNotFound:
		return fiber.StatusNotFound
	case workflow.KindForbidden:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

// errorHandler — единая точка превращения ошибок обработчиков в ответ.
func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var in *inputError
		if errors.As(err, &in) {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Message: in.msg,
				Error:   &errorBody{Kind: workflow.KindValidation, Fields: in.fields},
			})
		}
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(errorResponse{Message: fe.Message})
		}

		kind := workflow.KindOf(err)
		status := statusFor(kind)
		if kind == workflow.KindInternal {
			metrics.HandlerErrors.Inc()
			observability.CaptureErrCtx(c.UserContext(), err)
			logging.FromContext(c.UserContext(), log).Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
		}
		return c.Status(status).JSON(errorResponse{
			Message: workflow.Message(err),
			Error:   &errorBody{Kind: kind, Fields: workflow.FieldErrors(err)},
		})
	}
}
