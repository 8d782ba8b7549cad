package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — входные данные нарушают инварианты позиции или альбарана.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound — альбаран или клиент с указанным идентификатором не найден.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition — триггер не разрешён для текущего статуса альбарана.
	ErrInvalidTransition = errors.New("invalid status transition")

	// Ошибка отсутствия хотя бы одной позиции.
	ErrItemsRequired = errors.New("albaran must contain at least one item")
	// Ошибка при некорректном количестве (< 1).
	ErrItemQtyInvalid = errors.New("item quantity must be at least 1")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка, если скидка вне диапазона 0..100.
	ErrItemDiscountInvalid = errors.New("item discount must be between 0 and 100")
	// Ошибка неизвестного канала поступления.
	ErrChannelInvalid = errors.New("channel must be telegram, voice or manual")
	// Ошибка неизвестного статуса в фильтре выборки.
	ErrStatusInvalid = errors.New("unknown albaran status")
	// Ошибка исчерпания порядковых номеров альбаранов.
	ErrOrderSequenceExhausted = errors.New("albaran sequence exhausted")
	// Ошибка события outbox без альбарана или типа.
	ErrOutboxMessageInvalid = errors.New("outbox message must carry aggregate id and event type")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ValidationError описывает конкретное нарушение инварианта.
type ValidationError struct {
	// Field указывает на поле, например "items[2].discount".
	Field string
	Err   error
}

// NewValidationError создаёт ошибку валидации для поля.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", ErrValidation, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrValidation, e.Field, e.Err)
}

// Unwrap позволяет проверять как общий ErrValidation, так и конкретную причину.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// NotFoundError сообщает об отсутствии сущности.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFoundError создаёт ошибку для сущности entity с идентификатором id.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q %s", e.Entity, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidTransitionError фиксирует попытку недопустимого перехода.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	Trigger Trigger
}

// NewInvalidTransitionError создаёт ошибку перехода для альбарана.
func NewInvalidTransitionError(orderID string, from Status, trigger Trigger) *InvalidTransitionError {
	return &InvalidTransitionError{OrderID: orderID, From: from, Trigger: trigger}
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s is not allowed for albaran %s in status %s", ErrInvalidTransition, e.Trigger, e.OrderID, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// IsValidation проверяет, что ошибка относится к валидации.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound проверяет, что ошибка означает отсутствие сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidTransition проверяет, что ошибка — недопустимый переход статуса.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
