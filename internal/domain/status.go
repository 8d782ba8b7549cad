package domain

import "strings"

// Status описывает жизненный цикл альбарана.
//
//	MANUAL_REVIEW ──review──> PENDING_FACTUSOL ──export──┬──> COMPLETED
//	                                 ^                   └──> FACTUSOL_ERROR
//	                                 └──────retry (optional)──────┘
type Status string

const (
	// StatusManualReview — альбаран получен из канала и ждёт ручной проверки.
	StatusManualReview Status = "MANUAL_REVIEW"
	// StatusPendingFactusol — проверен и готов к экспорту.
	StatusPendingFactusol Status = "PENDING_FACTUSOL"
	// StatusCompleted — документ создан в Factusol.
	StatusCompleted Status = "COMPLETED"
	// StatusFactusolError — Factusol отклонил документ.
	StatusFactusolError Status = "FACTUSOL_ERROR"

	// StatusAll — фильтр "все статусы" для выборок, не является состоянием.
	StatusAll Status = "ALL"
)

// Valid проверяет, что статус является реальным состоянием альбарана.
func (s Status) Valid() bool {
	switch s {
	case StatusManualReview, StatusPendingFactusol, StatusCompleted, StatusFactusolError:
		return true
	default:
		return false
	}
}

// ParseStatusFilter разбирает фильтр выборки: пустое значение и "ALL" дают StatusAll.
func ParseStatusFilter(raw string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if status == "" || status == StatusAll {
		return StatusAll, nil
	}
	if !status.Valid() {
		return "", NewValidationError("status", ErrStatusInvalid)
	}
	return status, nil
}

// Terminal сообщает, что из статуса нет переходов по основной таблице.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFactusolError
}

// Trigger — внешнее действие, которое пытается изменить статус.
type Trigger string

const (
	TriggerReviewAndSave Trigger = "review_and_save"
	TriggerExportToErp   Trigger = "export_to_erp"
	TriggerRetryExport   Trigger = "retry_export"
)

// transitions — таблица разрешённых переходов. Для экспорта указан статус успеха,
// статус ошибки определяется исходом шлюза.
var transitions = map[Status]map[Trigger]Status{
	StatusManualReview: {
		TriggerReviewAndSave: StatusPendingFactusol,
	},
	StatusPendingFactusol: {
		TriggerExportToErp: StatusCompleted,
	},
	StatusFactusolError: {
		TriggerRetryExport: StatusPendingFactusol,
	},
}

// Next возвращает целевой статус для триггера или ok == false.
func (s Status) Next(trigger Trigger) (Status, bool) {
	next, ok := transitions[s][trigger]
	return next, ok
}

// Action — действие, доступное пользователю для текущего статуса.
type Action string

const (
	ActionReview       Action = "review"
	ActionExport       Action = "export"
	ActionViewDocument Action = "view_document"
	ActionViewLog      Action = "view_log"
	ActionRetryExport  Action = "retry_export"
)
