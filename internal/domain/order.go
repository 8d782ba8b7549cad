package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Channel — канал, через который альбаран попал в систему.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelVoice    Channel = "voice"
	ChannelManual   Channel = "manual"
)

var maxDiscount = decimal.NewFromInt(100)

// Valid проверяет, что канал известен.
func (c Channel) Valid() bool {
	switch c {
	case ChannelTelegram, ChannelVoice, ChannelManual:
		return true
	default:
		return false
	}
}

// OrderItem представляет одну строку альбарана.
type OrderItem struct {
	// ID уникален в пределах альбарана.
	ID int
	// Code — код товара в каталоге Factusol.
	Code string
	// Concept — свободное описание позиции.
	Concept  string
	Quantity int32
	// Price — цена за единицу в евро, без округления.
	Price decimal.Decimal
	// Discount — скидка в процентах, 0..100.
	Discount decimal.Decimal
}

// Validate проверяет инварианты позиции. Возвращает первую найденную причину.
func (i OrderItem) Validate() error {
	switch {
	case i.Quantity < 1:
		return ErrItemQtyInvalid
	case i.Price.IsNegative():
		return ErrItemPriceInvalid
	case i.Discount.IsNegative() || i.Discount.GreaterThan(maxDiscount):
		return ErrItemDiscountInvalid
	}
	return nil
}

// ValidateItems проверяет весь список позиций целиком.
// Пустой список допустим только если allowEmpty == true.
func ValidateItems(items []OrderItem, allowEmpty bool) error {
	if len(items) == 0 && !allowEmpty {
		return NewValidationError("items", ErrItemsRequired)
	}
	for idx, item := range items {
		if err := item.Validate(); err != nil {
			return NewValidationError(fmt.Sprintf("items[%d]", idx), err)
		}
	}
	return nil
}

// NormalizeItemIDs возвращает копию позиций, где нулевые и повторяющиеся ID
// заменены на следующие свободные номера. Порядок позиций сохраняется.
func NormalizeItemIDs(items []OrderItem) []OrderItem {
	result := make([]OrderItem, len(items))
	copy(result, items)

	seen := make(map[int]struct{}, len(result))
	maxID := 0
	for _, item := range result {
		if item.ID > maxID {
			maxID = item.ID
		}
	}
	for idx := range result {
		id := result[idx].ID
		if _, dup := seen[id]; id <= 0 || dup {
			maxID++
			result[idx].ID = maxID
			id = maxID
		}
		seen[id] = struct{}{}
	}
	return result
}

// Order агрегирует состояние альбарана.
type Order struct {
	// ID в формате "#NNNNN".
	ID       string
	ClientID string
	// Date — календарная дата создания (полночь UTC).
	Date    time.Time
	Channel Channel
	Items   []OrderItem
	Status  Status
	// Total — итог с IVA; всегда производная от Items.
	Total decimal.Decimal
	// FailureReason заполняется только в статусе FACTUSOL_ERROR.
	FailureReason string
	// ExternalRef — номер документа, который вернул Factusol.
	ExternalRef string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone возвращает копию альбарана с собственным срезом позиций.
func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]OrderItem, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	return o
}

// DateOnly обрезает время до календарной даты в UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
