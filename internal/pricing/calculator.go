// Package pricing считает суммы альбарана: строку, базу, IVA и итог.
//
// Все вычисления идут в decimal без округления; округление до центов — забота
// потребителя (Round2). Валидация входных позиций здесь не выполняется.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
)

// TaxRate — ставка IVA (21%).
var TaxRate = decimal.RequireFromString("0.21")

var (
	one        = decimal.NewFromInt(1)
	taxDivisor = one.Add(TaxRate)
)

// Breakdown — разбивка итога альбарана.
type Breakdown struct {
	// Base — Base Imponible, сумма строк без налога.
	Base  decimal.Decimal
	Tax   decimal.Decimal
	Total decimal.Decimal
}

// LineSubtotal = quantity * price * (1 - discount/100).
func LineSubtotal(item domain.OrderItem) decimal.Decimal {
	factor := one.Sub(item.Discount.Shift(-2))
	return decimal.NewFromInt32(item.Quantity).Mul(item.Price).Mul(factor)
}

// Compute считает разбивку по списку позиций. Для пустого списка всё равно нулю.
func Compute(items []domain.OrderItem) Breakdown {
	base := decimal.Zero
	for _, item := range items {
		base = base.Add(LineSubtotal(item))
	}
	tax := base.Mul(TaxRate)
	return Breakdown{
		Base:  base,
		Tax:   tax,
		Total: base.Add(tax),
	}
}

// Total — сокращение для Compute(items).Total.
func Total(items []domain.OrderItem) decimal.Decimal {
	return Compute(items).Total
}

// FromTotal восстанавливает базу и налог из сохранённого итога.
// Деление выполняется с точностью decimal.DivisionPrecision.
func FromTotal(total decimal.Decimal) Breakdown {
	base := total.Div(taxDivisor)
	return Breakdown{
		Base:  base,
		Tax:   total.Sub(base),
		Total: total,
	}
}

// Round2 округляет сумму до центов для отображения.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}
