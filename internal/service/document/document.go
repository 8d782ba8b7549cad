// Package document собирает печатную форму альбарана.
package document

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
	"github.com/vladislavdragonenkov/albaran/internal/pricing"
)

// DateLayout — формат даты в документе (dd/mm/yyyy).
const DateLayout = "02/01/2006"

// Company — реквизиты продавца в шапке документа.
type Company struct {
	Name    string `json:"name"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address"`
}

// DefaultCompany возвращает реквизиты по умолчанию.
func DefaultCompany() Company {
	return Company{
		Name:    "Marcelino Calvo S.L.",
		TaxID:   "B12345679",
		Address: "Pol. Ind. El Montalvo, Salamanca",
	}
}

// Line — строка документа.
type Line struct {
	Code     string          `json:"code"`
	Concept  string          `json:"concept"`
	Quantity int32           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Discount decimal.Decimal `json:"discount"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Document — данные печатной формы.
type Document struct {
	Company     Company         `json:"company"`
	Number      string          `json:"number"`
	Date        string          `json:"date"`
	Status      domain.Status   `json:"status"`
	ExternalRef string          `json:"external_ref,omitempty"`
	Client      domain.Client   `json:"client"`
	Lines       []Line          `json:"lines"`
	Base        decimal.Decimal `json:"base"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

// Build собирает документ. Разбивка восстанавливается из сохранённого итога,
// поэтому документ совпадает с суммой, которую видел пользователь.
func Build(order domain.Order, client domain.Client, company Company) Document {
	lines := make([]Line, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, Line{
			Code:     item.Code,
			Concept:  item.Concept,
			Quantity: item.Quantity,
			Price:    item.Price,
			Discount: item.Discount,
			Subtotal: pricing.LineSubtotal(item),
		})
	}

	breakdown := pricing.FromTotal(order.Total)
	return Document{
		Company:     company,
		Number:      order.ID,
		Date:        order.Date.Format(DateLayout),
		Status:      order.Status,
		ExternalRef: order.ExternalRef,
		Client:      client,
		Lines:       lines,
		Base:        breakdown.Base,
		Tax:         breakdown.Tax,
		Total:       breakdown.Total,
	}
}
