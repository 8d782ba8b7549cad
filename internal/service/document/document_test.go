package document

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
	"github.com/vladislavdragonenkov/albaran/internal/pricing"
)

func completedOrder() (domain.Order, domain.Client) {
	items := []domain.OrderItem{
		{ID: 1, Code: "VIN-02", Concept: "Vino <tinto>", Quantity: 3, Price: decimal.RequireFromString("5.00"), Discount: decimal.RequireFromString("50")},
	}
	order := domain.Order{
		ID:          "#00012",
		ClientID:    "c-1",
		Date:        time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC),
		Items:       items,
		Status:      domain.StatusCompleted,
		Total:       pricing.Total(items),
		ExternalRef: "FS-000031",
	}
	client := domain.Client{ID: "c-1", Name: "Bar Pepe", TaxID: "B11111111", Address: "C/ Mayor 1"}
	return order, client
}

func TestBuild(t *testing.T) {
	order, client := completedOrder()

	doc := Build(order, client, DefaultCompany())

	require.Equal(t, "#00012", doc.Number)
	require.Equal(t, "07/03/2024", doc.Date)
	require.Equal(t, "Marcelino Calvo S.L.", doc.Company.Name)
	require.Len(t, doc.Lines, 1)
	require.True(t, decimal.RequireFromString("7.5").Equal(doc.Lines[0].Subtotal))
	require.True(t, order.Total.Equal(doc.Total))

	direct := pricing.Compute(order.Items)
	tolerance := decimal.RequireFromString("0.000000001")
	require.True(t, doc.Base.Sub(direct.Base).Abs().LessThan(tolerance), doc.Base.String())
	require.True(t, doc.Tax.Sub(direct.Tax).Abs().LessThan(tolerance), doc.Tax.String())
}

func TestBuild_JSON(t *testing.T) {
	order, client := completedOrder()

	data, err := json.Marshal(Build(order, client, DefaultCompany()))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "9.075", decoded["total"])
	require.Equal(t, "FS-000031", decoded["external_ref"])
}

func TestRenderHTML(t *testing.T) {
	order, client := completedOrder()
	var buf bytes.Buffer

	require.NoError(t, RenderHTML(&buf, Build(order, client, DefaultCompany())))

	html := buf.String()
	for _, want := range []string{
		"Albarán #00012",
		"Fecha: 07/03/2024",
		"CIF: B12345679",
		"Bar Pepe",
		"Vino &lt;tinto&gt;",
		"7.50 €",
		"IVA (21%)",
		"1.58 €",
		"9.08 €",
		"Nº Factusol: FS-000031",
	} {
		require.True(t, strings.Contains(html, want), "missing %q", want)
	}
}
