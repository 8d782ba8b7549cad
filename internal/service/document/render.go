package document

import (
	"fmt"
	"html/template"
	"io"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/albaran/internal/pricing"
)

var pageTemplate = template.Must(template.New("albaran").Funcs(template.FuncMap{
	"money":   formatMoney,
	"percent": formatPercent,
}).Parse(`<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<title>Albarán {{.Number}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { width: 100%; border-collapse: collapse; }
th, td { padding: 4px 8px; border-bottom: 1px solid #ccc; text-align: left; }
td.num, th.num { text-align: right; }
.totals { margin-top: 1em; width: 40%; margin-left: auto; }
@media print { .noprint { display: none; } }
</style>
</head>
<body>
<header>
<h1>{{.Company.Name}}</h1>
<p>CIF: {{.Company.TaxID}}<br>{{.Company.Address}}</p>
<h2>Albarán {{.Number}}</h2>
<p>Fecha: {{.Date}}{{if .ExternalRef}}<br>Nº Factusol: {{.ExternalRef}}{{end}}</p>
</header>
<section>
<h3>Cliente</h3>
<p>{{.Client.Name}}<br>CIF/DNI: {{.Client.TaxID}}{{if .Client.Address}}<br>{{.Client.Address}}{{end}}{{if .Client.Email}}<br>{{.Client.Email}}{{end}}</p>
</section>
<table>
<thead><tr><th>Código</th><th>Concepto</th><th class="num">Cantidad</th><th class="num">Precio</th><th class="num">Dto.</th><th class="num">Importe</th></tr></thead>
<tbody>
{{range .Lines}}<tr><td>{{.Code}}</td><td>{{.Concept}}</td><td class="num">{{.Quantity}}</td><td class="num">{{money .Price}}</td><td class="num">{{percent .Discount}}</td><td class="num">{{money .Subtotal}}</td></tr>
{{end}}</tbody>
</table>
<table class="totals">
<tr><th>Base Imponible</th><td class="num">{{money .Base}}</td></tr>
<tr><th>IVA ({{.TaxPercent}})</th><td class="num">{{money .Tax}}</td></tr>
<tr><th>Total</th><td class="num"><strong>{{money .Total}}</strong></td></tr>
</table>
<p class="noprint"><button onclick="window.print()">Imprimir</button></p>
</body>
</html>
`))

type page struct {
	Document
	TaxPercent string
}

// RenderHTML пишет печатную HTML-страницу документа.
func RenderHTML(w io.Writer, doc Document) error {
	if err := pageTemplate.Execute(w, page{Document: doc, TaxPercent: formatPercent(pricing.TaxRate.Shift(2))}); err != nil {
		return fmt.Errorf("render albaran %s: %w", doc.Number, err)
	}
	return nil
}

func formatMoney(amount decimal.Decimal) string {
	return pricing.Round2(amount).StringFixed(2) + " €"
}

func formatPercent(value decimal.Decimal) string {
	return value.String() + "%"
}
