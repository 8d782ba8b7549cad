package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
)

// helper для создания валидной позиции.
func makeItem() domain.OrderItem {
	return domain.OrderItem{
		ID:       1,
		Code:     "JAM-001",
		Concept:  "Jamón ibérico",
		Quantity: 2,
		Price:    decimal.RequireFromString("10.00"),
		Discount: decimal.Zero,
	}
}

func TestOrderItemValidate_Ok(t *testing.T) {
	cases := []struct {
		name string
		mut  func(i *domain.OrderItem)
	}{
		{name: "base item", mut: func(*domain.OrderItem) {}},
		{name: "free item", mut: func(i *domain.OrderItem) { i.Price = decimal.Zero }},
		{name: "full discount", mut: func(i *domain.OrderItem) { i.Discount = decimal.NewFromInt(100) }},
		{name: "fractional discount", mut: func(i *domain.OrderItem) { i.Discount = decimal.RequireFromString("12.5") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := makeItem()
			tc.mut(&item)
			if err := item.Validate(); err != nil {
				t.Fatalf("expected no validation error, got %v", err)
			}
		})
	}
}

func TestOrderItemValidate_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(i *domain.OrderItem)
		want error
	}{
		{name: "zero qty", mut: func(i *domain.OrderItem) { i.Quantity = 0 }, want: domain.ErrItemQtyInvalid},
		{name: "negative qty", mut: func(i *domain.OrderItem) { i.Quantity = -3 }, want: domain.ErrItemQtyInvalid},
		{name: "negative price", mut: func(i *domain.OrderItem) { i.Price = decimal.RequireFromString("-0.01") }, want: domain.ErrItemPriceInvalid},
		{name: "negative discount", mut: func(i *domain.OrderItem) { i.Discount = decimal.NewFromInt(-1) }, want: domain.ErrItemDiscountInvalid},
		{name: "discount over 100", mut: func(i *domain.OrderItem) { i.Discount = decimal.RequireFromString("100.01") }, want: domain.ErrItemDiscountInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := makeItem()
			tc.mut(&item)
			if err := item.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateItems(t *testing.T) {
	if err := domain.ValidateItems(nil, false); !errors.Is(err, domain.ErrItemsRequired) {
		t.Fatalf("expected items required error, got %v", err)
	}
	if err := domain.ValidateItems(nil, true); err != nil {
		t.Fatalf("empty list must be allowed, got %v", err)
	}

	bad := makeItem()
	bad.Quantity = 0
	err := domain.ValidateItems([]domain.OrderItem{makeItem(), bad}, false)

	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Field != "items[1]" {
		t.Fatalf("expected field items[1], got %s", vErr.Field)
	}
}

func TestOrderClone_IsIndependent(t *testing.T) {
	order := domain.Order{ID: "#00001", Items: []domain.OrderItem{makeItem()}}
	clone := order.Clone()
	clone.Items[0].Quantity = 99

	if order.Items[0].Quantity != 2 {
		t.Fatalf("clone shares items with original")
	}
}

func TestDateOnly(t *testing.T) {
	ts := time.Date(2024, 3, 9, 23, 15, 0, 0, time.UTC)
	got := domain.DateOnly(ts)
	if !got.Equal(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date: %v", got)
	}
}

func TestOrderSequence(t *testing.T) {
	tests := []struct {
		id     string
		want   int
		wantOK bool
	}{
		{id: "#00001", want: 1, wantOK: true},
		{id: "#00420", want: 420, wantOK: true},
		{id: "#123456", want: 123456, wantOK: true},
		{id: "#abc", wantOK: false},
		{id: "#", wantOK: false},
		{id: "00001", wantOK: false},
		{id: "#-1", wantOK: false},
		{id: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok := domain.ParseOrderSequence(tt.id)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("ParseOrderSequence(%q) = %d,%v want %d,%v", tt.id, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	if got := domain.FormatOrderID(4); got != "#00004" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := domain.NormalizeOrderID(" 00012 "); got != "#00012" {
		t.Fatalf("unexpected normalized id: %s", got)
	}
	if got := domain.NormalizeOrderID("#00012"); got != "#00012" {
		t.Fatalf("unexpected normalized id: %s", got)
	}
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	orders := []domain.Order{
		{ID: "#99999"},
		{ID: "legacy-a", CreatedAt: base},
		{ID: "#100000"},
		{ID: "legacy-b", CreatedAt: base.Add(time.Hour)},
		{ID: "#00002"},
	}

	domain.SortNewestFirst(orders)

	got := make([]string, 0, len(orders))
	for _, order := range orders {
		got = append(got, order.ID)
	}
	want := []string{"#100000", "#99999", "#00002", "legacy-b", "legacy-a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: %v, want %v", got, want)
		}
	}
}

func TestNormalizeItemIDs(t *testing.T) {
	items := []domain.OrderItem{{ID: 0}, {ID: 3}, {ID: 3}, {ID: -1}, {ID: 1}}
	got := domain.NormalizeItemIDs(items)

	want := []int{4, 3, 5, 6, 1}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected id %d, got %d", i, id, got[i].ID)
		}
	}
	if items[0].ID != 0 {
		t.Fatal("input slice must not be modified")
	}
}

func TestChannelValid(t *testing.T) {
	for _, c := range []domain.Channel{domain.ChannelTelegram, domain.ChannelVoice, domain.ChannelManual} {
		if !c.Valid() {
			t.Fatalf("channel %s must be valid", c)
		}
	}
	if domain.Channel("fax").Valid() {
		t.Fatal("unknown channel must be invalid")
	}
}
