package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const orderIDPrefix = "#"

// FormatOrderID форматирует порядковый номер как "#00042".
func FormatOrderID(seq int) string {
	return fmt.Sprintf("%s%05d", orderIDPrefix, seq)
}

// ParseOrderSequence извлекает числовой суффикс из "#<digits>".
// Для любого другого формата возвращает ok == false.
func ParseOrderSequence(id string) (int, bool) {
	digits, found := strings.CutPrefix(id, orderIDPrefix)
	if !found || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// NormalizeOrderID принимает "00001", "#00001" или " #00001 " и возвращает каноничный ID.
func NormalizeOrderID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, orderIDPrefix) {
		return raw
	}
	return orderIDPrefix + raw
}

// SortNewestFirst упорядочивает по порядковому номеру ID (по убыванию).
// Нечитаемые ID уходят в конец и сортируются по дате создания.
func SortNewestFirst(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		si, okI := ParseOrderSequence(orders[i].ID)
		sj, okJ := ParseOrderSequence(orders[j].ID)
		switch {
		case okI && okJ && si != sj:
			return si > sj
		case okI != okJ:
			return okI
		case !orders[i].CreatedAt.Equal(orders[j].CreatedAt):
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}
