// Package config хранит бизнес-настройки сервиса: подключение к Factusol,
// пресеты скидок и политику повторного экспорта.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Переменные окружения с бизнес-настройками.
const (
	EnvFactusolEndpoint     = "ALBARAN_FACTUSOL_ENDPOINT"
	EnvFactusolClientID     = "ALBARAN_FACTUSOL_CLIENT_ID"
	EnvFactusolClientSecret = "ALBARAN_FACTUSOL_CLIENT_SECRET"
	EnvDiscountPresets      = "ALBARAN_DISCOUNT_PRESETS"
	EnvAllowExportRetry     = "ALBARAN_ALLOW_EXPORT_RETRY"
)

// PresetCount — количество пресетов скидок.
const PresetCount = 3

const maskedSecret = "********"

var (
	// ErrEndpointInvalid — URL Factusol не абсолютный http(s).
	ErrEndpointInvalid = errors.New("factusol endpoint must be an absolute http(s) url")
	// ErrPresetIndex — номер пресета вне 1..3.
	ErrPresetIndex = errors.New("discount preset index out of range")
	// ErrPresetValue — скидка вне 0..100.
	ErrPresetValue = errors.New("discount preset must be within 0..100")

	hundred = decimal.NewFromInt(100)
)

// Credentials — учётные данные API Factusol.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Settings — фиксированный набор опций. Поля меняются только через сеттеры,
// каждый из которых проверяет значение.
type Settings struct {
	factusolEndpoint string
	credentials      Credentials
	discountPresets  [PresetCount]decimal.Decimal
	allowExportRetry bool
}

// Snapshot — неизменяемая копия настроек для чтения.
type Snapshot struct {
	FactusolEndpoint string                       `json:"factusol_endpoint"`
	Credentials      Credentials                  `json:"credentials"`
	DiscountPresets  [PresetCount]decimal.Decimal `json:"discount_presets"`
	AllowExportRetry bool                         `json:"allow_export_retry"`
}

// DefaultSettings возвращает настройки по умолчанию: без endpoint, пресеты 5/10/15%.
func DefaultSettings() *Settings {
	return &Settings{
		discountPresets: [PresetCount]decimal.Decimal{
			decimal.NewFromInt(5),
			decimal.NewFromInt(10),
			decimal.NewFromInt(15),
		},
	}
}

// SetFactusolEndpoint задаёт URL API Factusol. Пустая строка отключает HTTP-шлюз.
func (s *Settings) SetFactusolEndpoint(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		s.factusolEndpoint = ""
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrEndpointInvalid, raw)
	}
	s.factusolEndpoint = strings.TrimRight(raw, "/")
	return nil
}

// SetCredentials задаёт учётные данные.
func (s *Settings) SetCredentials(clientID, clientSecret string) {
	s.credentials = Credentials{
		ClientID:     strings.TrimSpace(clientID),
		ClientSecret: clientSecret,
	}
}

// SetDiscountPreset задаёт пресет с номером index (1..3).
func (s *Settings) SetDiscountPreset(index int, value decimal.Decimal) error {
	if index < 1 || index > PresetCount {
		return fmt.Errorf("%w: %d", ErrPresetIndex, index)
	}
	if value.IsNegative() || value.GreaterThan(hundred) {
		return fmt.Errorf("%w: %s", ErrPresetValue, value)
	}
	s.discountPresets[index-1] = value
	return nil
}

// SetAllowExportRetry включает переход FACTUSOL_ERROR -> PENDING_FACTUSOL.
func (s *Settings) SetAllowExportRetry(enabled bool) {
	s.allowExportRetry = enabled
}

// Snapshot возвращает копию настроек.
func (s *Settings) Snapshot() Snapshot {
	return Snapshot{
		FactusolEndpoint: s.factusolEndpoint,
		Credentials:      s.credentials,
		DiscountPresets:  s.discountPresets,
		AllowExportRetry: s.allowExportRetry,
	}
}

// Masked возвращает копию настроек со скрытым секретом.
func (s *Settings) Masked() Snapshot {
	snap := s.Snapshot()
	if snap.Credentials.ClientSecret != "" {
		snap.Credentials.ClientSecret = maskedSecret
	}
	return snap
}

// Lookup совместим с os.LookupEnv.
type Lookup func(key string) (string, bool)

// LoadFromEnv применяет переменные окружения к настройкам по умолчанию.
// Ошибочные значения не прерывают загрузку: возвращаются как предупреждения,
// а соответствующая опция остаётся по умолчанию.
func LoadFromEnv(lookup Lookup) (*Settings, []error) {
	settings := DefaultSettings()
	var warnings []error

	if v, ok := lookup(EnvFactusolEndpoint); ok {
		if err := settings.SetFactusolEndpoint(v); err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", EnvFactusolEndpoint, err))
		}
	}

	clientID, _ := lookup(EnvFactusolClientID)
	clientSecret, _ := lookup(EnvFactusolClientSecret)
	settings.SetCredentials(clientID, clientSecret)

	if v, ok := lookup(EnvDiscountPresets); ok && strings.TrimSpace(v) != "" {
		warnings = append(warnings, settings.applyPresets(v)...)
	}

	if v, ok := lookup(EnvAllowExportRetry); ok && strings.TrimSpace(v) != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", EnvAllowExportRetry, err))
		} else {
			settings.SetAllowExportRetry(enabled)
		}
	}

	return settings, warnings
}

// applyPresets разбирает "5,10,15"; пустые позиции сохраняют значение по умолчанию.
func (s *Settings) applyPresets(raw string) []error {
	parts := strings.Split(raw, ",")
	if len(parts) > PresetCount {
		return []error{fmt.Errorf("%s: expected at most %d values, got %d", EnvDiscountPresets, PresetCount, len(parts))}
	}

	var warnings []error
	for idx, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := decimal.NewFromString(part)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s[%d]: %w", EnvDiscountPresets, idx+1, err))
			continue
		}
		if err := s.SetDiscountPreset(idx+1, value); err != nil {
			warnings = append(warnings, fmt.Errorf("%s[%d]: %w", EnvDiscountPresets, idx+1, err))
		}
	}
	return warnings
}
