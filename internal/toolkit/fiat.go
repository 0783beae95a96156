package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/rs/zerolog"
)

const (
	fiatPrimaryEndpoint  = "https://api.exchangerate.host/latest"
	fiatFallbackEndpoint = "https://api.exchangerate-api.com/v4/latest"
)

type primaryRatesResponse struct {
	Success bool               `json:"success"`
	Rates   map[string]float64 `json:"rates"`
	Date    string             `json:"date"`
}

type fallbackRatesResponse struct {
	Rates map[string]float64 `json:"rates"`
	Date  string             `json:"date"`
}

// FiatRateTool converts between fiat currencies, falling back to a second
// provider when the primary one fails or lacks the requested symbol.
type FiatRateTool struct {
	client      *http.Client
	primaryURL  string
	fallbackURL string
	log         zerolog.Logger
}

func NewFiatRateTool(deps Deps) *FiatRateTool {
	return &FiatRateTool{
		client:      deps.Client,
		primaryURL:  fiatPrimaryEndpoint,
		fallbackURL: fiatFallbackEndpoint,
		log:         deps.Logger.With().Str("tool", "get_fiat_currency").Logger(),
	}
}

func (t *FiatRateTool) Name() string { return "get_fiat_currency" }

func (t *FiatRateTool) Description() string {
	return "Get the exchange rate between two fiat currencies (e.g. USD to RUB) with converted amounts for 100 and 1000 units. Output is in Russian."
}

func (t *FiatRateTool) Schema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"from_currency": map[string]interface{}{
				"type":        "string",
				"description": "Source currency code, e.g. \"USD\", \"EUR\"",
			},
			"to_currency": map[string]interface{}{
				"type":        "string",
				"description": "Target currency code, e.g. \"RUB\", \"JPY\"",
			},
		},
		Required: []string{"from_currency", "to_currency"},
	}
}

func (t *FiatRateTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	fromRaw, err := stringParam(params, "from_currency")
	if err != nil {
		return failure("Ошибка: %v", err)
	}
	toRaw, err := stringParam(params, "to_currency")
	if err != nil {
		return failure("Ошибка: %v", err)
	}
	from := strings.ToUpper(strings.TrimSpace(fromRaw))
	to := strings.ToUpper(strings.TrimSpace(toRaw))

	t.log.Info().Str("from", from).Str("to", to).Msg("requesting rate")

	rate, date, err := t.lookupRate(ctx, from, to)
	if err != nil {
		var notSupported *currencyNotSupportedError
		switch {
		case errors.As(err, &notSupported):
			t.log.Warn().Str("from", from).Str("to", to).Msg("currency not supported")
			return failure("Валюта '%s' не найдена или не поддерживается. Проверьте правильность кода валюты.", toRaw)
		case isTimeout(err):
			t.log.Error().Err(err).Str("from", from).Str("to", to).Msg("rate request timed out")
			return failure("Превышено время ожидания при запросе курса")
		default:
			t.log.Error().Err(err).Str("from", from).Str("to", to).Msg("rate request failed")
			return failure("Ошибка при запросе курса: %v", err)
		}
	}

	if date == "" {
		date = "неизвестно"
	}

	t.log.Info().Str("from", from).Str("to", to).Float64("rate", rate).Msg("rate received")
	return success(fmt.Sprintf(
		"💱 Курс валют:\n1 %s = %.4f %s\n100 %s = %.2f %s\n1000 %s = %.2f %s\nДата: %s",
		from, rate, to,
		from, 100*rate, to,
		from, 1000*rate, to,
		date,
	))
}

type currencyNotSupportedError struct {
	currency string
}

func (e *currencyNotSupportedError) Error() string {
	return fmt.Sprintf("currency %s not supported", e.currency)
}

// lookupRate tries the primary provider first; when it reports failure or
// omits the target symbol, the fallback provider is consulted before giving up.
func (t *FiatRateTool) lookupRate(ctx context.Context, from, to string) (rate float64, date string, err error) {
	primary, primaryErr := t.fetchPrimary(ctx, from, to)
	if primaryErr == nil && primary.Success {
		if rate, ok := primary.Rates[to]; ok {
			return rate, primary.Date, nil
		}
	}
	if primaryErr != nil {
		t.log.Warn().Err(primaryErr).Msg("primary rate provider failed, trying fallback")
	}

	fallback, fallbackErr := t.fetchFallback(ctx, from)
	if fallbackErr != nil {
		if primaryErr != nil {
			return 0, "", primaryErr
		}
		return 0, "", fallbackErr
	}
	if rate, ok := fallback.Rates[to]; ok {
		return rate, fallback.Date, nil
	}
	return 0, "", &currencyNotSupportedError{currency: to}
}

func (t *FiatRateTool) fetchPrimary(ctx context.Context, from, to string) (*primaryRatesResponse, error) {
	query := url.Values{}
	query.Set("base", from)
	query.Set("symbols", to)

	var decoded primaryRatesResponse
	if err := t.getJSON(ctx, t.primaryURL+"?"+query.Encode(), &decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

func (t *FiatRateTool) fetchFallback(ctx context.Context, from string) (*fallbackRatesResponse, error) {
	var decoded fallbackRatesResponse
	if err := t.getJSON(ctx, t.fallbackURL+"/"+from, &decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

func (t *FiatRateTool) getJSON(ctx context.Context, rawURL string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
