package toolkit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const coinGeckoEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// CryptoPriceTool reports spot price and 24h change for a cryptocurrency
// from CoinGecko.
type CryptoPriceTool struct {
	client   *http.Client
	endpoint string
	log      zerolog.Logger
}

func NewCryptoPriceTool(deps Deps) *CryptoPriceTool {
	return &CryptoPriceTool{
		client:   deps.Client,
		endpoint: coinGeckoEndpoint,
		log:      deps.Logger.With().Str("tool", "get_crypto_price").Logger(),
	}
}

func (t *CryptoPriceTool) Name() string { return "get_crypto_price" }

func (t *CryptoPriceTool) Description() string {
	return "Get the current price and 24h change of a cryptocurrency by its CoinGecko id (e.g. \"bitcoin\", \"ethereum\"). Output is in Russian."
}

func (t *CryptoPriceTool) Schema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"crypto_id": map[string]interface{}{
				"type":        "string",
				"description": "Cryptocurrency id, e.g. \"bitcoin\", \"ethereum\"",
			},
			"currency": map[string]interface{}{
				"type":        "string",
				"description": "Target currency code (default: \"usd\")",
			},
		},
		Required: []string{"crypto_id"},
	}
}

func (t *CryptoPriceTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	cryptoID, err := stringParam(params, "crypto_id")
	if err != nil {
		return failure("Ошибка: %v", err)
	}
	cryptoID = strings.ToLower(strings.TrimSpace(cryptoID))

	currency := strings.ToLower(optionalStringParam(params, "currency"))
	if currency == "" {
		currency = "usd"
	}

	t.log.Info().Str("crypto_id", cryptoID).Str("currency", currency).Msg("requesting price")

	query := url.Values{}
	query.Set("ids", cryptoID)
	query.Set("vs_currencies", currency)
	query.Set("include_24hr_change", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return failure("Ошибка при запросе курса: %v", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			t.log.Error().Err(err).Str("crypto_id", cryptoID).Msg("price request timed out")
			return failure("Превышено время ожидания при запросе курса")
		}
		t.log.Error().Err(err).Str("crypto_id", cryptoID).Msg("price request failed")
		return failure("Ошибка при запросе курса: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		t.log.Error().Int("status", resp.StatusCode).Str("crypto_id", cryptoID).Msg("price request rejected")
		return failure("Ошибка при запросе курса: статус %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure("Ошибка при запросе курса: %v", err)
	}

	// Response keys are dynamic: {"bitcoin": {"usd": 50000, "usd_24h_change": 2.5}}
	asset := gjson.GetBytes(body, cryptoID)
	if !asset.Exists() {
		t.log.Warn().Str("crypto_id", cryptoID).Msg("asset not found")
		return failure("Криптовалюта '%s' не найдена. Проверьте правильность названия (например: bitcoin, ethereum)", cryptoID)
	}
	price := asset.Get(currency)
	if !price.Exists() {
		t.log.Warn().Str("crypto_id", cryptoID).Str("currency", currency).Msg("currency not supported")
		return failure("Валюта '%s' не поддерживается", currency)
	}
	change := asset.Get(currency + "_24h_change").Float()

	glyph := "📈"
	if change < 0 {
		glyph = "📉"
	}

	t.log.Info().Str("crypto_id", cryptoID).Float64("price", price.Float()).Msg("price received")
	return success(fmt.Sprintf(
		"💰 %s:\nЦена: %s %s\nИзменение за 24ч: %s %+.2f%%",
		strings.ToUpper(cryptoID),
		humanize.FormatFloat("#,###.##", price.Float()),
		strings.ToUpper(currency),
		glyph,
		change,
	))
}
