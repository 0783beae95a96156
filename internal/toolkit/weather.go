package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/rs/zerolog"
)

const (
	geocodingEndpoint = "https://geocoding-api.open-meteo.com/v1/search"
	forecastEndpoint  = "https://api.open-meteo.com/v1/forecast"

	geocodeCandidateCount = 15
	majorCityPopulation   = 1_000_000
	homeCountryCode       = "RU"
)

// cityAlias maps a common local-language city name to the search string the
// geocoder understands, plus the country the answer is expected to be in.
type cityAlias struct {
	query   string
	country string
}

var cityAliases = map[string]cityAlias{
	// Russian cities
	"москва":          {"Moscow, Russia", "Russia"},
	"санкт-петербург": {"Saint Petersburg, Russia", "Russia"},
	"спб":             {"Saint Petersburg, Russia", "Russia"},
	"новосибирск":     {"Novosibirsk, Russia", "Russia"},
	"екатеринбург":    {"Yekaterinburg, Russia", "Russia"},
	"казань":          {"Kazan, Russia", "Russia"},
	"нижний новгород": {"Nizhny Novgorod, Russia", "Russia"},
	"челябинск":       {"Chelyabinsk, Russia", "Russia"},
	"самара":          {"Samara, Russia", "Russia"},
	"омск":            {"Omsk, Russia", "Russia"},
	// CIS capitals
	"минск":   {"Minsk, Belarus", "Belarus"},
	"киев":    {"Kyiv, Ukraine", "Ukraine"},
	"київ":    {"Kyiv, Ukraine", "Ukraine"},
	"алматы":  {"Almaty, Kazakhstan", "Kazakhstan"},
	"астана":  {"Astana, Kazakhstan", "Kazakhstan"},
	"ташкент": {"Tashkent, Uzbekistan", "Uzbekistan"},
	"бишкек":  {"Bishkek, Kyrgyzstan", "Kyrgyzstan"},
	"душанбе": {"Dushanbe, Tajikistan", "Tajikistan"},
	"ашхабад": {"Ashgabat, Turkmenistan", "Turkmenistan"},
	// Popular foreign cities
	"лондон":       {"London, UK", "UK"},
	"париж":        {"Paris, France", "France"},
	"берлин":       {"Berlin, Germany", "Germany"},
	"мадрид":       {"Madrid, Spain", "Spain"},
	"рим":          {"Rome, Italy", "Italy"},
	"амстердам":    {"Amsterdam, Netherlands", "Netherlands"},
	"варшава":      {"Warsaw, Poland", "Poland"},
	"прага":        {"Prague, Czech Republic", "Czech Republic"},
	"вена":         {"Vienna, Austria", "Austria"},
	"токио":        {"Tokyo, Japan", "Japan"},
	"пекин":        {"Beijing, China", "China"},
	"шанхай":       {"Shanghai, China", "China"},
	"дубай":        {"Dubai, UAE", "UAE"},
	"нью-йорк":     {"New York, USA", "USA"},
	"лос-анджелес": {"Los Angeles, USA", "USA"},
	"чикаго":       {"Chicago, USA", "USA"},
	"торонто":      {"Toronto, Canada", "Canada"},
	"сидней":       {"Sydney, Australia", "Australia"},
	"мельбурн":     {"Melbourne, Australia", "Australia"},
}

// countryCodes resolves the alias table's country names to ISO codes for
// candidate matching.
var countryCodes = map[string]string{
	"Russia":         "RU",
	"Belarus":        "BY",
	"Ukraine":        "UA",
	"Kazakhstan":     "KZ",
	"Uzbekistan":     "UZ",
	"Kyrgyzstan":     "KG",
	"Tajikistan":     "TJ",
	"Turkmenistan":   "TM",
	"UK":             "GB",
	"France":         "FR",
	"Germany":        "DE",
	"Spain":          "ES",
	"Italy":          "IT",
	"Netherlands":    "NL",
	"Poland":         "PL",
	"Czech Republic": "CZ",
	"Austria":        "AT",
	"Japan":          "JP",
	"China":          "CN",
	"UAE":            "AE",
	"USA":            "US",
	"Canada":         "CA",
	"Australia":      "AU",
}

// weatherConditions maps Open-Meteo WMO codes to Russian descriptions.
var weatherConditions = map[int]string{
	0:  "Ясно",
	1:  "Преимущественно ясно",
	2:  "Переменная облачность",
	3:  "Пасмурно",
	45: "Туман",
	48: "Иней",
	51: "Легкая морось",
	53: "Умеренная морось",
	55: "Сильная морось",
	56: "Легкая ледяная морось",
	57: "Сильная ледяная морось",
	61: "Небольшой дождь",
	63: "Умеренный дождь",
	65: "Сильный дождь",
	66: "Ледяной дождь",
	67: "Сильный ледяной дождь",
	71: "Небольшой снег",
	73: "Умеренный снег",
	75: "Сильный снег",
	77: "Снежные зерна",
	80: "Небольшой ливень",
	81: "Умеренный ливень",
	82: "Сильный ливень",
	85: "Небольшой снегопад",
	86: "Сильный снегопад",
	95: "Гроза",
	96: "Гроза с градом",
	99: "Сильная гроза с градом",
}

type geoCandidate struct {
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Admin1      string  `json:"admin1"`
	Population  int64   `json:"population"`
}

type geocodeResponse struct {
	Results []geoCandidate `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Time           []string  `json:"time"`
		TemperatureMax []float64 `json:"temperature_2m_max"`
		TemperatureMin []float64 `json:"temperature_2m_min"`
		WeatherCode    []int     `json:"weather_code"`
	} `json:"daily"`
}

// WeatherTool reports current conditions and the tomorrow forecast for a
// city, geocoding the name first.
type WeatherTool struct {
	client      *http.Client
	geocodeURL  string
	forecastURL string
	log         zerolog.Logger
}

func NewWeatherTool(deps Deps) *WeatherTool {
	return &WeatherTool{
		client:      deps.Client,
		geocodeURL:  geocodingEndpoint,
		forecastURL: forecastEndpoint,
		log:         deps.Logger.With().Str("tool", "get_weather").Logger(),
	}
}

func (t *WeatherTool) Name() string { return "get_weather" }

func (t *WeatherTool) Description() string {
	return "Get current weather and tomorrow's forecast for a city (accepts Russian or English city names). Output is in Russian."
}

func (t *WeatherTool) Schema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"city": map[string]interface{}{
				"type":        "string",
				"description": "City name, e.g. \"Moscow\", \"Москва\", \"London\"",
			},
		},
		Required: []string{"city"},
	}
}

func (t *WeatherTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	city, err := stringParam(params, "city")
	if err != nil {
		return failure("Ошибка: %v", err)
	}

	searchQuery, expectedCountry := normalizeCity(city)
	t.log.Info().Str("city", city).Str("query", searchQuery).Str("expected_country", expectedCountry).Msg("geocoding")

	candidates, err := t.geocode(ctx, searchQuery)
	if err != nil {
		return t.transportFailure(err, "geocode")
	}
	if len(candidates) == 0 {
		t.log.Warn().Str("city", city).Msg("city not found")
		return failure("Город '%s' не найден. Проверьте название.", city)
	}

	location := chooseCandidate(candidates, expectedCountry)
	t.log.Info().
		Str("name", location.Name).
		Str("country", location.Country).
		Float64("lat", location.Latitude).
		Float64("lon", location.Longitude).
		Msg("location selected")

	forecast, err := t.forecast(ctx, location.Latitude, location.Longitude)
	if err != nil {
		return t.transportFailure(err, "forecast")
	}

	return success(renderWeather(city, location, forecast))
}

func (t *WeatherTool) transportFailure(err error, phase string) (*tool.ToolResult, error) {
	if isTimeout(err) {
		t.log.Error().Err(err).Str("phase", phase).Msg("weather request timed out")
		return failure("Превышено время ожидания при запросе погоды")
	}
	t.log.Error().Err(err).Str("phase", phase).Msg("weather request failed")
	return failure("Ошибка при запросе погоды: %v", err)
}

// normalizeCity resolves local-language aliases to a geocoder-friendly
// search string and the country the result should be in.
func normalizeCity(city string) (query, expectedCountry string) {
	key := strings.ToLower(strings.TrimSpace(city))
	if alias, ok := cityAliases[key]; ok {
		return alias.query, alias.country
	}
	return city, ""
}

// chooseCandidate picks the best geocoding candidate: expected-country match
// first, then capitals or cities above one million people, then the
// provider's first answer.
func chooseCandidate(candidates []geoCandidate, expectedCountry string) geoCandidate {
	if expectedCountry != "" {
		wantCode := countryCodes[expectedCountry]
		wantName := strings.ToLower(expectedCountry)
		for _, c := range candidates {
			if strings.Contains(strings.ToLower(c.Country), wantName) {
				return c
			}
			if wantCode != "" && strings.EqualFold(c.CountryCode, wantCode) {
				return c
			}
		}
	}
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Admin1), "capital") || c.Population > majorCityPopulation {
			return c
		}
	}
	return candidates[0]
}

func (t *WeatherTool) geocode(ctx context.Context, name string) ([]geoCandidate, error) {
	query := url.Values{}
	query.Set("name", name)
	query.Set("count", strconv.Itoa(geocodeCandidateCount))
	query.Set("language", "en")
	query.Set("format", "json")

	var decoded geocodeResponse
	if err := t.getJSON(ctx, t.geocodeURL+"?"+query.Encode(), &decoded); err != nil {
		return nil, err
	}
	return decoded.Results, nil
}

func (t *WeatherTool) forecast(ctx context.Context, lat, lon float64) (*forecastResponse, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("current", "temperature_2m,wind_speed_10m,weather_code")
	query.Set("daily", "temperature_2m_max,temperature_2m_min,weather_code")
	query.Set("timezone", "auto")
	query.Set("forecast_days", "2")

	var decoded forecastResponse
	if err := t.getJSON(ctx, t.forecastURL+"?"+query.Encode(), &decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

func (t *WeatherTool) getJSON(ctx context.Context, rawURL string, target interface{}) error {
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

func conditionText(code int) string {
	if text, ok := weatherConditions[code]; ok {
		return text
	}
	return "Неизвестно"
}

func renderWeather(requested string, location geoCandidate, forecast *forecastResponse) string {
	name := location.Name
	if name == "" {
		name = requested
	}
	locationStr := name
	// The home country is implied and omitted; everything else is spelled out.
	if location.Country != "" && !strings.EqualFold(location.CountryCode, homeCountryCode) {
		locationStr += ", " + location.Country
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🌤️ Погода в %s:\n\n", locationStr)
	fmt.Fprintf(&b, "📅 Сегодня:\n")
	fmt.Fprintf(&b, "Температура: %.1f°C\n", forecast.Current.Temperature)
	fmt.Fprintf(&b, "Скорость ветра: %.1f км/ч\n", forecast.Current.WindSpeed)
	fmt.Fprintf(&b, "Условия: %s", conditionText(forecast.Current.WeatherCode))

	daily := forecast.Daily
	if len(daily.Time) > 1 && len(daily.TemperatureMax) > 1 && len(daily.TemperatureMin) > 1 && len(daily.WeatherCode) > 1 {
		dateStr := "завтра"
		if parsed, err := time.Parse("2006-01-02", daily.Time[1]); err == nil {
			dateStr = parsed.Format("02.01.2006")
		}
		fmt.Fprintf(&b, "\n\n📅 %s (завтра):\n", dateStr)
		fmt.Fprintf(&b, "Температура: %.0f°C / %.0f°C\n", daily.TemperatureMin[1], daily.TemperatureMax[1])
		fmt.Fprintf(&b, "Условия: %s", conditionText(daily.WeatherCode[1]))
	}
	return b.String()
}
