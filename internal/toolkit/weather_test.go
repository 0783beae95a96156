package toolkit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestNormalizeCity(t *testing.T) {
	tests := []struct {
		in          string
		wantQuery   string
		wantCountry string
	}{
		{"Москва", "Moscow, Russia", "Russia"},
		{"  спб  ", "Saint Petersburg, Russia", "Russia"},
		{"ЛОНДОН", "London, UK", "UK"},
		{"Minsk", "Minsk", ""},
		{"Springfield", "Springfield", ""},
	}
	for _, tc := range tests {
		query, country := normalizeCity(tc.in)
		if query != tc.wantQuery || country != tc.wantCountry {
			t.Errorf("normalizeCity(%q) = (%q, %q), want (%q, %q)",
				tc.in, query, country, tc.wantQuery, tc.wantCountry)
		}
	}
}

func TestChooseCandidate_ExpectedCountry(t *testing.T) {
	candidates := []geoCandidate{
		{Name: "Minsk", Country: "United States", CountryCode: "US", Population: 500},
		{Name: "Minsk", Country: "Belarus", CountryCode: "BY", Population: 2_000_000},
	}
	got := chooseCandidate(candidates, "Belarus")
	if got.CountryCode != "BY" {
		t.Errorf("chooseCandidate picked %s/%s, want BY", got.Name, got.CountryCode)
	}
}

func TestChooseCandidate_CountryCodeMatch(t *testing.T) {
	// Country name spelled differently than the alias table; the ISO code
	// still matches.
	candidates := []geoCandidate{
		{Name: "London", Country: "Canada", CountryCode: "CA"},
		{Name: "London", Country: "United Kingdom", CountryCode: "GB"},
	}
	got := chooseCandidate(candidates, "UK")
	if got.CountryCode != "GB" {
		t.Errorf("chooseCandidate picked %s/%s, want GB", got.Name, got.CountryCode)
	}
}

func TestChooseCandidate_MajorCityPreferred(t *testing.T) {
	candidates := []geoCandidate{
		{Name: "Springfield", Country: "United States", CountryCode: "US", Population: 100_000},
		{Name: "Springfield", Country: "United States", CountryCode: "US", Population: 1_500_000},
	}
	got := chooseCandidate(candidates, "")
	if got.Population != 1_500_000 {
		t.Errorf("chooseCandidate picked population %d, want the large city", got.Population)
	}
}

func TestChooseCandidate_CapitalPreferred(t *testing.T) {
	candidates := []geoCandidate{
		{Name: "Smalltown", Country: "Nowhere", Population: 100},
		{Name: "Capitaltown", Country: "Nowhere", Admin1: "Capital Region", Population: 200},
	}
	got := chooseCandidate(candidates, "")
	if got.Name != "Capitaltown" {
		t.Errorf("chooseCandidate picked %s, want Capitaltown", got.Name)
	}
}

func TestChooseCandidate_FirstAsFallback(t *testing.T) {
	candidates := []geoCandidate{
		{Name: "First", Population: 10},
		{Name: "Second", Population: 20},
	}
	got := chooseCandidate(candidates, "")
	if got.Name != "First" {
		t.Errorf("chooseCandidate picked %s, want First", got.Name)
	}
}

func TestRenderWeather_HomeCountryOmitted(t *testing.T) {
	location := geoCandidate{Name: "Москва", Country: "Russia", CountryCode: "RU"}
	forecast := &forecastResponse{}
	forecast.Current.Temperature = -5.3
	forecast.Current.WindSpeed = 12.7
	forecast.Current.WeatherCode = 71

	out := renderWeather("Москва", location, forecast)
	if !strings.Contains(out, "🌤️ Погода в Москва:") {
		t.Errorf("home country not omitted:\n%s", out)
	}
	if strings.Contains(out, "Russia") {
		t.Errorf("country leaked into header:\n%s", out)
	}
	if !strings.Contains(out, "Температура: -5.3°C") {
		t.Errorf("temperature missing:\n%s", out)
	}
	if !strings.Contains(out, "Условия: Небольшой снег") {
		t.Errorf("condition missing:\n%s", out)
	}
}

func TestRenderWeather_ForeignCountryShown(t *testing.T) {
	location := geoCandidate{Name: "London", Country: "United Kingdom", CountryCode: "GB"}
	out := renderWeather("Лондон", location, &forecastResponse{})
	if !strings.Contains(out, "🌤️ Погода в London, United Kingdom:") {
		t.Errorf("country missing for foreign city:\n%s", out)
	}
}

func TestRenderWeather_TomorrowBlock(t *testing.T) {
	location := geoCandidate{Name: "Paris", Country: "France", CountryCode: "FR"}
	forecast := &forecastResponse{}
	forecast.Daily.Time = []string{"2026-08-30", "2026-08-31"}
	forecast.Daily.TemperatureMax = []float64{25, 27.6}
	forecast.Daily.TemperatureMin = []float64{15, 16.2}
	forecast.Daily.WeatherCode = []int{0, 3}

	out := renderWeather("Париж", location, forecast)
	if !strings.Contains(out, "📅 31.08.2026 (завтра):") {
		t.Errorf("tomorrow date missing:\n%s", out)
	}
	if !strings.Contains(out, "Температура: 16°C / 28°C") {
		t.Errorf("tomorrow temperatures missing:\n%s", out)
	}
	if !strings.Contains(out, "Условия: Пасмурно") {
		t.Errorf("tomorrow condition missing:\n%s", out)
	}
}

func TestRenderWeather_UnknownConditionCode(t *testing.T) {
	forecast := &forecastResponse{}
	forecast.Current.WeatherCode = 42
	out := renderWeather("X", geoCandidate{Name: "X"}, forecast)
	if !strings.Contains(out, "Условия: Неизвестно") {
		t.Errorf("unknown code not handled:\n%s", out)
	}
}

const geocodeFixture = `{"results":[
  {"name":"Minsk","latitude":53.9,"longitude":27.57,"country":"Belarus","country_code":"BY","admin1":"Minsk City","population":1995471}
]}`

const forecastFixture = `{
  "current":{"temperature_2m":18.4,"wind_speed_10m":9.1,"weather_code":2},
  "daily":{
    "time":["2026-08-30","2026-08-31"],
    "temperature_2m_max":[21.0,23.5],
    "temperature_2m_min":[12.0,13.1],
    "weather_code":[2,61]
  }
}`

func newWeatherServer(t *testing.T, geocodeBody string, forecastCalls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/geocode":
			if got := r.URL.Query().Get("count"); got != "15" {
				t.Errorf("geocode count = %q, want 15", got)
			}
			fmt.Fprint(w, geocodeBody)
		case "/forecast":
			if forecastCalls != nil {
				atomic.AddInt32(forecastCalls, 1)
			}
			if got := r.URL.Query().Get("forecast_days"); got != "2" {
				t.Errorf("forecast_days = %q, want 2", got)
			}
			fmt.Fprint(w, forecastFixture)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
}

func newWeatherTool(srv *httptest.Server) *WeatherTool {
	return &WeatherTool{
		client:      srv.Client(),
		geocodeURL:  srv.URL + "/geocode",
		forecastURL: srv.URL + "/forecast",
		log:         zerolog.Nop(),
	}
}

func TestWeather_Execute(t *testing.T) {
	srv := newWeatherServer(t, geocodeFixture, nil)
	defer srv.Close()
	tool := newWeatherTool(srv)

	res, err := tool.Execute(context.Background(), map[string]interface{}{"city": "минск"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !res.Success {
		t.Fatalf("Execute success = false, output: %s", res.Output)
	}
	if !strings.Contains(res.Output, "Погода в Minsk, Belarus:") {
		t.Errorf("header wrong:\n%s", res.Output)
	}
	if !strings.Contains(res.Output, "Температура: 18.4°C") {
		t.Errorf("current temperature missing:\n%s", res.Output)
	}
	if !strings.Contains(res.Output, "31.08.2026 (завтра)") {
		t.Errorf("tomorrow block missing:\n%s", res.Output)
	}
}

func TestWeather_CityNotFound(t *testing.T) {
	var forecastCalls int32
	srv := newWeatherServer(t, `{"results":[]}`, &forecastCalls)
	defer srv.Close()
	tool := newWeatherTool(srv)

	res, err := tool.Execute(context.Background(), map[string]interface{}{"city": "Нигдеград"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Success {
		t.Fatal("Execute success = true for unknown city")
	}
	if res.Output != "❌ Город 'Нигдеград' не найден. Проверьте название." {
		t.Errorf("output = %q", res.Output)
	}
	if atomic.LoadInt32(&forecastCalls) != 0 {
		t.Error("forecast endpoint called despite empty geocode answer")
	}
}

func TestWeather_GeocodeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	tool := &WeatherTool{
		client:      srv.Client(),
		geocodeURL:  srv.URL,
		forecastURL: srv.URL,
		log:         zerolog.Nop(),
	}

	res, err := tool.Execute(context.Background(), map[string]interface{}{"city": "Москва"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Success || !strings.HasPrefix(res.Output, "❌ Ошибка при запросе погоды:") {
		t.Errorf("output = %q", res.Output)
	}
}
