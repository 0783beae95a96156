package toolkit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newCryptoTool(srv *httptest.Server) *CryptoPriceTool {
	return &CryptoPriceTool{client: srv.Client(), endpoint: srv.URL, log: zerolog.Nop()}
}

func TestCryptoPrice_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "bitcoin" {
			t.Errorf("ids = %q, want bitcoin", got)
		}
		if got := r.URL.Query().Get("include_24hr_change"); got != "true" {
			t.Errorf("include_24hr_change = %q, want true", got)
		}
		fmt.Fprint(w, `{"bitcoin":{"usd":50000.0,"usd_24h_change":2.5}}`)
	}))
	defer srv.Close()

	res, err := newCryptoTool(srv).Execute(context.Background(), map[string]interface{}{"crypto_id": "Bitcoin"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !res.Success {
		t.Fatalf("Execute success = false, output: %s", res.Output)
	}
	want := "💰 BITCOIN:\nЦена: 50,000.00 USD\nИзменение за 24ч: 📈 +2.50%"
	if res.Output != want {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
}

func TestCryptoPrice_NegativeChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ethereum":{"eur":1850.42,"eur_24h_change":-3.17}}`)
	}))
	defer srv.Close()

	res, err := newCryptoTool(srv).Execute(context.Background(), map[string]interface{}{
		"crypto_id": "ethereum",
		"currency":  "EUR",
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(res.Output, "📉 -3.17%") {
		t.Errorf("negative change not marked:\n%s", res.Output)
	}
	if !strings.Contains(res.Output, "1,850.42 EUR") {
		t.Errorf("price formatting wrong:\n%s", res.Output)
	}
}

func TestCryptoPrice_UnknownAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	res, err := newCryptoTool(srv).Execute(context.Background(), map[string]interface{}{"crypto_id": "nosuchcoin"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Success {
		t.Fatal("Execute success = true for unknown asset")
	}
	want := "❌ Криптовалюта 'nosuchcoin' не найдена. Проверьте правильность названия (например: bitcoin, ethereum)"
	if res.Output != want {
		t.Errorf("output = %q", res.Output)
	}
}

func TestCryptoPrice_UnsupportedCurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bitcoin":{"usd":50000.0}}`)
	}))
	defer srv.Close()

	res, err := newCryptoTool(srv).Execute(context.Background(), map[string]interface{}{
		"crypto_id": "bitcoin",
		"currency":  "xyz",
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Output != "❌ Валюта 'xyz' не поддерживается" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestCryptoPrice_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	res, err := newCryptoTool(srv).Execute(context.Background(), map[string]interface{}{"crypto_id": "bitcoin"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Success || !strings.HasPrefix(res.Output, "❌ Ошибка при запросе курса:") {
		t.Errorf("output = %q", res.Output)
	}
}
