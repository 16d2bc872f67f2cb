package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCoinGeckoSupports(t *testing.T) {
	c := NewCoinGeckoClient("http://unused", time.Millisecond, 0)

	tests := []struct {
		base, target string
		want         bool
	}{
		{"ETH", "USD", true},
		{"BTC", "EUR", true},
		{"USD", "ETH", false},
		{"ETH", "BTC", false},
		{"DOGE", "USD", false},
		{"ETH", "usd", false},
	}
	for _, tt := range tests {
		if got := c.Supports(tt.base, tt.target); got != tt.want {
			t.Errorf("Supports(%s, %s) = %v, want %v", tt.base, tt.target, got, tt.want)
		}
	}
}

func TestCoinGeckoLatestRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("ids") != "ethereum" || r.URL.Query().Get("vs_currencies") != "usd" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ethereum": {"usd": 2500.12}}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, time.Millisecond, 0)
	rate, err := client.GetRate(context.Background(), "ETH", "USD", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rate.Value.String() != "2500.12" {
		t.Errorf("rate = %s, want 2500.12", rate.Value)
	}
	if rate.Base != "ETH" || rate.Target != "USD" {
		t.Errorf("pair = %s->%s, want ETH->USD", rate.Base, rate.Target)
	}
	today := time.Now().UTC().Format("2006-01-02")
	if rate.Date.Format("2006-01-02") != today {
		t.Errorf("date = %s, want %s", rate.Date.Format("2006-01-02"), today)
	}
}

func TestCoinGeckoHistoricalRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/bitcoin/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("date") != "10-01-2024" {
			t.Errorf("date param = %s, want 10-01-2024", r.URL.Query().Get("date"))
		}
		w.Write([]byte(`{"id":"bitcoin","market_data":{"current_price":{"usd":46000.5,"eur":42000}}}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, time.Millisecond, 0)
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	rate, err := client.GetRate(context.Background(), "BTC", "EUR", &day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.Value.String() != "42000" {
		t.Errorf("rate = %s, want 42000", rate.Value)
	}
	if !rate.Date.Equal(day) {
		t.Errorf("date = %v, want %v", rate.Date, day)
	}
}

func TestCoinGeckoHistoricalMissingMarketData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"bitcoin"}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, time.Millisecond, 0)
	day := time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.GetRate(context.Background(), "BTC", "USD", &day)
	if !errors.Is(err, ErrNoRate) {
		t.Errorf("expected ErrNoRate, got %v", err)
	}
}

func TestCoinGeckoMissingPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ethereum": {}}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, time.Millisecond, 0)
	_, err := client.GetRate(context.Background(), "ETH", "USD", nil)
	if !errors.Is(err, ErrNoRate) {
		t.Errorf("expected ErrNoRate, got %v", err)
	}
}

func TestCoinGeckoUnsupportedPair(t *testing.T) {
	client := NewCoinGeckoClient("http://unused", time.Millisecond, 0)
	_, err := client.GetRate(context.Background(), "USD", "EUR", nil)
	if !errors.Is(err, ErrUnsupportedCurrency) {
		t.Errorf("expected ErrUnsupportedCurrency, got %v", err)
	}
}

func TestCoinGeckoRetryOn429(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"bitcoin": {"usd": 50000}}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, time.Millisecond, 3)
	rate, err := client.GetRate(context.Background(), "BTC", "USD", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if rate.Value.String() != "50000" {
		t.Errorf("rate = %s, want 50000", rate.Value)
	}
}

func TestCoinGeckoHistoricalRangeKeepsLastPointPerDay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/coins/ethereum/market_chart/range") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		// 2024-01-10 00:00, 2024-01-10 12:00, 2024-01-11 00:00 UTC
		w.Write([]byte(`{"prices":[[1704844800000,2300],[1704888000000,2350.5],[1704931200000,2400]]}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, time.Millisecond, 0)
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
	got, err := client.GetHistoricalRates(context.Background(), "ETH", []string{"USD"}, start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("days = %d, want 2", len(got))
	}
	if v := got["2024-01-10"]["USD"]; v.String() != "2350.5" {
		t.Errorf("2024-01-10 = %s, want 2350.5", v)
	}
	if v := got["2024-01-11"]["USD"]; v.String() != "2400" {
		t.Errorf("2024-01-11 = %s, want 2400", v)
	}
}
