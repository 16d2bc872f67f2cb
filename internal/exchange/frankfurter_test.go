package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFrankfurterLatestRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("from") != "USD" || r.URL.Query().Get("to") != "EUR" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"amount":1.0,"base":"USD","date":"2024-01-10","rates":{"EUR":0.9134}}`))
	}))
	defer server.Close()

	client := NewFrankfurterClient(server.URL, 0, time.Millisecond)
	rate, err := client.GetRate(context.Background(), "USD", "EUR", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.Value.String() != "0.9134" {
		t.Errorf("rate = %s, want 0.9134", rate.Value)
	}
	if rate.Date.Format("2006-01-02") != "2024-01-10" {
		t.Errorf("date = %s, want 2024-01-10", rate.Date.Format("2006-01-02"))
	}
}

func TestFrankfurterHistoricalRateUsesQuotedDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2024-01-13" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		// Saturday request answered with Friday's fixing.
		w.Write([]byte(`{"amount":1.0,"base":"EUR","date":"2024-01-12","rates":{"GBP":0.86}}`))
	}))
	defer server.Close()

	client := NewFrankfurterClient(server.URL, 0, time.Millisecond)
	day := time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC)
	rate, err := client.GetRate(context.Background(), "EUR", "GBP", &day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.Date.Format("2006-01-02") != "2024-01-12" {
		t.Errorf("date = %s, want 2024-01-12", rate.Date.Format("2006-01-02"))
	}
}

func TestFrankfurterNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := NewFrankfurterClient(server.URL, 0, time.Millisecond)
	day := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.GetRate(context.Background(), "USD", "EUR", &day)
	if !errors.Is(err, ErrNoRate) {
		t.Errorf("expected ErrNoRate, got %v", err)
	}
}

func TestFrankfurterSupports(t *testing.T) {
	c := NewFrankfurterClient("http://unused", 0, time.Millisecond)
	if !c.Supports("USD", "JPY") {
		t.Error("expected USD->JPY supported")
	}
	if c.Supports("USD", "USD") {
		t.Error("expected identical pair unsupported")
	}
	if c.Supports("ETH", "USD") || c.Supports("USD", "BTC") {
		t.Error("expected crypto pairs unsupported")
	}
}

func TestFrankfurterHistoricalSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2024-01-02..2024-01-03" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("to") != "EUR,GBP" {
			t.Errorf("to = %s, want EUR,GBP", r.URL.Query().Get("to"))
		}
		w.Write([]byte(`{"base":"USD","rates":{"2024-01-02":{"EUR":0.91,"GBP":0.79},"2024-01-03":{"EUR":0.915,"GBP":0.788}}}`))
	}))
	defer server.Close()

	client := NewFrankfurterClient(server.URL, 0, time.Millisecond)
	got, err := client.GetHistoricalRates(context.Background(), "USD", []string{"EUR", "GBP"},
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := got["2024-01-03"]["GBP"]; v.String() != "0.788" {
		t.Errorf("2024-01-03 GBP = %s, want 0.788", v)
	}
	if len(got) != 2 {
		t.Errorf("days = %d, want 2", len(got))
	}
}
