package ledger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmdatafocus/vehicle_integrity/utils"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{
		BaseURL:         srv.URL,
		APIKey:          "secret",
		RateLimitPerMin: 60000,
		Timeout:         5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestGetRecordByVin_WrappedPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/vehicles/VIN123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "secret" {
			t.Errorf("expected api key header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"vin":"VIN123","plateNumber":"ABC 123","make":"Toyota","year":"2020","txId":"tx-1","timestamp":"2024-05-01T10:00:00Z"}}`))
	})

	rec, err := c.GetRecordByVin(context.Background(), "VIN123")
	if err != nil {
		t.Fatalf("GetRecordByVin: %v", err)
	}
	if rec.Vin != "VIN123" || rec.PlateNumber != "ABC 123" || rec.Make != "Toyota" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Year != 2020 {
		t.Fatalf("expected year 2020, got %d", rec.Year)
	}
	if rec.TxId != "tx-1" || rec.Timestamp == nil {
		t.Fatalf("expected provenance, got txId=%q ts=%v", rec.TxId, rec.Timestamp)
	}
}

func TestGetRecordByVin_BarePayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"vin":"VIN9","year":2019,"timestamp":1714557600}`))
	})

	rec, err := c.GetRecordByVin(context.Background(), "VIN9")
	if err != nil {
		t.Fatalf("GetRecordByVin: %v", err)
	}
	if rec.Year != 2019 {
		t.Fatalf("expected 2019, got %d", rec.Year)
	}
	if rec.Timestamp == nil || rec.Timestamp.Unix() != 1714557600 {
		t.Fatalf("unexpected timestamp %v", rec.Timestamp)
	}
}

func TestGetRecordByVin_NotOnLedger(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"404", http.StatusNotFound, `{"error":"not found"}`},
		{"chaincode missing key", http.StatusInternalServerError, `{"error":"vehicle VIN1 does not exist"}`},
		{"null data", http.StatusOK, `{"data":null}`},
		{"empty vin", http.StatusOK, `{"vin":""}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.GetRecordByVin(context.Background(), "VIN1")
			if !errors.Is(err, utils.ErrorNotOnLedger) {
				t.Fatalf("expected ErrorNotOnLedger, got %v", err)
			}
		})
	}
}

func TestGetRecordByVin_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("peer unavailable"))
	})
	_, err := c.GetRecordByVin(context.Background(), "VIN1")
	if err == nil || errors.Is(err, utils.ErrorNotOnLedger) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestGetRecordByVin_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"vin":"VIN1"}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetRecordByVin(ctx, "VIN1"); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}
