package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/mmdatafocus/vehicle_integrity/utils"
)

// Client reads vehicle records from the ledger's REST gateway.
// It never submits transactions.
type Client struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	channel   string
	http      *http.Client
	ticker    *time.Ticker
}

type Options struct {
	BaseURL         string
	APIKey          string
	APIKeyHeader    string
	Channel         string
	RateLimitPerMin int64
	Timeout         time.Duration
}

// NewClientFromEnv reads LEDGER_API_BASE_URL, LEDGER_API_KEY, LEDGER_API_KEY_HEADER,
// LEDGER_CHANNEL and LEDGER_RATE_LIMIT_PER_MIN.
func NewClientFromEnv() (*Client, error) {
	opts := Options{
		BaseURL:      strings.TrimSpace(os.Getenv("LEDGER_API_BASE_URL")),
		APIKey:       strings.TrimSpace(os.Getenv("LEDGER_API_KEY")),
		APIKeyHeader: strings.TrimSpace(os.Getenv("LEDGER_API_KEY_HEADER")),
		Channel:      strings.TrimSpace(os.Getenv("LEDGER_CHANNEL")),
	}
	if v := strings.TrimSpace(os.Getenv("LEDGER_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			opts.RateLimitPerMin = n
		}
	}
	return NewClient(opts)
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("ledger api base url is empty")
	}
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = "X-API-Key"
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 600
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		apiKey:    opts.APIKey,
		apiKeyHdr: opts.APIKeyHeader,
		channel:   opts.Channel,
		http:      &http.Client{Timeout: opts.Timeout},
		ticker:    time.NewTicker(time.Minute / time.Duration(opts.RateLimitPerMin)),
	}, nil
}

// Close stops the rate limiter.
func (c *Client) Close() {
	c.ticker.Stop()
}

// gateway responses come either bare or wrapped in data/result.
type gatewayEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Result json.RawMessage `json:"result"`
}

type gatewayVehicle struct {
	Vin           string    `json:"vin"`
	PlateNumber   string    `json:"plateNumber"`
	EngineNumber  string    `json:"engineNumber"`
	ChassisNumber string    `json:"chassisNumber"`
	Make          string    `json:"make"`
	Model         string    `json:"model"`
	Year          flexInt   `json:"year"`
	Color         string    `json:"color"`
	OwnerName     string    `json:"ownerName"`
	OwnerContact  string    `json:"ownerContact"`
	TxId          string    `json:"txId"`
	Timestamp     *flexTime `json:"timestamp"`
}

// GetRecordByVin returns the ledger record for vin, or utils.ErrorNotOnLedger.
func (c *Client) GetRecordByVin(ctx context.Context, vin string) (*models.LedgerRecord, error) {
	vin = strings.TrimSpace(vin)
	if vin == "" {
		return nil, utils.ErrorNotOnLedger
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ticker.C:
	}

	endpoint := c.baseURL + "/api/v1/vehicles/" + url.PathEscape(vin)
	if c.channel != "" {
		endpoint += "?" + url.Values{"channel": {c.channel}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, utils.ErrorNotOnLedger
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		// Chaincode reports a missing key as an endorsement error.
		if strings.Contains(strings.ToLower(msg), "does not exist") {
			return nil, utils.ErrorNotOnLedger
		}
		return nil, fmt.Errorf("ledger api error %d: %s", resp.StatusCode, msg)
	}

	return decodeRecord(body)
}

func decodeRecord(body []byte) (*models.LedgerRecord, error) {
	payload := bytes.TrimSpace(body)
	var env gatewayEnvelope
	if err := json.Unmarshal(payload, &env); err == nil {
		if len(env.Data) > 0 && !isJSONNull(env.Data) {
			payload = env.Data
		} else if len(env.Result) > 0 && !isJSONNull(env.Result) {
			payload = env.Result
		}
	}
	if len(payload) == 0 || isJSONNull(payload) {
		return nil, utils.ErrorNotOnLedger
	}

	var v gatewayVehicle
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("decode ledger record: %w", err)
	}
	if strings.TrimSpace(v.Vin) == "" {
		return nil, utils.ErrorNotOnLedger
	}

	rec := &models.LedgerRecord{
		Vin:           v.Vin,
		PlateNumber:   v.PlateNumber,
		EngineNumber:  v.EngineNumber,
		ChassisNumber: v.ChassisNumber,
		Make:          v.Make,
		Model:         v.Model,
		Year:          int(v.Year),
		Color:         v.Color,
		OwnerName:     v.OwnerName,
		OwnerContact:  v.OwnerContact,
		TxId:          v.TxId,
	}
	if v.Timestamp != nil {
		ts := time.Time(*v.Timestamp)
		rec.Timestamp = &ts
	}
	return rec, nil
}

func isJSONNull(b []byte) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

// flexInt accepts 2020, "2020" and "".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*f = flexInt(n)
	return nil
}

// flexTime accepts RFC3339 strings and unix seconds.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexTime(time.Unix(secs, 0).UTC())
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q", s)
	}
	*f = flexTime(t)
	return nil
}
