package adapters

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

	"github.com/holiman/uint256"

	"treasury/crypto"
	"treasury/native/oracle"
)

// OracleClient is an oracle.View backed by an HTTP view endpoint. A view is
// served at GET {endpoint}/v1/views/{feed}?asset={asset} as
//
//	{"layout": "time_price", "value": ["2024-01-01T00:00:00Z", "1050000"]}
//
// where value is the positional tuple of the layout. Timestamps are RFC3339
// or unix seconds; amounts are decimal strings.
type OracleClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewOracleClient constructs a client for endpoint.
func NewOracleClient(endpoint, apiKey string, timeout time.Duration) (*OracleClient, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("oracle endpoint required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("oracle endpoint: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OracleClient{endpoint: endpoint, apiKey: apiKey, client: &http.Client{Timeout: timeout}}, nil
}

type viewResponse struct {
	Layout string   `json:"layout"`
	Value  []string `json:"value"`
}

// GetPrice implements oracle.View.
func (c *OracleClient) GetPrice(ctx context.Context, feed crypto.Address, asset string) (oracle.Payload, error) {
	u := fmt.Sprintf("%s/v1/views/%s?asset=%s", c.endpoint, url.PathEscape(feed.String()), url.QueryEscape(asset))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle view %s: %w", feed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, oracle.ErrNoView
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("oracle view %s: status %d: %s", feed, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var view viewResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&view); err != nil {
		return nil, fmt.Errorf("oracle view %s: decode: %w", feed, err)
	}
	return DecodeView(view.Layout, view.Value)
}

// DecodeView converts a positional view tuple into a typed payload.
func DecodeView(layoutName string, value []string) (oracle.Payload, error) {
	layout, err := oracle.ParseLayout(layoutName)
	if err != nil {
		return nil, err
	}
	want := map[oracle.Layout]int{oracle.LayoutTimePrice: 2, oracle.LayoutPriceTime: 2, oracle.LayoutCandle: 7}[layout]
	if len(value) != want {
		return nil, fmt.Errorf("oracle view: %s expects %d fields, got %d", layout, want, len(value))
	}
	var d tupleDecoder
	switch layout {
	case oracle.LayoutTimePrice:
		out := oracle.TimePrice{ObservedAt: d.time(value[0]), Price: d.amount(value[1])}
		return out, d.err
	case oracle.LayoutPriceTime:
		out := oracle.PriceTime{Price: d.amount(value[0]), ObservedAt: d.time(value[1])}
		return out, d.err
	default:
		out := oracle.Candle{
			Start:  d.time(value[0]),
			End:    d.time(value[1]),
			Open:   d.amount(value[2]),
			High:   d.amount(value[3]),
			Low:    d.amount(value[4]),
			Close:  d.amount(value[5]),
			Volume: d.amount(value[6]),
		}
		return out, d.err
	}
}

// tupleDecoder keeps the first error so a tuple decodes in one expression.
type tupleDecoder struct {
	err error
}

func (d *tupleDecoder) time(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC()
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("oracle view: timestamp %q: %w", raw, err)
	}
	return ts
}

func (d *tupleDecoder) amount(raw string) *uint256.Int {
	v, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		if d.err == nil {
			d.err = fmt.Errorf("oracle view: amount %q: %w", raw, err)
		}
		return nil
	}
	return v
}
