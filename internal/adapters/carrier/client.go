package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/oshokin/sos-engine/internal/config"
	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/service/location"
)

// indiaMCC is the mobile country code of India.
const indiaMCC = "405"

// Client defaults.
const (
	DefaultRatePerSecond = 5
	DefaultBurst         = 5
	DefaultHTTPTimeout   = 10 * time.Second
	maxResponseSize      = 1 << 20
)

var (
	// ErrUnconfigured is returned for an operator without an API key.
	ErrUnconfigured = errors.New("carrier API not configured")
	// errUnexpectedStatus wraps non-2xx responses.
	errUnexpectedStatus = errors.New("unexpected carrier response status")
)

// profile describes one operator's API dialect.
type profile struct {
	mnc             string
	defaultAccuracy float64
	// locate builds the location request.
	locate func(ctx context.Context, baseURL, apiKey, msisdn string) (*http.Request, error)
	// decode converts the location response body.
	decode func(body []byte) (alert.Fix, error)
	// authorize sets the credentials header on any request.
	authorize func(r *http.Request, apiKey string)
}

// profiles holds every supported operator dialect.
//
//nolint:gochecknoglobals // Immutable lookup table.
var profiles = map[location.Operator]profile{
	location.OperatorJio: {
		mnc:             "857",
		defaultAccuracy: 1000,
		locate: func(ctx context.Context, baseURL, apiKey, msisdn string) (*http.Request, error) {
			return jsonRequest(ctx, baseURL+"/location", map[string]any{
				"phoneNumber": msisdn,
				"service":     "emergency",
			})
		},
		decode: func(body []byte) (alert.Fix, error) {
			var resp struct {
				Latitude  *float64 `json:"latitude"`
				Longitude *float64 `json:"longitude"`
				Accuracy  float64  `json:"accuracy"`
				CellID    string   `json:"cellId"`
				LAC       string   `json:"lac"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return alert.Fix{}, err
			}

			return fixOf(resp.Latitude, resp.Longitude, resp.Accuracy, resp.CellID, resp.LAC)
		},
		authorize: func(r *http.Request, apiKey string) {
			r.Header.Set("Authorization", "Bearer "+apiKey)
		},
	},
	location.OperatorAirtel: {
		mnc:             "845",
		defaultAccuracy: 1500,
		locate: func(ctx context.Context, baseURL, apiKey, msisdn string) (*http.Request, error) {
			return jsonRequest(ctx, baseURL+"/emergency/location", map[string]any{
				"msisdn":      msisdn,
				"requestType": "emergency",
			})
		},
		decode: func(body []byte) (alert.Fix, error) {
			var resp struct {
				Location struct {
					Lat      *float64 `json:"lat"`
					Lng      *float64 `json:"lng"`
					Accuracy float64  `json:"accuracy"`
				} `json:"location"`
				CellInfo *struct {
					CellID string `json:"cellId"`
					LAC    string `json:"lac"`
				} `json:"cellInfo"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return alert.Fix{}, err
			}

			var cellID, lac string
			if resp.CellInfo != nil {
				cellID, lac = resp.CellInfo.CellID, resp.CellInfo.LAC
			}

			return fixOf(resp.Location.Lat, resp.Location.Lng, resp.Location.Accuracy, cellID, lac)
		},
		authorize: func(r *http.Request, apiKey string) {
			r.Header.Set("X-API-Key", apiKey)
		},
	},
	location.OperatorVI: {
		mnc:             "866",
		defaultAccuracy: 2000,
		locate: func(ctx context.Context, baseURL, apiKey, msisdn string) (*http.Request, error) {
			query := url.Values{}
			query.Set("msisdn", msisdn)
			query.Set("emergency", "true")

			return http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/subscriber/location?"+query.Encode(), nil)
		},
		decode: func(body []byte) (alert.Fix, error) {
			var resp struct {
				Coordinates struct {
					Latitude  *float64 `json:"latitude"`
					Longitude *float64 `json:"longitude"`
				} `json:"coordinates"`
				Accuracy  float64 `json:"accuracy"`
				CellTower *struct {
					ID  string `json:"id"`
					LAC string `json:"lac"`
				} `json:"cellTower"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return alert.Fix{}, err
			}

			var cellID, lac string
			if resp.CellTower != nil {
				cellID, lac = resp.CellTower.ID, resp.CellTower.LAC
			}

			return fixOf(resp.Coordinates.Latitude, resp.Coordinates.Longitude, resp.Accuracy, cellID, lac)
		},
		authorize: func(r *http.Request, apiKey string) {
			r.Header.Set("Authorization", "ApiKey "+apiKey)
		},
	},
	location.OperatorBSNL: {
		mnc:             "827",
		defaultAccuracy: 3000,
		locate: func(ctx context.Context, baseURL, apiKey, msisdn string) (*http.Request, error) {
			return jsonRequest(ctx, baseURL+"/emergency-location", map[string]any{
				"mobile_number": msisdn,
				"request_type":  "emergency_services",
			})
		},
		decode: func(body []byte) (alert.Fix, error) {
			var resp struct {
				Lat              *float64 `json:"lat"`
				Lon              *float64 `json:"lon"`
				Precision        float64  `json:"precision"`
				CellID           string   `json:"cell_id"`
				LocationAreaCode string   `json:"location_area_code"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return alert.Fix{}, err
			}

			return fixOf(resp.Lat, resp.Lon, resp.Precision, resp.CellID, resp.LocationAreaCode)
		},
		authorize: func(r *http.Request, apiKey string) {
			r.Header.Set("API-Key", apiKey)
		},
	},
}

// errMissingCoordinates is returned when a response has no position.
var errMissingCoordinates = errors.New("response has no coordinates")

func fixOf(lat, lon *float64, accuracy float64, cellID, lac string) (alert.Fix, error) {
	if lat == nil || lon == nil {
		return alert.Fix{}, errMissingCoordinates
	}

	return alert.Fix{
		Latitude:  *lat,
		Longitude: *lon,
		Accuracy:  accuracy,
		CellID:    cellID,
		LAC:       lac,
	}, nil
}

func jsonRequest(ctx context.Context, endpoint string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	return req, nil
}

// Client is the API client of one operator.
type Client struct {
	operator location.Operator
	profile  profile
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	now      func() time.Time
}

// NewClient creates a client for the operator. It returns ErrUnconfigured
// when the operator is unknown or has no API key.
func NewClient(op location.Operator, cfg config.CarrierConfig, httpClient *http.Client) (*Client, error) {
	p, ok := profiles[op]
	if !ok || cfg.APIKey == "" || cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrUnconfigured)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	limit := cfg.RatePerSecond
	if limit <= 0 {
		limit = DefaultRatePerSecond
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}

	return &Client{
		operator: op,
		profile:  p,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		http:     httpClient,
		limiter:  rate.NewLimiter(rate.Limit(limit), burst),
		now:      time.Now,
	}, nil
}

// NewClients builds a client for every configured operator, skipping the rest.
func NewClients(cfgs map[string]config.CarrierConfig, httpClient *http.Client) map[location.Operator]*Client {
	clients := make(map[location.Operator]*Client, len(cfgs))

	for name, cfg := range cfgs {
		op, ok := location.ParseOperator(name)
		if !ok {
			continue
		}

		client, err := NewClient(op, cfg, httpClient)
		if err != nil {
			continue
		}

		clients[op] = client
	}

	return clients
}

// Operator returns the operator served by the client.
func (c *Client) Operator() location.Operator {
	return c.operator
}

// NetworkLocation asks the operator for the network position of a subscriber.
func (c *Client) NetworkLocation(ctx context.Context, phoneNumber string) (alert.Fix, error) {
	req, err := c.profile.locate(ctx, c.baseURL, c.apiKey, phoneNumber)
	if err != nil {
		return alert.Fix{}, fmt.Errorf("%s location request: %w", c.operator, err)
	}

	body, err := c.do(req)
	if err != nil {
		return alert.Fix{}, fmt.Errorf("%s location: %w", c.operator, err)
	}

	fix, err := c.profile.decode(body)
	if err != nil {
		return alert.Fix{}, fmt.Errorf("%s location response: %w", c.operator, err)
	}

	if fix.Accuracy <= 0 {
		fix.Accuracy = c.profile.defaultAccuracy
	}

	fix.MCC = indiaMCC
	fix.MNC = c.profile.mnc
	fix.Timestamp = c.now()
	fix.Confidence = alert.ConfidenceOperator

	return fix, nil
}

// SendSMS delivers a text message through the operator.
func (c *Client) SendSMS(ctx context.Context, from, to, message string) error {
	req, err := jsonRequest(ctx, c.baseURL+"/sms", map[string]any{
		"from":    from,
		"to":      to,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("%s sms request: %w", c.operator, err)
	}

	if _, err = c.do(req); err != nil {
		return fmt.Errorf("%s sms: %w", c.operator, err)
	}

	return nil
}

// InitiateCall places an emergency voice call through the operator.
func (c *Client) InitiateCall(ctx context.Context, from, to, alertID string) error {
	req, err := jsonRequest(ctx, c.baseURL+"/emergency/call", map[string]any{
		"from":     from,
		"to":       to,
		"alert_id": alertID,
	})
	if err != nil {
		return fmt.Errorf("%s call request: %w", c.operator, err)
	}

	if _, err = c.do(req); err != nil {
		return fmt.Errorf("%s call: %w", c.operator, err)
	}

	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	c.profile.authorize(req, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close() //nolint:errcheck // Body fully read below.

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
	}

	return body, nil
}
