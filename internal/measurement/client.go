package measurement

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

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.ooni.io"
	DefaultLimit   = 1000
)

type ClientConfig struct {
	BaseURL           string
	Limit             int
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// Query selects measurements for one (test, country) pair.
type Query struct {
	TestName      string
	CountryCode   string
	Since         string
	Until         string
	OnlyAnomalies bool
}

type Measurement struct {
	UID       string     `json:"measurement_uid"`
	ProbeCC   string     `json:"probe_cc"`
	ProbeASN  flexString `json:"probe_asn"`
	StartTime string     `json:"measurement_start_time"`
	TestName  string     `json:"test_name"`
	Anomaly   bool       `json:"anomaly"`
	Confirmed bool       `json:"confirmed"`
	Failure   bool       `json:"failure"`
}

type measurementsResponse struct {
	Results []Measurement `json:"results"`
}

// StatusError is returned for any non-200 reply.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("measurement api status code: %d body=%s", e.Status, e.Body)
}

type Client struct {
	cfg     ClientConfig
	limiter *rate.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{cfg: cfg}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	return c
}

// Fetch returns the measurements for q.
func (c *Client) Fetch(ctx context.Context, q Query) ([]Measurement, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "measurement rate limit wait")
		}
	}
	params := url.Values{}
	params.Set("test_name", q.TestName)
	params.Set("since", q.Since)
	params.Set("until", q.Until)
	params.Set("limit", strconv.Itoa(c.cfg.Limit))
	if q.OnlyAnomalies {
		params.Set("anomaly", "true")
	}
	if q.CountryCode != "" {
		params.Set("probe_cc", strings.ToUpper(q.CountryCode))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/v1/measurements?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "build measurement request")
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "measurement request")
	}
	defer res.Body.Close()
	blob, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return nil, eris.Wrap(err, "read measurement response")
	}
	if res.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: res.StatusCode, Body: excerpt(string(blob))}
	}
	var out measurementsResponse
	if err := json.Unmarshal(blob, &out); err != nil {
		return nil, eris.Wrap(err, "decode measurement response")
	}
	return out.Results, nil
}

// Window returns the since/until dates covering the last horizon days.
func Window(now time.Time, horizonDays int) (since, until string) {
	now = now.UTC()
	return now.AddDate(0, 0, -horizonDays).Format("2006-01-02"), now.Format("2006-01-02")
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 300 {
		return s[:300]
	}
	return s
}
