package shipsgohttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider"
	"github.com/IndustriasCannon/shipwatch/internal/ratelimit"
	"github.com/pkg/errors"
)

const userAgent = "IndustriasCannon-MaritimeControl/1.0"

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	limiter *ratelimit.Limiter
}

func New(baseURL, apiKey string, limiter *ratelimit.Limiter) *Client {
	if baseURL == "" {
		baseURL = "https://api.shipsgo.com/v2"
	}
	if limiter == nil {
		limiter = ratelimit.New(100, time.Minute)
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		limiter: limiter,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) WithHTTPTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpc.Timeout = d
	}
	return c
}

// Limiter отдаём наружу ради /stats: api показывает остаток квоты провайдера.
func (c *Client) Limiter() *ratelimit.Limiter { return c.limiter }

func (c *Client) TrackContainer(ctx context.Context, containerNumber string) (*provider.TrackingResult, error) {
	body, err := c.makeRequest(ctx, http.MethodGet, "/tracking/container/"+url.PathEscape(containerNumber), nil)
	if err != nil {
		var fe *provider.FetchError
		if errors.As(err, &fe) && fe.Status == http.StatusNotFound {
			return nil, provider.ErrNotFound
		}
		return nil, err
	}

	raw, err := unwrapObject(body, "data", "container")
	if err != nil {
		return nil, err
	}

	var rc rawContainer
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, errors.Wrap(err, "decode container")
	}

	res := normalizeContainer(rc)
	if res.ContainerNumber == "" {
		res.ContainerNumber = containerNumber
	}
	return &res, nil
}

func (c *Client) TrackBatch(ctx context.Context, containerNumbers []string) ([]provider.TrackingResult, error) {
	if len(containerNumbers) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(map[string][]string{"containers": containerNumbers})
	if err != nil {
		return nil, errors.Wrap(err, "marshal batch request")
	}

	body, err := c.makeRequest(ctx, http.MethodPost, "/tracking/containers/batch", payload)
	if err != nil {
		return nil, err
	}

	raw, err := unwrapArray(body, "data", "containers")
	if err != nil {
		return nil, err
	}

	var rcs []rawContainer
	if err := json.Unmarshal(raw, &rcs); err != nil {
		return nil, errors.Wrap(err, "decode batch containers")
	}

	out := make([]provider.TrackingResult, 0, len(rcs))
	for _, rc := range rcs {
		res := normalizeContainer(rc)
		if res.ContainerNumber == "" {
			// Без join key результат бесполезен — сопоставить его не с чем.
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

func (c *Client) VesselPositions(ctx context.Context, imos []string) ([]provider.VesselPosition, error) {
	if len(imos) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(map[string][]string{"imos": imos})
	if err != nil {
		return nil, errors.Wrap(err, "marshal positions request")
	}

	body, err := c.makeRequest(ctx, http.MethodPost, "/vessels/positions", payload)
	if err != nil {
		return nil, err
	}

	raw, err := unwrapArray(body, "data", "vessels")
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.Wrap(err, "decode positions")
	}

	out := make([]provider.VesselPosition, 0, len(items))
	for _, it := range items {
		pos, ok := normalizePosition(it)
		if !ok {
			continue
		}
		out = append(out, pos)
	}
	return out, nil
}

func (c *Client) makeRequest(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	// Лимитер — до диспетчеризации; попытка считается даже если запрос
	// потом завершится ошибкой.
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	if resp.StatusCode/100 != 2 {
		return nil, &provider.FetchError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
