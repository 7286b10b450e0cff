package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kdimtricp/vtrack/internal/frame"
)

// HTTPClient talks to an external detection service. Each frame is posted as a
// JPEG to {baseURL}/v1/track and the service answers with tracked objects. The
// session query parameter keys the service's tracker state, so identities from
// different jobs and streams never mix.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	quality    int
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		quality:    90,
	}
}

func (c *HTTPClient) Session(id string) Tracker {
	return &httpSession{client: c, id: id}
}

type trackResponse struct {
	Objects []TrackedObject `json:"objects"`
	Error   string          `json:"error,omitempty"`
}

type httpSession struct {
	client *HTTPClient
	id     string
}

func (s *httpSession) Track(ctx context.Context, f *frame.Frame, confThreshold float64) ([]TrackedObject, error) {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, f.Image, &jpeg.Options{Quality: s.client.quality}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}

	q := url.Values{}
	q.Set("session", s.id)
	q.Set("conf", strconv.FormatFloat(confThreshold, 'f', -1, 64))
	endpoint := s.client.baseURL + "/v1/track?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling detector: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading detector response: %w", err)
	}

	var result trackResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding detector response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector error (status %d): %s", resp.StatusCode, result.Error)
	}

	objects := result.Objects[:0]
	for _, o := range result.Objects {
		if o.Confidence < confThreshold {
			continue
		}
		objects = append(objects, o)
	}
	if objects == nil {
		objects = []TrackedObject{}
	}
	return objects, nil
}
