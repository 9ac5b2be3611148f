package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPExchanger posts the offer to the realtime service's WebRTC endpoint,
// authenticated by the ephemeral key, and returns the answer SDP.
type HTTPExchanger struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewHTTPExchanger(baseURL, model string, httpClient *http.Client) (*HTTPExchanger, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("realtime: SDP base URL must not be empty")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("realtime: model must not be empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPExchanger{baseURL: baseURL, model: strings.TrimSpace(model), httpClient: httpClient}, nil
}

func (e *HTTPExchanger) endpoint() (string, error) {
	u, err := url.Parse(e.baseURL)
	if err != nil {
		return "", fmt.Errorf("realtime: parse SDP base URL: %w", err)
	}
	q := u.Query()
	q.Set("model", e.model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (e *HTTPExchanger) Exchange(ctx context.Context, offerSDP, ephemeralKey string) (string, error) {
	if strings.TrimSpace(offerSDP) == "" {
		return "", errors.New("realtime: offer SDP is empty")
	}
	u, err := e.endpoint()
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("realtime: create SDP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ephemeralKey)
	req.Header.Set("Content-Type", "application/sdp")

	res, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("realtime: SDP request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("realtime: read SDP answer: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("realtime: SDP exchange returned status %d", res.StatusCode)
	}
	answer := string(buf)
	if !strings.HasPrefix(strings.TrimSpace(answer), "v=") {
		return "", errors.New("realtime: SDP answer is malformed")
	}
	return answer, nil
}
