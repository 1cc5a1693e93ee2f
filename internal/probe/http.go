package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type httpProber struct {
	url    string
	client *http.Client
}

// NewHTTP constructs a prober that succeeds on any 2xx response.
func NewHTTP(url string, timeout time.Duration) Prober {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &httpProber{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *httpProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe %s: unexpected status %s", p.url, resp.Status)
	}
	return nil
}
