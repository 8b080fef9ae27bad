package lineage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPRemoteSink POSTs each event as JSON to a configured endpoint. It is
// the optional remote backend, left out of scope
// for the core; the file backend remains mandatory and authoritative.
type HTTPRemoteSink struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPRemoteSink(endpoint string) *HTTPRemoteSink {
	return &HTTPRemoteSink{Endpoint: endpoint, Client: &http.Client{}}
}

func (s *HTTPRemoteSink) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("remote lineage sink returned %s", resp.Status)
	}
	return nil
}
