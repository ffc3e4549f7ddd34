package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sshcore/transport/internal/server"
)

// errRequestFailed wraps a non-2xx control-plane response, carrying the
// body the daemon's writeError sent.
var errRequestFailed = errors.New("sshcorectl: request failed")

// apiClient is a small JSON client for sshcored's control-plane surface,
// built around net/http/encoding-json rather than a Connect stub since the
// daemon serves this surface as JSON (see internal/server/server.go).
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(addr string) *apiClient {
	return &apiClient{baseURL: "http://" + addr, http: http.DefaultClient}
}

func (c *apiClient) listSessions(ctx context.Context) ([]server.Snapshot, error) {
	var out []server.Snapshot
	if err := c.getJSON(ctx, "/v1/sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) getSession(ctx context.Context, id uint64) (server.Snapshot, error) {
	var out server.Snapshot
	if err := c.getJSON(ctx, fmt.Sprintf("/v1/sessions/%d", id), &out); err != nil {
		return server.Snapshot{}, err
	}
	return out, nil
}

func (c *apiClient) closeSession(ctx context.Context, id uint64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+fmt.Sprintf("/v1/sessions/%d", id), nil)
	if err != nil {
		return fmt.Errorf("build close request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("close session %d: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return decodeAPIError(resp)
	}
	return nil
}

// watchSessions streams the control-plane's NDJSON event feed, invoking fn
// for every Event until ctx is cancelled or the stream ends.
func (c *apiClient) watchSessions(ctx context.Context, includeCurrent bool, fn func(server.Event) error) error {
	url := c.baseURL + "/v1/sessions/watch"
	if includeCurrent {
		url += "?include_current=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build watch request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("watch sessions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev server.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return fmt.Errorf("decode watch event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read watch stream: %w", err)
	}
	return nil
}

func (c *apiClient) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("%w: status %d", errRequestFailed, resp.StatusCode)
	}
	return fmt.Errorf("%w: %s", errRequestFailed, body.Error)
}
