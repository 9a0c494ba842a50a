package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mpapenbr/racestrategy-service-go/pkg/service"
)

// HTTPIngester sends raw laps to a running server
type HTTPIngester struct {
	base string
	hc   *http.Client
}

func NewHTTPIngester(base string, hc *http.Client) *HTTPIngester {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPIngester{base: strings.TrimRight(base, "/"), hc: hc}
}

//nolint:whitespace // can't make both editor and linter happy
func (h *HTTPIngester) IngestRaw(
	ctx context.Context,
	session string,
	raw map[string]any,
) (*service.IngestResult, error) {
	body, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	target := fmt.Sprintf("%s/api/v1/sessions/%s/telemetry", h.base, url.PathEscape(session))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var ret service.IngestResult
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}
