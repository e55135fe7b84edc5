package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/narstation/narstation/pkg/listing"
)

type ErrorResponse struct {
	StatusCode int
	ErrorMsg   string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("unexpected status code: %d, error: %s", e.StatusCode, e.ErrorMsg)
}

// UpdateResult mirrors the response of the update endpoint.
type UpdateResult struct {
	OK       bool     `json:"ok"`
	Entries  int      `json:"entries"`
	Uploaded []string `json:"uploaded"`
}

type Client struct {
	apiURL     string
	httpClient *http.Client
}

// New creates a client for the API rooted at apiURL, e.g. https://example.com/api/v1.
func New(apiURL string) *Client {
	return &Client{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func setAuth(adminAccessToken string) func(r *http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", adminAccessToken)
	}
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint string, body io.Reader, modifyRequestFns ...func(r *http.Request)) (*http.Response, error) {
	apiEndpoint, err := url.JoinPath(c.apiURL, endpoint)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, apiEndpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json; charset=utf-8")
	for _, f := range modifyRequestFns {
		f(req)
	}
	return c.httpClient.Do(req)
}

func (c *Client) decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errResp := ErrorResponse{StatusCode: resp.StatusCode}
		err := json.NewDecoder(resp.Body).Decode(&errResp)
		if err != nil {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return &errResp
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) GetPage(ctx context.Context) (*listing.Page, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, "entries", nil)
	if err != nil {
		return nil, err
	}
	var p listing.Page
	if err := c.decodeResponse(resp, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetEntry(ctx context.Context, id string) (*listing.Entry, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, "entries/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var e listing.Entry
	if err := c.decodeResponse(resp, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *Client) SendBatchRequest(ctx context.Context, batch *listing.BatchRequest) (*listing.BatchResponse, error) {
	var bodyBuffer bytes.Buffer
	err := json.NewEncoder(&bodyBuffer).Encode(batch)
	if err != nil {
		return nil, err
	}
	resp, err := c.sendRequest(ctx, http.MethodPost, "entries/_batch", &bodyBuffer)
	if err != nil {
		return nil, err
	}
	var br listing.BatchResponse
	if err := c.decodeResponse(resp, &br); err != nil {
		return nil, err
	}
	return &br, nil
}

// TriggerUpdate asks the server to regenerate the listing and waits for the result.
func (c *Client) TriggerUpdate(ctx context.Context, adminAccessToken string) (*UpdateResult, error) {
	resp, err := c.sendRequest(ctx, http.MethodPut, "update", nil, setAuth(adminAccessToken))
	if err != nil {
		return nil, err
	}
	var res UpdateResult
	if err := c.decodeResponse(resp, &res); err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, fmt.Errorf("update failed: reason unknown")
	}
	return &res, nil
}
