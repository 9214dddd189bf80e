package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/kiln/lib/relational"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var log = logger.GetLogger("relational")

const (
	// basePath is the path of the table API below the service endpoint.
	basePath = "/rest/v1/"

	// error codes of a missing relation
	codeUndefinedTable = "42P01"
	codeSchemaCache    = "PGRST205"
)

// Client is a relational.Client for PostgREST style HTTP APIs.
type Client struct {
	baseURL    *url.URL
	credential string
	http       *http.Client
}

// New creates a client for the service at endpoint. The credential is sent as
// API key and as bearer token with every request.
func New(endpoint, credential string, timeout time.Duration) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	if credential == "" {
		return nil, fmt.Errorf("missing credential for endpoint %q", endpoint)
	}

	return &Client{
		baseURL:    parsed,
		credential: credential,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see relational/client.go)
// --------------------------------------------------------------------------

func (c *Client) SelectAll(ctx context.Context, table string) ([]relational.Row, error) {
	var rows []relational.Row
	err := c.do(ctx, http.MethodGet, table, url.Values{"select": {"*"}}, nil, nil, &rows)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []relational.Row{}
	}
	return rows, nil
}

func (c *Client) SelectOne(ctx context.Context, table, id string) (relational.Row, bool, error) {
	var rows []relational.Row
	query := url.Values{"select": {"*"}, relational.IDColumn: {"eq." + id}, "limit": {"1"}}
	if err := c.do(ctx, http.MethodGet, table, query, nil, nil, &rows); err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

func (c *Client) Upsert(ctx context.Context, table string, rows []relational.Row) error {
	if len(rows) == 0 {
		return nil
	}
	for i, row := range rows {
		if id, _ := row[relational.IDColumn].(string); id == "" {
			return fmt.Errorf("upsert into %q: row %d has no id", table, i)
		}
	}

	// PostgREST requires every object of a bulk insert to have the same keys
	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"}
	query := url.Values{"on_conflict": {relational.IDColumn}}
	for _, batch := range relational.GroupByColumns(rows) {
		query.Set("columns", strings.Join(batch.Columns, ","))
		if err := c.do(ctx, http.MethodPost, table, query, headers, batch.Rows, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Update(ctx context.Context, table, id string, values relational.Row) (bool, error) {
	body := make(relational.Row, len(values))
	for col, v := range values {
		if col != relational.IDColumn {
			body[col] = v
		}
	}
	if len(body) == 0 {
		_, found, err := c.SelectOne(ctx, table, id)
		return found, err
	}

	var rows []relational.Row
	query := url.Values{relational.IDColumn: {"eq." + id}, "select": {relational.IDColumn}}
	headers := map[string]string{"Prefer": "return=representation"}
	if err := c.do(ctx, http.MethodPatch, table, query, headers, body, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (c *Client) Delete(ctx context.Context, table, id string) (bool, error) {
	var rows []relational.Row
	query := url.Values{relational.IDColumn: {"eq." + id}, "select": {relational.IDColumn}}
	headers := map[string]string{"Prefer": "return=representation"}
	if err := c.do(ctx, http.MethodDelete, table, query, headers, nil, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (c *Client) DeleteAll(ctx context.Context, table string) error {
	// PostgREST refuses unfiltered deletes
	query := url.Values{relational.IDColumn: {"not.is.null"}}
	return c.do(ctx, http.MethodDelete, table, query, map[string]string{"Prefer": "return=minimal"}, nil, nil)
}

func (c *Client) Probe(ctx context.Context, table string) (bool, error) {
	var rows []relational.Row
	query := url.Values{"select": {relational.IDColumn}, "limit": {"1"}}
	if err := c.do(ctx, http.MethodGet, table, query, nil, nil, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// --------------------------------------------------------------------------
// Request Handling
// --------------------------------------------------------------------------

// do sends a single request to the table endpoint and decodes the JSON response into out (if not nil).
func (c *Client) do(ctx context.Context, method, table string, query url.Values, headers map[string]string, body any, out any) error {
	target := c.baseURL.JoinPath(basePath, table)
	target.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request for %q: %w", table, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.credential)
	req.Header.Set("Authorization", "Bearer "+c.credential)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, table, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Errorf("Failed to close response body: %v", err)
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response of %s %s: %w", method, table, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(table, resp.StatusCode, payload)
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response of %s %s: %w", method, table, err)
	}
	return nil
}

// decodeError translates an error response. Missing tables become relational.ErrTableNotFound.
func decodeError(table string, status int, payload []byte) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(payload))
		if body.Message == "" {
			body.Message = http.StatusText(status)
		}
	}

	if body.Code == codeUndefinedTable || body.Code == codeSchemaCache {
		return fmt.Errorf("%w: %s", relational.ErrTableNotFound, table)
	}
	log.Debugf("request on %q failed with %d %s: %s", table, status, body.Code, body.Message)
	return &relational.Error{Status: status, Code: body.Code, Message: body.Message}
}
