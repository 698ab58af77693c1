// Package etherpad is a typed client for the Etherpad HTTP API.
//
// Every method returns either its result or a *ServerError. Transport
// failures and application-level error codes are reported the same way, so
// callers only need one check to know that talking to Etherpad went wrong.
package etherpad

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

	"golang.org/x/time/rate"
)

const (
	DefaultAPIVersion = "1.2.15"
	defaultTimeout    = 10 * time.Second
	maxErrorBody      = 512
)

type Options struct {
	// BaseURL is the internal URL of the Etherpad server, including protocol and port.
	BaseURL    string
	APIKey     string
	APIVersion string
	HTTPClient *http.Client
	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond float64
	UserAgent         string
}

type Client struct {
	baseURL    string
	apiKey     string
	apiVersion string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

func New(opts Options) *Client {
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:     opts.APIKey,
		apiVersion: apiVersion,
		httpClient: httpClient,
		limiter:    limiter,
		userAgent:  strings.TrimSpace(opts.UserAgent),
	}
}

// envelope is the response wrapper of every Etherpad API call.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) endpoint(method string) string {
	return c.baseURL + "/api/" + c.apiVersion + "/" + method
}

// call performs an API method and decodes the data field into out when out is non-nil.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, method, params, out)
}

// post sends parameters as a form body, for payloads that may not fit in a query string.
func (c *Client) post(ctx context.Context, method string, params url.Values, out any) error {
	return c.do(ctx, http.MethodPost, method, params, out)
}

func (c *Client) do(ctx context.Context, httpMethod, method string, params url.Values, out any) error {
	if c == nil {
		return &ServerError{Method: method, Message: "etherpad client is nil"}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &ServerError{Method: method, Message: err.Error(), Err: err}
		}
	}

	values := url.Values{}
	for key, vals := range params {
		values[key] = vals
	}
	values.Set("apikey", c.apiKey)

	var (
		req *http.Request
		err error
	)
	if httpMethod == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(method)+"?"+values.Encode(), nil)
	}
	if err != nil {
		return &ServerError{Method: method, Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ServerError{Method: method, Message: err.Error(), Err: err}
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return &ServerError{Method: method, Status: resp.StatusCode, Message: readErr.Error(), Err: readErr}
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := http.StatusText(resp.StatusCode)
		if decodeErr == nil && strings.TrimSpace(env.Message) != "" {
			message = env.Message
		} else if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
			message = truncate(trimmed, maxErrorBody)
		}
		return &ServerError{Method: method, Status: resp.StatusCode, Code: env.Code, Message: message}
	}
	if decodeErr != nil {
		return &ServerError{Method: method, Status: resp.StatusCode, Message: "invalid response body", Err: decodeErr}
	}
	if env.Code != CodeOK {
		return &ServerError{Method: method, Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &ServerError{Method: method, Status: resp.StatusCode, Message: "invalid response data", Err: err}
	}
	return nil
}

// CheckToken verifies that the configured API key is accepted.
func (c *Client) CheckToken(ctx context.Context) error {
	return c.call(ctx, "checkToken", nil, nil)
}

// CreateGroupIfNotExistsFor returns the group mapped to groupMapper, creating it if needed.
func (c *Client) CreateGroupIfNotExistsFor(ctx context.Context, groupMapper string) (string, error) {
	var data struct {
		GroupID string `json:"groupID"`
	}
	if err := c.call(ctx, "createGroupIfNotExistsFor", url.Values{"groupMapper": {groupMapper}}, &data); err != nil {
		return "", err
	}
	if data.GroupID == "" {
		return "", &ServerError{Method: "createGroupIfNotExistsFor", Message: "no groupID returned for mapper " + groupMapper}
	}
	return data.GroupID, nil
}

func (c *Client) CreateGroupPad(ctx context.Context, groupID, padName string) error {
	return c.call(ctx, "createGroupPad", url.Values{"groupID": {groupID}, "padName": {padName}}, nil)
}

// CopyPad copies the full history of sourceID into destinationID.
func (c *Client) CopyPad(ctx context.Context, sourceID, destinationID string) error {
	return c.call(ctx, "copyPad", url.Values{"sourceID": {sourceID}, "destinationID": {destinationID}}, nil)
}

func (c *Client) DeletePad(ctx context.Context, padID string) error {
	return c.call(ctx, "deletePad", url.Values{"padID": {padID}}, nil)
}

func (c *Client) GetReadOnlyID(ctx context.Context, padID string) (string, error) {
	var data struct {
		ReadOnlyID string `json:"readOnlyID"`
	}
	if err := c.call(ctx, "getReadOnlyID", url.Values{"padID": {padID}}, &data); err != nil {
		return "", err
	}
	if data.ReadOnlyID == "" {
		return "", &ServerError{Method: "getReadOnlyID", Message: "no readOnlyID returned for padID " + padID}
	}
	return data.ReadOnlyID, nil
}

// SetHTML replaces the content of a pad.
func (c *Client) SetHTML(ctx context.Context, padID, html string) error {
	return c.post(ctx, "setHTML", url.Values{"padID": {padID}, "html": {html}}, nil)
}

func (c *Client) CreateAuthorIfNotExistsFor(ctx context.Context, authorMapper, name string) (string, error) {
	params := url.Values{"authorMapper": {authorMapper}}
	if name != "" {
		params.Set("name", name)
	}
	var data struct {
		AuthorID string `json:"authorID"`
	}
	if err := c.call(ctx, "createAuthorIfNotExistsFor", params, &data); err != nil {
		return "", err
	}
	if data.AuthorID == "" {
		return "", &ServerError{Method: "createAuthorIfNotExistsFor", Message: "no authorID returned for mapper " + authorMapper}
	}
	return data.AuthorID, nil
}

// CreateSession opens a session for authorID on groupID. validUntil is in Unix seconds.
func (c *Client) CreateSession(ctx context.Context, groupID, authorID string, validUntil int64) (string, error) {
	params := url.Values{
		"groupID":    {groupID},
		"authorID":   {authorID},
		"validUntil": {strconv.FormatInt(validUntil, 10)},
	}
	var data struct {
		SessionID string `json:"sessionID"`
	}
	if err := c.call(ctx, "createSession", params, &data); err != nil {
		return "", err
	}
	if data.SessionID == "" {
		return "", &ServerError{Method: "createSession", Message: fmt.Sprintf("no session created for authorID %s on group %s", authorID, groupID)}
	}
	return data.SessionID, nil
}

// ListSessionsOfAuthor returns every session of authorID keyed by session id.
// A nil entry means Etherpad returned no information for that session.
func (c *Client) ListSessionsOfAuthor(ctx context.Context, authorID string) (map[string]*SessionInfo, error) {
	var raw map[string]json.RawMessage
	if err := c.call(ctx, "listSessionsOfAuthor", url.Values{"authorID": {authorID}}, &raw); err != nil {
		return nil, err
	}
	sessions := make(map[string]*SessionInfo, len(raw))
	for id, entry := range raw {
		sessions[id] = decodeSessionInfo(entry)
	}
	return sessions, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.call(ctx, "deleteSession", url.Values{"sessionID": {sessionID}}, nil)
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
