// Package client is a typed client for the valentine REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"valentine/internal/wire"
)

const adminHeader = "X-Admin-Password"

// APIError is returned for any non-2xx response.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Detail)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Client struct {
	base string
	http *http.Client
}

// New returns a client for base, e.g. http://localhost:8000/api. The
// default client sets no timeout; a request lasts as long as its context.
func New(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{base: strings.TrimRight(base, "/"), http: httpClient}
}

func (c *Client) BaseURL() string { return c.base }

func (c *Client) StartSession(ctx context.Context, fingerprint string) (wire.SessionStatus, error) {
	var out wire.SessionStatus
	err := c.do(ctx, http.MethodPost, "/session/start", nil, wire.StartSessionRequest{Fingerprint: fingerprint}, "", &out)
	return out, err
}

func (c *Client) SessionStatus(ctx context.Context, sessionID string) (wire.SessionStatus, error) {
	var out wire.SessionStatus
	err := c.do(ctx, http.MethodGet, "/session/status", sessionQuery(sessionID), nil, "", &out)
	return out, err
}

func (c *Client) Puzzle(ctx context.Context, sessionID string, stage int) (wire.Puzzle, error) {
	var out wire.Puzzle
	err := c.do(ctx, http.MethodGet, "/puzzle/"+strconv.Itoa(stage), sessionQuery(sessionID), nil, "", &out)
	return out, err
}

func (c *Client) Captcha(ctx context.Context, stage int) (wire.CaptchaData, error) {
	var out wire.CaptchaData
	err := c.do(ctx, http.MethodGet, "/puzzle/"+strconv.Itoa(stage)+"/captcha", nil, nil, "", &out)
	return out, err
}

func (c *Client) MediaURL(ctx context.Context, key string) (string, error) {
	var out wire.MediaURL
	err := c.do(ctx, http.MethodGet, "/photos/"+key, nil, nil, "", &out)
	return out.URL, err
}

func (c *Client) CheckAnswer(ctx context.Context, sessionID string, stage int, answer string) (wire.CheckResult, error) {
	var out wire.CheckResult
	err := c.do(ctx, http.MethodPost, "/puzzle/check", nil, wire.CheckRequest{SessionID: sessionID, Stage: stage, Answer: answer}, "", &out)
	return out, err
}

func (c *Client) Advance(ctx context.Context, sessionID string, stage int) error {
	q := sessionQuery(sessionID)
	q.Set("stage", strconv.Itoa(stage))
	return c.do(ctx, http.MethodPost, "/puzzle/advance", q, nil, "", nil)
}

func (c *Client) SaveTrollingPhase(ctx context.Context, sessionID, phase string) error {
	q := sessionQuery(sessionID)
	q.Set("phase", phase)
	return c.do(ctx, http.MethodPost, "/trolling/phase", q, nil, "", nil)
}

func (c *Client) SubmitChallenge(ctx context.Context, sessionID string) (string, error) {
	var out wire.ChallengeStatus
	err := c.do(ctx, http.MethodPost, "/challenge/submit", sessionQuery(sessionID), nil, "", &out)
	return out.Status, err
}

func (c *Client) ChallengeStatus(ctx context.Context, sessionID string) (string, error) {
	var out wire.ChallengeStatus
	err := c.do(ctx, http.MethodGet, "/challenge/status", sessionQuery(sessionID), nil, "", &out)
	return out.Status, err
}

func (c *Client) AdminLogin(ctx context.Context, password string) error {
	return c.do(ctx, http.MethodPost, "/admin/login", nil, nil, password, nil)
}

func (c *Client) AdminSessions(ctx context.Context, password string) ([]wire.AdminSession, error) {
	var out []wire.AdminSession
	err := c.do(ctx, http.MethodGet, "/admin/sessions", nil, nil, password, &out)
	return out, err
}

func (c *Client) AdminSessionDetail(ctx context.Context, password, sessionID string) (wire.AdminSessionDetail, error) {
	var out wire.AdminSessionDetail
	err := c.do(ctx, http.MethodGet, "/admin/session/"+url.PathEscape(sessionID), nil, nil, password, &out)
	return out, err
}

func (c *Client) AdminApprove(ctx context.Context, password, sessionID string) (string, error) {
	var out wire.ChallengeStatus
	err := c.do(ctx, http.MethodPost, "/admin/approve/"+url.PathEscape(sessionID), nil, nil, password, &out)
	return out.Status, err
}

func sessionQuery(sessionID string) url.Values {
	return url.Values{"session_id": []string{sessionID}}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, adminPassword string, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if adminPassword != "" {
		req.Header.Set(adminHeader, adminPassword)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb wire.ErrorBody
		if b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); json.Unmarshal(b, &eb) == nil {
			apiErr.Detail = eb.Detail
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
