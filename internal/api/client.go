package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"main/internal/session"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

var (
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrBadStatus    = errors.New("api: unexpected response status")
)

const requestTimeout = 15 * time.Second

// Client talks to the hub's REST surface. Login is the only call that needs
// no token; everything else authenticates with the session's bearer token.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	SubjectType string `json:"user_type"`
	SubjectID   string `json:"user_id"`
	FullName    string `json:"full_name"`
}

// Login authenticates and returns the session the realtime connection is
// scoped by.
func (c *Client) Login(ctx context.Context, email, password string) (session.Session, error) {
	payload, err := sonic.ConfigFastest.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return session.Session{}, errors.Wrap(err, "encode login request")
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(payload))
	if err != nil {
		return session.Session{}, errors.Wrap(err, "build login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return session.Session{}, errors.Wrap(err, "send login request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return session.Session{}, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return session.Session{}, errors.Wrap(ErrBadStatus, resp.Status)
	}

	var data loginResponse
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&data); err != nil {
		return session.Session{}, errors.Wrap(err, "decode login response")
	}

	return session.Session{
		SubjectType: session.SubjectType(data.SubjectType),
		SubjectID:   data.SubjectID,
		Token:       data.AccessToken,
		IssuedAt:    time.Now().UTC(),
	}, nil
}

// Logout invalidates the server-side view of the session. The caller is
// still responsible for clearing the stored session.
func (c *Client) Logout(ctx context.Context, sess session.Session) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/logout", sess, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return errors.Wrap(ErrBadStatus, resp.Status)
	}
	return nil
}

// FetchTimetable pulls the full current timetable document, used when a
// timetable_updated event forces a reload.
func (c *Client) FetchTimetable(ctx context.Context, sess session.Session) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/timetable", sess, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(ErrBadStatus, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read timetable response")
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, path string, sess session.Session, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+sess.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	return resp, nil
}
