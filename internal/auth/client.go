package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"cafe-backend/internal/config"
)

// Credentials never touch this process beyond forwarding: the identity
// service owns accounts, password hashes and permission levels.

var identityHTTPClient = &http.Client{Timeout: 30 * time.Second}

const captchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

var ErrInvalidCredentials = errors.New("invalid credentials")

// Account is the identity service's view of a staff member.
type Account struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Lastname  string `json:"lastname"`
	Room      string `json:"room"`
	IsChef    bool   `json:"isCheff"`
	UserLevel int    `json:"userLevel"`
	Token     string `json:"token,omitempty"`
}

// Client talks to the external identity service.
type Client struct {
	baseURL       string
	captchaSecret string
	log           *zap.Logger
}

func NewClient(cfg config.AuthConfig, log *zap.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		captchaSecret: cfg.CaptchaSecret,
		log:           log,
	}
}

// Login exchanges credentials for the account record and its service token.
func (c *Client) Login(ctx context.Context, username, password string) (*Account, error) {
	var account Account
	err := c.postJSON(ctx, "/login", map[string]string{
		"username": username,
		"password": password,
	}, &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Me fetches the account behind a service token.
func (c *Client) Me(ctx context.Context, token string) (*Account, error) {
	var account Account
	if err := c.getJSON(ctx, "/me", token, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Users lists the accounts of one room.
func (c *Client) Users(ctx context.Context, token, room string) ([]Account, error) {
	var accounts []Account
	path := "/users?room=" + url.QueryEscape(room)
	if err := c.getJSON(ctx, path, token, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Register creates a staff account. The payload travels as submitted; the
// identity service validates and hashes.
func (c *Client) Register(ctx context.Context, token string, payload map[string]any) error {
	return c.postJSONAuth(ctx, "/register", token, payload, nil)
}

// UserUpdate updates a staff account.
func (c *Client) UserUpdate(ctx context.Context, token string, payload map[string]any) error {
	return c.postJSONAuth(ctx, "/userUpdate", token, payload, nil)
}

// UserDelete removes a staff account.
func (c *Client) UserDelete(ctx context.Context, token, userID string) error {
	return c.postJSONAuth(ctx, "/userDelete", token, map[string]any{"userId": userID}, nil)
}

// VerifyCaptcha checks a reCAPTCHA response with Google. An unset secret
// disables verification, which is the development posture.
func (c *Client) VerifyCaptcha(ctx context.Context, response, remoteIP string) (bool, error) {
	if c.captchaSecret == "" {
		return true, nil
	}

	form := url.Values{}
	form.Set("secret", c.captchaSecret)
	form.Set("response", response)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, captchaVerifyURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := identityHTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("verify captcha: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode captcha response: %w", err)
	}
	return result.Success, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, "", payload, out)
}

func (c *Client) postJSONAuth(ctx context.Context, path, token string, payload, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, token, payload, out)
}

func (c *Client) getJSON(ctx context.Context, path, token string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, token, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := identityHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity service %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrInvalidCredentials
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("identity service error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet))
		return fmt.Errorf("identity service %s: status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
