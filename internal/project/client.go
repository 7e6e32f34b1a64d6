package project

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClientConfig holds settings for the directory API client.
type ClientConfig struct {
	// Endpoint is the base URL of the project directory API.
	Endpoint string
	// JWTSecret signs the service token presented on each request.
	JWTSecret string
	// TokenTTL bounds the lifetime of each minted token.
	TokenTTL time.Duration
	// Timeout bounds one lookup request.
	Timeout time.Duration
}

// Client resolves git URLs against the project directory's HTTP API,
// authenticating with a short-lived HS256 service token.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient builds a directory API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ProjectsByGitURL asks the directory which projects own the repository.
// A 404 or an empty result maps to ErrNotFound; every other failure is
// returned as-is and treated as transient by the caller.
func (c *Client) ProjectsByGitURL(ctx context.Context, gitURL string) ([]Project, error) {
	endpoint := fmt.Sprintf("%s/projects/by-git-url?giturl=%s", c.cfg.Endpoint, url.QueryEscape(gitURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating lookup request: %w", err)
	}

	token, err := c.serviceToken()
	if err != nil {
		return nil, fmt.Errorf("signing service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying project directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("project directory returned %d: %s", resp.StatusCode, body)
	}

	var projects []Project
	if err := json.NewDecoder(resp.Body).Decode(&projects); err != nil {
		return nil, fmt.Errorf("decoding project directory response: %w", err)
	}
	if len(projects) == 0 {
		return nil, ErrNotFound
	}

	return projects, nil
}

func (c *Client) serviceToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":  "tidehook",
		"sub":  "tidehook",
		"role": "admin",
		"iat":  now.Unix(),
		"exp":  now.Add(c.cfg.TokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.JWTSecret))
}
