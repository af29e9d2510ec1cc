package tab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// tokenExpiryBuffer refreshes tokens this long before their real expiry so
// in-flight requests never carry a token that dies mid-call.
const tokenExpiryBuffer = 60 * time.Second

// Token is an OAuth access token with its computed expiry.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`

	// ExpiresAt is the wall-clock expiry minus the refresh buffer.
	ExpiresAt time.Time `json:"-"`
}

// Valid reports whether the token can still be used at the given time.
func (t *Token) Valid(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// PasswordGrant obtains access and refresh tokens for a TAB account. The
// account credentials come from the config unless overridden here.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (*Token, error) {
	if username == "" {
		username = c.cfg.Username
	}
	if password == "" {
		password = c.cfg.Password
	}

	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"username":      {username},
		"password":      {password},
	}
	if err := requireCredentials(form); err != nil {
		return nil, err
	}
	return c.fetchToken(ctx, form)
}

// RefreshGrant exchanges a refresh token for a new access token. An empty
// refreshToken falls back to the config, then to the last token this client
// obtained.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		refreshToken = c.cfg.RefreshToken
	}
	if refreshToken == "" {
		c.tokenMu.Lock()
		if c.token != nil {
			refreshToken = c.token.RefreshToken
		}
		c.tokenMu.Unlock()
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {refreshToken},
	}
	if err := requireCredentials(form); err != nil {
		return nil, err
	}
	return c.fetchToken(ctx, form)
}

// ClientCredentialsGrant obtains a token for public data access, no account
// needed.
func (c *Client) ClientCredentialsGrant(ctx context.Context) (*Token, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	if err := requireCredentials(form); err != nil {
		return nil, err
	}
	return c.fetchToken(ctx, form)
}

// requireCredentials rejects a grant with blank fields before it goes on the
// wire.
func requireCredentials(form url.Values) error {
	var missing []string
	for key, values := range form {
		if key == "grant_type" {
			continue
		}
		if len(values) == 0 || values[0] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// fetchToken posts a grant to the token endpoint and stores the result as the
// client's current token. Grants go through the dedicated oauth client, whose
// breaker is independent of the data-plane one.
func (c *Client) fetchToken(ctx context.Context, form url.Values) (*Token, error) {
	endpoint := c.cfg.BaseURL + OAuthTokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.oauth.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		apiErr := newAPIError(resp.StatusCode, body)
		return nil, fmt.Errorf("oauth authentication failed: %w", apiErr)
	}

	token := new(Token)
	if err := json.Unmarshal(body, token); err != nil {
		return nil, fmt.Errorf("malformed token response: %w", err)
	}
	token.ExpiresAt = c.now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenExpiryBuffer)

	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()

	return token, nil
}

// accessToken returns a valid token, fetching one via the client_credentials
// grant when none is cached. A cached token is renewed through the refresh
// grant when it carried a refresh token.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	token := c.token
	c.tokenMu.Unlock()

	if token.Valid(c.now()) {
		return token.AccessToken, nil
	}

	if token != nil && token.RefreshToken != "" {
		refreshed, err := c.RefreshGrant(ctx, token.RefreshToken)
		if err == nil {
			return refreshed.AccessToken, nil
		}
		// Fall through to a fresh grant; the refresh token may be stale.
	}

	fresh, err := c.ClientCredentialsGrant(ctx)
	if err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}
