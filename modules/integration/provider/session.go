package provider

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
	"sync"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"

	"golang.org/x/oauth2"
)

type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Session carries what an adapter needs for one integration: decrypted
// credentials, the integration's settings and a hook that persists tokens
// rotated during the sync.
type Session struct {
	IntegrationID string
	Credentials   Credentials
	Settings      map[string]any
	OnRefresh     func(ctx context.Context, tok *oauth2.Token) error
}

func (s Session) setting(key string) string {
	if s.Settings == nil {
		return ""
	}
	v, _ := s.Settings[key].(string)
	return strings.TrimSpace(v)
}

// RefreshFunc trades a refresh token for a fresh access token.
type RefreshFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// oauthRefresher refreshes through the standard token endpoint of conf.
func oauthRefresher(conf *oauth2.Config, base *http.Client) RefreshFunc {
	return func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
		return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	}
}

type tokenSource struct {
	provider  string
	mu        sync.Mutex
	tok       *oauth2.Token
	refresh   RefreshFunc
	onRefresh func(ctx context.Context, tok *oauth2.Token) error
	now       func() time.Time
}

func newTokenSource(provider string, sess Session, refresh RefreshFunc) *tokenSource {
	return &tokenSource{
		provider: provider,
		tok: &oauth2.Token{
			AccessToken:  sess.Credentials.AccessToken,
			RefreshToken: sess.Credentials.RefreshToken,
			Expiry:       sess.Credentials.Expiry,
			TokenType:    "Bearer",
		},
		refresh:   refresh,
		onRefresh: sess.OnRefresh,
		now:       time.Now,
	}
}

func (s *tokenSource) canRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh != nil && s.tok.RefreshToken != ""
}

// token returns a usable access token, refreshing it when it expires within
// the refresh margin or when force is set after a 401.
func (s *tokenSource) token(ctx context.Context, force bool) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := s.tok.AccessToken != "" &&
		(s.tok.Expiry.IsZero() || s.now().Before(s.tok.Expiry.Add(-constants.TokenRefreshMargin)))
	if fresh && !force {
		return s.tok, nil
	}
	if s.refresh == nil || s.tok.RefreshToken == "" {
		if s.tok.AccessToken != "" && !force {
			return s.tok, nil
		}
		return nil, &Error{Provider: s.provider, Kind: KindAuth, Err: errors.New("access token expired and no refresh token is stored")}
	}

	logger.Info("Provider:Token:Refreshing", "provider", s.provider)
	next, err := s.refresh(ctx, s.tok.RefreshToken)
	if err != nil {
		return nil, &Error{Provider: s.provider, Kind: KindAuth, Err: fmt.Errorf("refresh token: %w", err)}
	}
	if next.RefreshToken == "" {
		next.RefreshToken = s.tok.RefreshToken
	}
	if next.TokenType == "" {
		next.TokenType = "Bearer"
	}
	s.tok = next

	if s.onRefresh != nil {
		if err := s.onRefresh(context.WithoutCancel(ctx), next); err != nil {
			logger.Error("Provider:Token:PersistFailed", "provider", s.provider, "error", err)
		}
	}
	return next, nil
}

// authTransport signs requests with the session token and retries once with
// a refreshed token when the provider answers 401.
type authTransport struct {
	src  *tokenSource
	base http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.src.token(req.Context(), false)
	if err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(signed(req, tok))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || !t.src.canRefresh() {
		return resp, err
	}
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	tok, err = t.src.token(req.Context(), true)
	if err != nil {
		return nil, err
	}
	retry := signed(req, tok)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return t.base.RoundTrip(retry)
}

func signed(req *http.Request, tok *oauth2.Token) *http.Request {
	r := req.Clone(req.Context())
	tok.SetAuthHeader(r)
	return r
}

// jsonRefresher refreshes against token endpoints that only accept JSON
// bodies, such as Square's ObtainToken.
func jsonRefresher(tokenURL, clientID, clientSecret string, base *http.Client, headers map[string]string) RefreshFunc {
	return func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		payload, _ := json.Marshal(map[string]string{
			"client_id":     clientID,
			"client_secret": clientSecret,
			"grant_type":    "refresh_token",
			"refresh_token": refreshToken,
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := base.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode/100 != 2 {
			return nil, statusError("token", resp)
		}
		defer resp.Body.Close()

		var out struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			TokenType    string `json:"token_type"`
			ExpiresAt    string `json:"expires_at"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, err
		}
		if out.AccessToken == "" {
			return nil, errors.New("no access_token in response")
		}
		tok := &oauth2.Token{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}
		if t, err := time.Parse(time.RFC3339, out.ExpiresAt); err == nil {
			tok.Expiry = t
		}
		return tok, nil
	}
}

// getJSON issues a GET and decodes a 2xx JSON body into dst.
func getJSON(ctx context.Context, client *http.Client, provider, rawURL string, headers map[string]string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &Error{Provider: provider, Kind: KindConfig, Err: err}
	}
	return doJSON(client, provider, req, headers, dst)
}

func postJSON(ctx context.Context, client *http.Client, provider, rawURL string, headers map[string]string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return &Error{Provider: provider, Kind: KindConfig, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(client, provider, req, headers, dst)
}

func doJSON(client *http.Client, provider string, req *http.Request, headers map[string]string, dst any) error {
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Wrap(provider, err)
	}
	if resp.StatusCode/100 != 2 {
		return statusError(provider, resp)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &Error{Provider: provider, Kind: KindAPI, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func joinURL(base, path string, query url.Values) string {
	u := strings.TrimRight(base, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
