package provider

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/config"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// Factory builds adapters for stored integrations.
type Factory struct {
	cfg  *config.Config
	base *http.Client
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		cfg:  cfg,
		base: &http.Client{Timeout: constants.ProviderHTTPTimeout},
	}
}

// WithHTTPClient swaps the underlying client, mostly for tests.
func (f *Factory) WithHTTPClient(c *http.Client) *Factory {
	f.base = c
	return f
}

func (f *Factory) Build(name string, sess Session) (Provider, error) {
	switch name {
	case entity.ProviderGoogle:
		conf := f.oauthConfig(f.cfg.GoogleAPI, google.Endpoint)
		return newGoogle(f.authorized(name, sess, oauthRefresher(conf, f.base)), f.cfg.GoogleAPI.BaseURL, sess)
	case entity.ProviderOutlook:
		conf := f.oauthConfig(f.cfg.Microsoft, microsoft.AzureADEndpoint("common"))
		return &outlook{client: f.authorized(name, sess, oauthRefresher(conf, f.base)), baseURL: f.cfg.Microsoft.BaseURL}, nil
	case entity.ProviderCalendly:
		conf := f.oauthConfig(f.cfg.Calendly, oauth2.Endpoint{})
		return &calendly{client: f.authorized(name, sess, oauthRefresher(conf, f.base)), baseURL: f.cfg.Calendly.BaseURL}, nil
	case entity.ProviderSquare:
		sq := f.cfg.Square
		refresh := jsonRefresher(sq.TokenURL, sq.ClientID, sq.ClientSecret, f.base, map[string]string{"Square-Version": squareVersion})
		return &square{client: f.authorized(name, sess, refresh), baseURL: sq.BaseURL, locationID: sess.setting("location_id")}, nil
	case entity.ProviderMindbody:
		return newMindbody(f.base, f.cfg.Mindbody, sess)
	case entity.ProviderAcuity:
		return newAcuity(f.base, sess)
	default:
		return nil, &Error{Provider: name, Kind: KindConfig, Err: fmt.Errorf("unsupported provider %q", name)}
	}
}

func (f *Factory) oauthConfig(c config.OAuthConfig, endpoint oauth2.Endpoint) *oauth2.Config {
	if c.TokenURL != "" {
		endpoint.TokenURL = c.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
	}
}

func (f *Factory) authorized(name string, sess Session, refresh RefreshFunc) *http.Client {
	base := f.base.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Timeout:   f.base.Timeout,
		Transport: &authTransport{src: newTokenSource(name, sess, refresh), base: base},
	}
}

// Supported reports whether name has an adapter.
func Supported(name string) bool {
	switch strings.ToLower(name) {
	case entity.ProviderGoogle, entity.ProviderOutlook, entity.ProviderCalendly,
		entity.ProviderSquare, entity.ProviderMindbody, entity.ProviderAcuity:
		return true
	}
	return false
}
