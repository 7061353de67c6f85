// Package cookies builds the auth cookies from one set of attributes.
// Browsers silently ignore a clear call whose attributes differ from the
// set call, so both sides must come from the same builder.
package cookies

import (
	"net/http"
	"time"

	"github.com/playshelf/playshelf-api/config"
)

const (
	RefreshCookieName = "refreshToken"
	SessionCookieName = "sid"
)

type Factory struct {
	domain     string
	secure     bool
	sameSite   http.SameSite
	refreshTTL time.Duration
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		domain:     cfg.Cookie.Domain,
		secure:     cfg.Cookie.Secure,
		sameSite:   cfg.Cookie.SameSiteMode(),
		refreshTTL: cfg.JWT.RefreshTokenTTL,
	}
}

// Refresh carries the refresh token; http-only so scripts never see it.
func (f *Factory) Refresh(value string) *http.Cookie {
	return f.build(RefreshCookieName, value, int(f.refreshTTL.Seconds()))
}

func (f *Factory) ClearRefresh() *http.Cookie {
	return f.build(RefreshCookieName, "", -1)
}

// Session carries the opaque server-side session id set during the OAuth
// handshake; logout uses it to destroy the session record.
func (f *Factory) Session(value string) *http.Cookie {
	return f.build(SessionCookieName, value, int(f.refreshTTL.Seconds()))
}

func (f *Factory) ClearSession() *http.Cookie {
	return f.build(SessionCookieName, "", -1)
}

func (f *Factory) build(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   f.domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: f.sameSite,
	}
}
