package cookies_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/playshelf/playshelf-api/app/cookies"
	"github.com/playshelf/playshelf-api/config"
)

func newFactory() *cookies.Factory {
	cfg := &config.Config{}
	cfg.Cookie = config.CookieConfig{
		Domain:   "api.example.com",
		Secure:   true,
		SameSite: "none",
	}
	cfg.JWT.RefreshTokenTTL = 30 * 24 * time.Hour
	return cookies.NewFactory(cfg)
}

func TestRefreshCookieAttributes(t *testing.T) {
	c := newFactory().Refresh("token-value")

	if c.Name != cookies.RefreshCookieName {
		t.Fatalf("unexpected name %q", c.Name)
	}
	if c.Value != "token-value" {
		t.Fatalf("unexpected value %q", c.Value)
	}
	if !c.HttpOnly {
		t.Fatal("refresh cookie must be http-only")
	}
	if !c.Secure {
		t.Fatal("expected secure cookie")
	}
	if c.SameSite != http.SameSiteNoneMode {
		t.Fatalf("unexpected SameSite %v", c.SameSite)
	}
	if c.Path != "/" {
		t.Fatalf("unexpected path %q", c.Path)
	}
	if c.MaxAge != int((30 * 24 * time.Hour).Seconds()) {
		t.Fatalf("unexpected max age %d", c.MaxAge)
	}
}

func TestClearMirrorsSetAttributes(t *testing.T) {
	f := newFactory()

	pairs := []struct {
		name string
		set  *http.Cookie
		del  *http.Cookie
	}{
		{"refresh", f.Refresh("v"), f.ClearRefresh()},
		{"session", f.Session("v"), f.ClearSession()},
	}

	for _, p := range pairs {
		if p.del.Name != p.set.Name {
			t.Fatalf("%s: name mismatch %q vs %q", p.name, p.del.Name, p.set.Name)
		}
		if p.del.Value != "" {
			t.Fatalf("%s: clear cookie still carries a value", p.name)
		}
		if p.del.MaxAge != -1 {
			t.Fatalf("%s: expected MaxAge -1, got %d", p.name, p.del.MaxAge)
		}
		// A clear whose attributes differ from the set is ignored by browsers.
		if p.del.Path != p.set.Path || p.del.Domain != p.set.Domain {
			t.Fatalf("%s: path/domain mismatch", p.name)
		}
		if p.del.Secure != p.set.Secure || p.del.HttpOnly != p.set.HttpOnly || p.del.SameSite != p.set.SameSite {
			t.Fatalf("%s: attribute mismatch between set and clear", p.name)
		}
	}
}

func TestSameSiteDefaultsToNone(t *testing.T) {
	cfg := &config.Config{}
	cfg.Cookie.SameSite = "unrecognized"
	if c := cookies.NewFactory(cfg).Refresh("v"); c.SameSite != http.SameSiteNoneMode {
		t.Fatalf("unexpected SameSite %v", c.SameSite)
	}
}
