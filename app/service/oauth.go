package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/playshelf/playshelf-api/app/dto"
	"github.com/playshelf/playshelf-api/app/entity"
	"github.com/playshelf/playshelf-api/app/repository"
	"github.com/playshelf/playshelf-api/app/session"
	"github.com/playshelf/playshelf-api/app/storage"
	"github.com/playshelf/playshelf-api/app/token"
	"github.com/playshelf/playshelf-api/config"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var (
	ErrOAuthStateMismatch = errors.New("oauth state mismatch")
	ErrOAuthFailed        = errors.New("oauth authentication failed")
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo?access_token="
	oauthStateTTL     = 10 * time.Minute
	oauthStatePrefix  = "oauth_state:"
	avatarUploadLimit = 15 * time.Second
)

// GoogleProfile is the provider snapshot delivered by a successful callback.
type GoogleProfile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type OAuthService struct {
	userRepo   userRepository
	issuer     *token.Issuer
	avatars    storage.AvatarStore
	sessions   session.Store
	oauthConf  *oauth2.Config
	httpClient *http.Client
}

func NewOAuthService(
	userRepo userRepository,
	issuer *token.Issuer,
	avatars storage.AvatarStore,
	sessions session.Store,
	cfg *config.Config,
) *OAuthService {
	return &OAuthService{
		userRepo: userRepo,
		issuer:   issuer,
		avatars:  avatars,
		sessions: sessions,
		oauthConf: &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.CallbackBaseURL + "/auth/google/callback",
			Scopes:       []string{"profile", "email"},
			Endpoint:     google.Endpoint,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewStateToken mints a CSRF nonce for the redirect and parks it in the
// session store until the provider calls back.
func (s *OAuthService) NewStateToken(ctx context.Context) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	if err := s.sessions.Set(ctx, oauthStatePrefix+state, "1", oauthStateTTL); err != nil {
		return "", err
	}
	return state, nil
}

// ConsumeState validates and burns a state nonce; each nonce is good for
// exactly one callback.
func (s *OAuthService) ConsumeState(ctx context.Context, state string) error {
	if state == "" {
		return ErrOAuthStateMismatch
	}

	key := oauthStatePrefix + state
	if _, err := s.sessions.Get(ctx, key); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrOAuthStateMismatch
		}
		return err
	}
	return s.sessions.Delete(ctx, key)
}

func (s *OAuthService) AuthURL(state string) string {
	return s.oauthConf.AuthCodeURL(state)
}

// HandleCallback exchanges the authorization code, fetches the provider
// profile, resolves it to a local user and issues a token pair.
func (s *OAuthService) HandleCallback(ctx context.Context, code string) (*dto.AuthResult, error) {
	oauthToken, err := s.oauthConf.Exchange(ctx, code)
	if err != nil {
		logrus.WithError(err).Warn("OAuth code exchange failed")
		return nil, fmt.Errorf("%w: %s", ErrOAuthFailed, "code exchange failed")
	}

	profile, err := s.fetchGoogleProfile(ctx, oauthToken)
	if err != nil {
		logrus.WithError(err).Warn("Google profile fetch failed")
		return nil, fmt.Errorf("%w: %s", ErrOAuthFailed, "profile fetch failed")
	}

	user, err := s.ResolveProfile(ctx, profile)
	if err != nil {
		return nil, err
	}

	tokens, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResult{User: user, Tokens: tokens}, nil
}

// ResolveProfile finds or creates the local user for a provider profile.
// Email is the merge key, not the provider id: a local account and a Google
// account sharing an email are one user. New accounts are only created after
// the avatar upload succeeds, so no user ever exists with a dangling avatar
// reference.
func (s *OAuthService) ResolveProfile(ctx context.Context, profile *GoogleProfile) (*entity.User, error) {
	if profile.Email == "" {
		return nil, fmt.Errorf("%w: %s", ErrOAuthFailed, "provider profile has no email")
	}

	email := normalizeEmail(profile.Email)
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		created, err := s.createFromProfile(ctx, email, profile)
		if err != nil {
			return nil, err
		}
		return created, nil
	}

	if !user.GoogleID.Valid {
		// Account-linking path: attach the provider id to the existing
		// local account, leaving password and avatar untouched.
		if err = s.userRepo.AttachGoogleID(ctx, user.ID, profile.ID); err != nil {
			return nil, err
		}
		user.GoogleID = sql.NullString{String: profile.ID, Valid: true}
		logrus.WithFields(logrus.Fields{
			"user_id":   user.ID,
			"google_id": profile.ID,
		}).Info("Linked Google identity to existing account")
	}

	return user, nil
}

func (s *OAuthService) createFromProfile(ctx context.Context, email string, profile *GoogleProfile) (*entity.User, error) {
	uploadCtx, cancel := context.WithTimeout(ctx, avatarUploadLimit)
	defer cancel()

	avatarURL := ""
	if profile.Picture != "" {
		// Deterministic key: repeated logins overwrite rather than pile up.
		key := "user_avatars/google_" + profile.ID
		url, err := s.avatars.UploadFromURL(uploadCtx, profile.Picture, key)
		if err != nil {
			// Do not create a user with a broken avatar reference.
			return nil, err
		}
		avatarURL = url
	}

	now := time.Now()
	user := &entity.User{
		Email:     email,
		Name:      profile.Name,
		GoogleID:  sql.NullString{String: profile.ID, Valid: true},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if avatarURL != "" {
		user.Avatar = sql.NullString{String: avatarURL, Valid: true}
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if repository.IsDuplicateEntry(err) {
			// Lost a race against a concurrent callback or registration
			// for the same email; the winner's row is the user.
			existing, findErr := s.userRepo.FindByEmail(ctx, email)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":   user.ID,
		"google_id": profile.ID,
	}).Info("Created user from Google profile")

	return user, nil
}

func (s *OAuthService) fetchGoogleProfile(ctx context.Context, oauthToken *oauth2.Token) (*GoogleProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL+oauthToken.AccessToken, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	profile := &GoogleProfile{}
	if err = json.NewDecoder(resp.Body).Decode(profile); err != nil {
		return nil, err
	}
	return profile, nil
}
