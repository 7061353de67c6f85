package graph

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/playshelf/playshelf-api/app/cookies"
	"github.com/playshelf/playshelf-api/app/dto"
	"github.com/playshelf/playshelf-api/app/entity"
	"github.com/playshelf/playshelf-api/app/middleware"
	"github.com/playshelf/playshelf-api/app/service"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/sirupsen/logrus"
)

// errUnauthorized is the operation-level authorization failure: the
// authenticator resolves identity best-effort, each operation that needs one
// rejects anonymous requests itself.
var errUnauthorized = errors.New("Unauthorized")

type ctxKey int

const responseKey ctxKey = iota

// WithResponse lets mutation resolvers set the refresh cookie; the HTTP
// layer injects the writer before handing the request to the schema.
func WithResponse(ctx context.Context, w http.ResponseWriter) context.Context {
	return context.WithValue(ctx, responseKey, w)
}

func responseFrom(ctx context.Context) http.ResponseWriter {
	w, _ := ctx.Value(responseKey).(http.ResponseWriter)
	return w
}

type Resolver struct {
	authService  *service.AuthService
	shareService *service.ShareService
	cookies      *cookies.Factory
}

func NewResolver(authService *service.AuthService, shareService *service.ShareService, cookieFactory *cookies.Factory) *Resolver {
	return &Resolver{
		authService:  authService,
		shareService: shareService,
		cookies:      cookieFactory,
	}
}

func (r *Resolver) Me(ctx context.Context) (*UserResolver, error) {
	claims := middleware.IdentityFrom(ctx)
	if claims == nil {
		return nil, errUnauthorized
	}

	// The identity is the token's mint-time snapshot; profile edits made
	// since then show up only after the token is reissued.
	user := &entity.User{
		ID:    claims.UserID,
		Name:  claims.Name,
		Email: claims.Email,
	}
	if claims.Avatar != "" {
		user.Avatar.String = claims.Avatar
		user.Avatar.Valid = true
	}
	return &UserResolver{user: user}, nil
}

func (r *Resolver) SharedCollection(ctx context.Context, args struct{ ShareID string }) (*SharedCollectionResolver, error) {
	owner, err := r.shareService.SharedCollectionOwner(ctx, args.ShareID)
	if err != nil {
		if errors.Is(err, service.ErrShareLinkInvalid) {
			return nil, service.ErrShareLinkInvalid
		}
		logrus.WithError(err).Error("Shared collection lookup failed")
		return nil, errors.New("internal server error")
	}

	return &SharedCollectionResolver{shareID: args.ShareID, owner: owner}, nil
}

func (r *Resolver) Register(ctx context.Context, args struct{ Name, Email, Password string }) (*AuthPayloadResolver, error) {
	result, err := r.authService.Register(ctx, args.Name, args.Email, args.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyRegistered):
			return failedAuthPayload("Registration failed", "already registered"), nil
		case errors.Is(err, service.ErrWeakPassword):
			return failedAuthPayload("Registration failed", err.Error()), nil
		default:
			logrus.WithError(err).WithField("email", args.Email).Error("Register failed")
			return failedAuthPayload("Registration failed", "internal server error"), nil
		}
	}

	logrus.WithFields(logrus.Fields{
		"user_id": result.User.ID,
		"email":   result.User.Email,
	}).Info("User registered")

	return r.successAuthPayload(ctx, "Registration successful", result), nil
}

func (r *Resolver) Login(ctx context.Context, args struct{ Email, Password string }) (*AuthPayloadResolver, error) {
	result, err := r.authService.Login(ctx, args.Email, args.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return failedAuthPayload("Login failed", service.ErrInvalidCredentials.Error()), nil
		}
		logrus.WithError(err).WithField("email", args.Email).Error("Login failed")
		return failedAuthPayload("Login failed", "internal server error"), nil
	}

	logrus.WithField("email", result.User.Email).Info("Login successful")
	return r.successAuthPayload(ctx, "Login successful", result), nil
}

func (r *Resolver) GenerateShareLink(ctx context.Context) (*ShareLinkPayloadResolver, error) {
	claims := middleware.IdentityFrom(ctx)
	if claims == nil {
		return nil, errUnauthorized
	}

	url, err := r.shareService.GenerateShareLink(ctx, claims.UserID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", claims.UserID).Error("Share link generation failed")
		return &ShareLinkPayloadResolver{success: false, message: "internal server error"}, nil
	}

	return &ShareLinkPayloadResolver{success: true, message: "Share link ready", url: &url}, nil
}

func (r *Resolver) successAuthPayload(ctx context.Context, message string, result *dto.AuthResult) *AuthPayloadResolver {
	if w := responseFrom(ctx); w != nil {
		http.SetCookie(w, r.cookies.Refresh(result.Tokens.RefreshToken))
	}

	return &AuthPayloadResolver{
		success: true,
		message: message,
		auth: &AuthResolver{
			token: result.Tokens.AccessToken,
			user:  &UserResolver{user: result.User},
		},
	}
}

func failedAuthPayload(message, errText string) *AuthPayloadResolver {
	return &AuthPayloadResolver{success: false, message: message, errText: &errText}
}

type UserResolver struct {
	user *entity.User
}

func (r *UserResolver) ID() graphql.ID {
	return graphql.ID(strconv.FormatUint(r.user.ID, 10))
}

func (r *UserResolver) Name() string  { return r.user.Name }
func (r *UserResolver) Email() string { return r.user.Email }

func (r *UserResolver) Avatar() *string {
	if !r.user.Avatar.Valid {
		return nil
	}
	avatar := r.user.Avatar.String
	return &avatar
}

type AuthResolver struct {
	token string
	user  *UserResolver
}

func (r *AuthResolver) Token() string       { return r.token }
func (r *AuthResolver) User() *UserResolver { return r.user }

type AuthPayloadResolver struct {
	success bool
	message string
	errText *string
	auth    *AuthResolver
}

func (r *AuthPayloadResolver) Success() bool       { return r.success }
func (r *AuthPayloadResolver) Message() string     { return r.message }
func (r *AuthPayloadResolver) Error() *string      { return r.errText }
func (r *AuthPayloadResolver) Auth() *AuthResolver { return r.auth }

type ShareLinkPayloadResolver struct {
	success bool
	message string
	url     *string
}

func (r *ShareLinkPayloadResolver) Success() bool   { return r.success }
func (r *ShareLinkPayloadResolver) Message() string { return r.message }
func (r *ShareLinkPayloadResolver) URL() *string    { return r.url }

type SharedCollectionResolver struct {
	shareID string
	owner   *entity.User
}

func (r *SharedCollectionResolver) ShareID() string      { return r.shareID }
func (r *SharedCollectionResolver) Owner() *UserResolver { return &UserResolver{user: r.owner} }
