package controller

import (
	"errors"
	"net/http"

	"github.com/playshelf/playshelf-api/app/cookies"
	httpdto "github.com/playshelf/playshelf-api/app/dto/http"
	"github.com/playshelf/playshelf-api/app/service"
	"github.com/playshelf/playshelf-api/app/session"
	"github.com/playshelf/playshelf-api/app/token"
	"github.com/playshelf/playshelf-api/config"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const sessionKeyPrefix = "session:"

type AuthController struct {
	oauthService *service.OAuthService
	authService  *service.AuthService
	issuer       *token.Issuer
	sessions     session.Store
	cookies      *cookies.Factory
	cfg          *config.Config
}

func NewAuthController(
	oauthService *service.OAuthService,
	authService *service.AuthService,
	issuer *token.Issuer,
	sessions session.Store,
	cookieFactory *cookies.Factory,
	cfg *config.Config,
) *AuthController {
	return &AuthController{
		oauthService: oauthService,
		authService:  authService,
		issuer:       issuer,
		sessions:     sessions,
		cookies:      cookieFactory,
		cfg:          cfg,
	}
}

// GoogleLogin starts the OAuth redirect with a fresh state nonce.
func (c *AuthController) GoogleLogin(ctx echo.Context) error {
	state, err := c.oauthService.NewStateToken(ctx.Request().Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to create oauth state token")
		return ctx.JSON(http.StatusInternalServerError, httpdto.MessageResponse{Message: "internal server error"})
	}

	return ctx.Redirect(http.StatusTemporaryRedirect, c.oauthService.AuthURL(state))
}

// GoogleCallback finishes the OAuth handshake: set the refresh cookie, open
// a server-side session, and hand the access token to the frontend via the
// redirect URL. Any failure sends the browser to the failure page instead.
func (c *AuthController) GoogleCallback(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	failureURL := c.cfg.FrontendURL + "/login-failed"

	if errParam := ctx.QueryParam("error"); errParam != "" {
		logrus.WithField("error", errParam).Warn("OAuth provider returned an error")
		return ctx.Redirect(http.StatusTemporaryRedirect, failureURL)
	}

	if err := c.oauthService.ConsumeState(reqCtx, ctx.QueryParam("state")); err != nil {
		logrus.WithError(err).Warn("OAuth state validation failed")
		return ctx.Redirect(http.StatusTemporaryRedirect, failureURL)
	}

	result, err := c.oauthService.HandleCallback(reqCtx, ctx.QueryParam("code"))
	if err != nil {
		logrus.WithError(err).Warn("OAuth callback failed")
		return ctx.Redirect(http.StatusTemporaryRedirect, failureURL)
	}

	sid := uuid.New().String()
	if err = c.sessions.Set(reqCtx, sessionKeyPrefix+sid, result.User.Email, c.issuer.RefreshTTL()); err != nil {
		logrus.WithError(err).Error("Failed to create session record")
		return ctx.Redirect(http.StatusTemporaryRedirect, failureURL)
	}

	ctx.SetCookie(c.cookies.Refresh(result.Tokens.RefreshToken))
	ctx.SetCookie(c.cookies.Session(sid))

	return ctx.Redirect(http.StatusTemporaryRedirect,
		c.cfg.FrontendURL+"/auth-success?token="+result.Tokens.AccessToken)
}

// RefreshToken mints a new access token from the refresh cookie. The new
// token carries the refresh token's embedded snapshot; no database read, no
// new refresh token. Missing cookie is 401, bad or expired cookie is 403.
func (c *AuthController) RefreshToken(ctx echo.Context) error {
	cookie, err := ctx.Cookie(cookies.RefreshCookieName)
	if err != nil || cookie.Value == "" {
		return ctx.JSON(http.StatusUnauthorized, httpdto.MessageResponse{Message: "no refresh token"})
	}

	claims, err := c.issuer.VerifyRefresh(cookie.Value)
	if err != nil {
		logrus.WithError(err).Debug("Refresh token rejected")
		return ctx.JSON(http.StatusForbidden, httpdto.MessageResponse{Message: "invalid refresh token"})
	}

	accessToken, err := c.issuer.IssueAccessFromClaims(claims)
	if err != nil {
		logrus.WithError(err).Error("Failed to issue access token")
		return ctx.JSON(http.StatusInternalServerError, httpdto.MessageResponse{Message: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, httpdto.RefreshTokenResponse{AccessToken: accessToken})
}

// Logout clears both cookies with the exact attributes they were set with
// and destroys the session record. Idempotent: succeeds whether or not a
// session existed.
func (c *AuthController) Logout(ctx echo.Context) error {
	if sidCookie, err := ctx.Cookie(cookies.SessionCookieName); err == nil && sidCookie.Value != "" {
		if err = c.sessions.Delete(ctx.Request().Context(), sessionKeyPrefix+sidCookie.Value); err != nil {
			logrus.WithError(err).Warn("Failed to destroy session record")
		}
	}

	ctx.SetCookie(c.cookies.ClearRefresh())
	ctx.SetCookie(c.cookies.ClearSession())

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "Logged out successfully"})
}

func (c *AuthController) ForgotPassword(ctx echo.Context) error {
	var req httpdto.ForgotPasswordRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.MessageResponse{Message: "invalid request body"})
	}
	if req.Email == "" {
		return ctx.JSON(http.StatusBadRequest, httpdto.MessageResponse{Message: "email is required"})
	}

	// Unknown emails get the same answer as known ones; the response must
	// not confirm whether an account exists.
	const sentMessage = "If an account with that email exists, a password reset email has been sent."

	err := c.authService.ForgotPassword(ctx.Request().Context(), req.Email)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: sentMessage})
		}
		logrus.WithError(err).Error("Forgot password failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.MessageResponse{Message: "Server error."})
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: sentMessage})
}

func (c *AuthController) ResetPassword(ctx echo.Context) error {
	var req httpdto.ResetPasswordRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.MessageResponse{Message: "invalid request body"})
	}
	if req.Token == "" || req.NewPassword == "" {
		return ctx.JSON(http.StatusBadRequest, httpdto.MessageResponse{Message: "token and newPassword are required"})
	}

	err := c.authService.ResetPassword(ctx.Request().Context(), req.Token, req.NewPassword)
	if err != nil {
		if errors.Is(err, service.ErrResetTokenInvalid) {
			return ctx.JSON(http.StatusBadRequest, httpdto.MessageResponse{Message: "Password reset token is invalid or has expired."})
		}
		if errors.Is(err, service.ErrWeakPassword) {
			return ctx.JSON(http.StatusBadRequest, httpdto.MessageResponse{Message: err.Error()})
		}
		logrus.WithError(err).Error("Reset password failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.MessageResponse{Message: "Server error."})
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "Password has been reset successfully."})
}
