package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/playshelf/playshelf-api/app/entity"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// Claims is the identity snapshot embedded in both token kinds. It is taken
// at mint time and does not follow later profile edits; a stale snapshot
// stays stale until the token is reissued.
type Claims struct {
	UserID uint64 `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Issuer mints and verifies access and refresh tokens. The two kinds are
// signed with distinct secrets, so a token of one kind can never verify as
// the other.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// Issue mints an access/refresh pair carrying the same identity snapshot.
func (i *Issuer) Issue(user *entity.User) (*Pair, error) {
	snapshot := Claims{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Avatar: user.AvatarURL(),
	}

	accessToken, err := i.sign(snapshot, i.accessSecret, i.accessTTL)
	if err != nil {
		return nil, err
	}

	refreshToken, err := i.sign(snapshot, i.refreshSecret, i.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// IssueAccessFromClaims mints a fresh access token from a verified refresh
// token's snapshot. No database read happens here: the refresh endpoint
// serves whatever profile the refresh token was minted with.
func (i *Issuer) IssueAccessFromClaims(claims *Claims) (string, error) {
	snapshot := Claims{
		UserID: claims.UserID,
		Name:   claims.Name,
		Email:  claims.Email,
		Avatar: claims.Avatar,
	}
	return i.sign(snapshot, i.accessSecret, i.accessTTL)
}

func (i *Issuer) VerifyAccess(tokenString string) (*Claims, error) {
	return i.verify(tokenString, i.accessSecret)
}

func (i *Issuer) VerifyRefresh(tokenString string) (*Claims, error) {
	return i.verify(tokenString, i.refreshSecret)
}

func (i *Issuer) sign(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Subject:   claims.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	return token.SignedString(secret)
}

func (i *Issuer) verify(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
