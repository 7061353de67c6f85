package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/playshelf/playshelf-api/app/entity"

	"github.com/google/uuid"
)

var ErrShareLinkInvalid = errors.New("invalid share link")

// ShareService manages the opaque public identifier that exposes a user's
// collection read-only. A share id is created lazily on first request and is
// never reassigned or cleared afterwards.
type ShareService struct {
	userRepo    userRepository
	frontendURL string
}

func NewShareService(userRepo userRepository, frontendURL string) *ShareService {
	return &ShareService{userRepo: userRepo, frontendURL: frontendURL}
}

func (s *ShareService) GenerateShareLink(ctx context.Context, userID uint64) (string, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	if user.ShareID.Valid {
		return s.shareURL(user.ShareID.String), nil
	}

	shareID := uuid.New().String()
	rows, err := s.userRepo.SetShareIDIfAbsent(ctx, userID, shareID)
	if err != nil {
		return "", err
	}
	if rows == 0 {
		// A concurrent request assigned the id first; use theirs.
		user, err = s.userRepo.FindByID(ctx, userID)
		if err != nil {
			return "", err
		}
		if user == nil || !user.ShareID.Valid {
			return "", fmt.Errorf("share id missing after concurrent assignment for user %d", userID)
		}
		shareID = user.ShareID.String
	}

	return s.shareURL(shareID), nil
}

// SharedCollectionOwner resolves a public share id to its owner. No
// authentication involved; an unknown id is simply invalid.
func (s *ShareService) SharedCollectionOwner(ctx context.Context, shareID string) (*entity.User, error) {
	if shareID == "" {
		return nil, ErrShareLinkInvalid
	}

	user, err := s.userRepo.FindByShareID(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrShareLinkInvalid
	}
	return user, nil
}

func (s *ShareService) shareURL(shareID string) string {
	return s.frontendURL + "/shared/" + shareID
}
