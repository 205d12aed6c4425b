package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/snapgram/internal/apperrors"
	"github.com/nkiryanov/snapgram/internal/models"
	"github.com/nkiryanov/snapgram/internal/repository"
)

// Profile operations of authenticated users
type UserService struct {
	userRepo repository.UserRepo
}

func NewService(userRepo repository.UserRepo) *UserService {
	return &UserService{
		userRepo: userRepo,
	}
}

func (s *UserService) GetProfile(ctx context.Context, userID uuid.UUID) (models.User, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return user, fmt.Errorf("can't get user. Err: %w", err)
	}

	return user, nil
}

func (s *UserService) UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, fmt.Errorf("%w: username", apperrors.ErrMissingField)
	}

	user, err := s.userRepo.UpdateUsername(ctx, userID, username)
	if err != nil {
		return user, fmt.Errorf("can't update username. Err: %w", err)
	}

	return user, nil
}
