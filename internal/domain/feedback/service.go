package feedback

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) SubmitFeedback(ctx context.Context, userID uuid.UUID, rating int, message string) (*Feedback, error) {
	f := &Feedback{UserID: userID, Rating: rating, Message: message}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("user_id", userID.String()).Int("rating", rating).Msg("feedback submitted")
	return f, nil
}

func (s *Service) ListFeedback(ctx context.Context, limit, offset int) ([]*Feedback, int, error) {
	return s.repo.List(ctx, limit, offset)
}
