package announcement

import (
	"context"
	"errors"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	listLimit       = 100
	AudienceAll     = "all"
	userAudiencePfx = "user:"
)

var (
	ErrMissingTitle = errors.New("missing_title")
	ErrInvalidID    = errors.New("invalid_id")
)

type Repository interface {
	List(ctx context.Context, limit uint64) ([]entity.Announcement, error)
	Create(ctx context.Context, a *entity.Announcement) error
	Delete(ctx context.Context, id int64) (int64, error)
}

type AnnouncementService struct {
	repo Repository
}

func NewAnnouncementService(repo Repository) *AnnouncementService {
	return &AnnouncementService{repo: repo}
}

// UserAudience scopes an announcement to a single user.
func UserAudience(userID string) string {
	return userAudiencePfx + userID
}

// List returns the newest announcements, or an empty list when storage fails.
func (s *AnnouncementService) List(ctx context.Context) []entity.Announcement {
	items, err := s.repo.List(ctx, listLimit)
	if err != nil {
		logrus.Errorf("list announcements: %v", err)
		return []entity.Announcement{}
	}
	return items
}

func (s *AnnouncementService) Create(ctx context.Context, title string, body, audience *string) (*entity.Announcement, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrMissingTitle
	}
	item := &entity.Announcement{
		Title:    title,
		Body:     null.StringFrom(""),
		Audience: null.StringFrom(AudienceAll),
	}
	if body != nil {
		item.Body = null.StringFrom(*body)
	}
	if audience != nil {
		item.Audience = null.StringFrom(*audience)
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *AnnouncementService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	_, err := s.repo.Delete(ctx, id)
	return err
}
