package announcement

import (
	"context"
	"errors"
	"testing"

	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	items   []entity.Announcement
	listErr error
}

func (m *memoryRepo) List(ctx context.Context, limit uint64) ([]entity.Announcement, error) {
	return m.items, m.listErr
}

func (m *memoryRepo) Create(ctx context.Context, a *entity.Announcement) error {
	a.ID = int64(len(m.items) + 1)
	m.items = append(m.items, *a)
	return nil
}

func (m *memoryRepo) Delete(ctx context.Context, id int64) (int64, error) {
	return 1, nil
}

func TestCreate(t *testing.T) {
	svc := NewAnnouncementService(&memoryRepo{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "  ", nil, nil)
	assert.ErrorIs(t, err, ErrMissingTitle)

	item, err := svc.Create(ctx, "Maintenance", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "", item.Body.String)
	assert.True(t, item.Body.Valid)
	assert.Equal(t, AudienceAll, item.Audience.String)

	body, audience := "Gone", UserAudience("u1")
	item, err = svc.Create(ctx, "Account removed", &body, &audience)
	require.NoError(t, err)
	assert.Equal(t, "user:u1", item.Audience.String)
	assert.Equal(t, "Gone", item.Body.String)
}

func TestList_FailureIsEmpty(t *testing.T) {
	svc := NewAnnouncementService(&memoryRepo{listErr: errors.New("db")})
	items := svc.List(context.Background())
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestDelete_InvalidID(t *testing.T) {
	svc := NewAnnouncementService(&memoryRepo{})
	assert.ErrorIs(t, svc.Delete(context.Background(), 0), ErrInvalidID)
	assert.NoError(t, svc.Delete(context.Background(), 3))
}
