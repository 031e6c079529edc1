package watchlist

import (
	"context"
	"errors"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/sirupsen/logrus"
)

var (
	ErrBadSymbol     = errors.New("bad_symbol")
	ErrUnknownSymbol = errors.New("unknown_symbol")
)

type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]entity.WatchlistItem, error)
	NextPosition(ctx context.Context, userID string) (int, error)
	Upsert(ctx context.Context, item *entity.WatchlistItem) error
	UpdateMeta(ctx context.Context, item *entity.WatchlistItem) error
	Delete(ctx context.Context, userID, symbol string) (int64, error)
}

type AssetResolver interface {
	ResolveAssetMeta(ctx context.Context, raw string) (*entity.AssetMeta, error)
}

type WatchlistService struct {
	repo     Repository
	resolver AssetResolver
}

func NewWatchlistService(repo Repository, resolver AssetResolver) *WatchlistService {
	return &WatchlistService{repo: repo, resolver: resolver}
}

// List backfills display meta on rows saved before it was tracked. Rows whose
// symbol no longer resolves are removed.
func (s *WatchlistService) List(ctx context.Context, userID string) ([]entity.WatchlistItem, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]entity.WatchlistItem, 0, len(rows))
	for _, row := range rows {
		row.Symbol = strings.ToUpper(row.Symbol)
		if row.Symbol == "" {
			continue
		}
		if !row.DisplaySymbol.Valid || row.DisplaySymbol.String == "" {
			row.DisplaySymbol = null.StringFrom(row.Symbol)
		} else {
			row.DisplaySymbol = null.StringFrom(strings.ToUpper(row.DisplaySymbol.String))
		}

		if !row.AssetType.Valid || !row.DisplayName.Valid || row.DisplayName.String == "" {
			keep := s.backfill(ctx, &row)
			if !keep {
				continue
			}
		}
		if !row.DisplayName.Valid || row.DisplayName.String == "" {
			row.DisplayName = null.StringFrom(row.Symbol)
		}
		items = append(items, row)
	}

	return items, nil
}

func (s *WatchlistService) backfill(ctx context.Context, row *entity.WatchlistItem) bool {
	logger := logrus.WithFields(logrus.Fields{"userID": row.UserID, "symbol": row.Symbol})

	meta, err := s.resolver.ResolveAssetMeta(ctx, row.Symbol)
	if err != nil {
		logger.Warnf("watchlist backfill resolve: %v", err)
		return true
	}
	if meta == nil {
		if _, err := s.repo.Delete(ctx, row.UserID, row.Symbol); err != nil {
			logger.Warnf("drop unresolvable watchlist row: %v", err)
		}
		return false
	}

	applyMeta(row, meta)
	if err := s.repo.UpdateMeta(ctx, row); err != nil {
		logger.Warnf("watchlist backfill update: %v", err)
	}
	return true
}

// Add resolves raw and upserts it. A nil position appends after the last row.
func (s *WatchlistService) Add(ctx context.Context, userID, raw string, position *int) (*entity.WatchlistItem, *entity.AssetMeta, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil, ErrBadSymbol
	}

	meta, err := s.resolver.ResolveAssetMeta(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	if meta == nil {
		return nil, nil, ErrUnknownSymbol
	}

	pos := 0
	if position != nil && *position >= 0 {
		pos = *position
	} else if next, err := s.repo.NextPosition(ctx, userID); err == nil {
		pos = next
	}

	item := &entity.WatchlistItem{UserID: userID, Symbol: meta.Symbol, Position: pos}
	applyMeta(item, meta)
	if err := s.repo.Upsert(ctx, item); err != nil {
		return nil, nil, err
	}
	return item, meta, nil
}

// Remove deletes by canonical symbol, falling back to the uppercased input.
func (s *WatchlistService) Remove(ctx context.Context, userID, raw string) error {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if symbol == "" {
		return ErrBadSymbol
	}
	if meta, err := s.resolver.ResolveAssetMeta(ctx, raw); err == nil && meta != nil && meta.Symbol != "" {
		symbol = meta.Symbol
	}

	_, err := s.repo.Delete(ctx, userID, symbol)
	return err
}

func applyMeta(item *entity.WatchlistItem, meta *entity.AssetMeta) {
	if meta.AssetType != "" {
		item.AssetType = null.StringFrom(meta.AssetType)
	}
	displaySymbol := meta.DisplaySymbol
	if displaySymbol == "" {
		displaySymbol = meta.Symbol
	}
	item.DisplaySymbol = null.StringFrom(strings.ToUpper(displaySymbol))
	name := meta.Name
	if name == "" {
		name = meta.Symbol
	}
	item.DisplayName = null.StringFrom(name)
}
