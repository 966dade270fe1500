package service

import (
	"context"

	"github.com/iliyamo/foodshare/internal/repository"
)

// StatsService serves the admin dashboard figures.
type StatsService struct {
	Stats *repository.StatsRepo
	Clock Clock
}

func NewStatsService(stats *repository.StatsRepo) *StatsService {
	return &StatsService{Stats: stats}
}

func (s *StatsService) Accounts(ctx context.Context, actor Actor) (repository.AccountStats, error) {
	if !actor.IsAdmin() {
		return repository.AccountStats{}, Forbidden("admin only")
	}
	return s.Stats.Accounts(ctx)
}

func (s *StatsService) Listings(ctx context.Context, actor Actor) (repository.ListingStats, error) {
	if !actor.IsAdmin() {
		return repository.ListingStats{}, Forbidden("admin only")
	}
	return s.Stats.Listings(ctx, s.Clock.now())
}

func (s *StatsService) Reservations(ctx context.Context, actor Actor) (repository.ReservationStats, error) {
	if !actor.IsAdmin() {
		return repository.ReservationStats{}, Forbidden("admin only")
	}
	return s.Stats.Reservations(ctx)
}
