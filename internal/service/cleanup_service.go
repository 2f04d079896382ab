package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/storage"
)

// CleanupService removes payload records whose script file has vanished
// from the store and that no deployment references.
type CleanupService struct {
	payloadRepo domain.PayloadRepository
	store       storage.FileStore
	log         *slog.Logger
}

func NewCleanupService(payloadRepo domain.PayloadRepository, store storage.FileStore, log *slog.Logger) *CleanupService {
	return &CleanupService{
		payloadRepo: payloadRepo,
		store:       store,
		log:         log,
	}
}

// StartScheduler runs cleanup at the specified interval. Call in a goroutine.
func (s *CleanupService) StartScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("cleanup scheduler started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			s.RunCleanup(ctx)
		}
	}
}

// RunCleanup returns how many payload records were removed.
func (s *CleanupService) RunCleanup(ctx context.Context) int {
	cleaned := 0
	for page := 1; ; page++ {
		payloads, total, err := s.payloadRepo.List(ctx, domain.PayloadFilter{Page: page, PerPage: 100})
		if err != nil {
			s.log.Warn("cleanup: failed to list payloads", "err", err)
			return cleaned
		}

		for _, p := range payloads {
			reader, err := s.store.Open(p.StoragePath)
			if err == nil {
				reader.Close()
				continue
			}
			if !errors.Is(err, storage.ErrNotExist) {
				s.log.Warn("cleanup: cannot check payload script", "id", p.ID, "err", err)
				continue
			}

			err = s.payloadRepo.Delete(ctx, p.ID)
			switch {
			case err == nil:
				s.log.Info("cleanup: removed payload with missing script", "id", p.ID, "name", p.Name, "path", p.StoragePath)
				cleaned++
			case errors.Is(err, domain.ErrPayloadInUse):
				s.log.Warn("cleanup: payload script missing but still referenced", "id", p.ID, "path", p.StoragePath)
			default:
				s.log.Warn("cleanup: failed to delete orphan payload", "id", p.ID, "err", err)
			}
		}

		if len(payloads) == 0 || page*100 >= total {
			break
		}
	}

	s.log.Info("cleanup completed", "removed", cleaned)
	return cleaned
}
