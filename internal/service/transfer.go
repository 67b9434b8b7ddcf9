package service

import (
	"context"

	"criptodash/internal/store"

	"github.com/charmbracelet/log"
)

// Export writes the latest snapshot of every configured coin to path.
func (s *PriceService) Export(ctx context.Context, path string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "price-service.export")
	defer span.End()

	n, err := store.Export(ctx, s.store, path, s.coins, s.now())
	if err != nil {
		return 0, err
	}
	log.Infof("exported %d coins to %s", n, path)
	return n, nil
}

// Import loads an export or mirror file into the store. Cached quotes for
// the imported coins are dropped so the next read sees the store.
func (s *PriceService) Import(ctx context.Context, path string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "price-service.import")
	defer span.End()

	coins, err := store.Import(ctx, s.store, path)
	s.invalidateCache(ctx, coins)
	if err != nil {
		return coins, err
	}
	log.Infof("imported %d coins from %s", len(coins), path)
	return coins, nil
}
