package api

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/logging"
)

// DefaultPreviewConcurrency bounds parallel history fetches for previews.
const DefaultPreviewConcurrency = 4

// HistoryLoader is the subset of Client used for preview fan-out.
type HistoryLoader interface {
	LoadHistory(ctx context.Context, counterpartyID string) ([]chat.Message, error)
}

// LoadPreviews fetches each counterparty's history and returns its last
// message. Counterparties with no messages or a failed fetch are absent;
// only ErrUnauthorized aborts the whole fan-out.
func LoadPreviews(ctx context.Context, loader HistoryLoader, roster []chat.Counterparty, selfID string, limit int) (map[string]chat.Message, error) {
	if limit <= 0 {
		limit = DefaultPreviewConcurrency
	}

	logger := logging.Component("api")
	var mu sync.Mutex
	out := make(map[string]chat.Message, len(roster))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, entry := range FilterRoster(roster, selfID) {
		id := entry.ID
		g.Go(func() error {
			history, err := loader.LoadHistory(gctx, id)
			if err != nil {
				if errors.Is(err, chat.ErrUnauthorized) {
					return err
				}
				logger.Debug().Err(err).Str("counterparty_id", id).Msg("preview fetch failed")
				return nil
			}
			if len(history) == 0 {
				return nil
			}
			mu.Lock()
			out[id] = history[len(history)-1]
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
