package devserver

import (
	"context"
	"log/slog"
	"time"
)

// PurgeRefreshTokens удаляет просроченные и отозванные refresh-токены.
// Возвращает число удалённых записей.
func (s *Server) PurgeRefreshTokens() int {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for hash, rt := range s.refresh {
		if rt.Revoked || now.After(rt.ExpiresAt) {
			delete(s.refresh, hash)
			n++
		}
	}

	return n
}

// StartJanitor периодически вызывает PurgeRefreshTokens до отмены ctx.
// period<=0 - janitor не запускается.
func (s *Server) StartJanitor(ctx context.Context, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.PurgeRefreshTokens(); n > 0 {
					s.opts.Logger.Debug("refresh_janitor_purged", slog.Int("count", n))
				}
			}
		}
	}()
}
