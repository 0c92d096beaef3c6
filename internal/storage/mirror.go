package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fablegate/fable/pkg/state"
)

// Gateway fronts a local store with an optional remote mirror. Writes go
// to the local store synchronously and are mirrored to the remote in the
// background, so a slow or unreachable remote never blocks play.
type Gateway struct {
	local  Store
	remote Store // nil when running local-only
	logger *slog.Logger

	remoteTimeout time.Duration
	wg            sync.WaitGroup
}

var _ Store = (*Gateway)(nil)

// NewGateway creates a mirrored store. remote may be nil.
func NewGateway(local, remote Store, logger *slog.Logger) *Gateway {
	return &Gateway{
		local:         local,
		remote:        remote,
		logger:        logger,
		remoteTimeout: 10 * time.Second,
	}
}

// HasRemote reports whether a remote mirror is configured.
func (g *Gateway) HasRemote() bool {
	return g.remote != nil
}

func (g *Gateway) Ping(ctx context.Context) error {
	return g.local.Ping(ctx)
}

func (g *Gateway) Close() error {
	g.wg.Wait()
	err := g.local.Close()
	if g.remote != nil {
		if rerr := g.remote.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

// Flush blocks until all in-flight remote mirror writes have finished.
func (g *Gateway) Flush() {
	g.wg.Wait()
}

// mirror runs fn against the remote store in the background, logging
// failures instead of surfacing them.
func (g *Gateway) mirror(op string, fn func(ctx context.Context) error) {
	if g.remote == nil {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.remoteTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			g.logger.Warn("Remote mirror write failed", "op", op, "error", err)
		}
	}()
}

func (g *Gateway) SaveSession(ctx context.Context, s *state.Session) error {
	if err := g.local.SaveSession(ctx, s); err != nil {
		return err
	}
	// The background write serializes the snapshot after this call
	// returns, so it must not alias the caller's maps and slices.
	snapshot := s.Clone()
	g.mirror("save_session", func(ctx context.Context) error {
		return g.remote.SaveSession(ctx, snapshot)
	})
	return nil
}

func (g *Gateway) LoadSessions(ctx context.Context) (map[string]*state.Session, error) {
	return g.local.LoadSessions(ctx)
}

func (g *Gateway) DeleteSession(ctx context.Context, id string) error {
	if err := g.local.DeleteSession(ctx, id); err != nil {
		return err
	}
	g.mirror("delete_session", func(ctx context.Context) error {
		return g.remote.DeleteSession(ctx, id)
	})
	return nil
}

func (g *Gateway) SaveActiveID(ctx context.Context, id string) error {
	if err := g.local.SaveActiveID(ctx, id); err != nil {
		return err
	}
	g.mirror("save_active_id", func(ctx context.Context) error {
		return g.remote.SaveActiveID(ctx, id)
	})
	return nil
}

func (g *Gateway) LoadActiveID(ctx context.Context) (string, error) {
	return g.local.LoadActiveID(ctx)
}

// LoadAll loads both sides and reconciles them into a single view.
// Records reconcile per session id: the copy with the later UpdatedAt
// wins whole, never a field-level merge. The active pointer follows the
// remote when a remote is configured and reachable, and is cleared when
// it names a session that no longer exists.
func (g *Gateway) LoadAll(ctx context.Context) (map[string]*state.Session, string, error) {
	local, err := g.local.LoadSessions(ctx)
	if err != nil {
		return nil, "", err
	}

	merged := local
	activeID, err := g.local.LoadActiveID(ctx)
	if err != nil {
		g.logger.Warn("Failed to load local active pointer", "error", err)
		activeID = ""
	}

	if g.remote != nil {
		remoteCtx, cancel := context.WithTimeout(ctx, g.remoteTimeout)
		defer cancel()

		remote, err := g.remote.LoadSessions(remoteCtx)
		if err != nil {
			g.logger.Warn("Remote unavailable, using local sessions only", "error", err)
		} else {
			for id, rs := range remote {
				ls, ok := merged[id]
				if !ok || rs.UpdatedAt >= ls.UpdatedAt {
					merged[id] = rs
				}
			}
			if remoteActive, err := g.remote.LoadActiveID(remoteCtx); err != nil {
				g.logger.Warn("Failed to load remote active pointer", "error", err)
			} else {
				activeID = remoteActive
			}
		}
	}

	if activeID != "" {
		if _, ok := merged[activeID]; !ok {
			g.logger.Warn("Active pointer names a missing session, clearing", "id", activeID)
			activeID = ""
		}
	}

	return merged, activeID, nil
}
