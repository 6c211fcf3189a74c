package services

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// maxWorkspaces bounds the number of token workspaces kept alive besides the server's
const maxWorkspaces = 64

// WorkspaceBackend is what a workspace loads its tree and assets from
type WorkspaceBackend interface {
	TreeSource
	AssetBackend
}

// Workspace is one viewer's portfolio tree, selectable assets and open forms. A tree
// refresh re-evaluates only this workspace's forms.
type Workspace struct {
	Viewer    string
	Index     *CategoryIndex
	Assets    *AssetResolver
	Forms     *FormStore
	Refresher *TreeRefresher

	refreshMu sync.Mutex
}

// Workspaces hands each caller the workspace of its bearer token (see ViewerKey).
// Calls without a token share the server workspace, which Start keeps current; token
// workspaces refresh lazily once their snapshot is older than the interval.
type Workspaces struct {
	backend   WorkspaceBackend
	positions positionUpserter
	currency  string
	interval  time.Duration
	log       zerolog.Logger

	server *Workspace

	mu     sync.Mutex
	tokens *lru.Cache[string, *Workspace]
}

func NewWorkspaces(backend WorkspaceBackend, positions positionUpserter, currency string, interval time.Duration, log zerolog.Logger) (*Workspaces, error) {
	w := &Workspaces{
		backend:   backend,
		positions: positions,
		currency:  currency,
		interval:  interval,
		log:       log.With().Str("service", "workspaces").Logger(),
	}
	tokens, err := lru.NewWithEvict(maxWorkspaces, func(viewer string, ws *Workspace) {
		ws.Forms.Purge()
		w.log.Debug().Str("viewer", viewer).Msg("Workspace evicted")
	})
	if err != nil {
		return nil, err
	}
	w.tokens = tokens
	w.server = w.build(ServerViewer)
	return w, nil
}

func (w *Workspaces) build(viewer string) *Workspace {
	log := w.log.With().Str("viewer", viewer).Logger()
	index := NewCategoryIndex(log)
	resolver := NewAssetResolver(w.backend, w.currency, log)
	forms := NewFormStore(index, resolver, NewSubmitter(resolver, w.positions, w.currency, log), log)
	index.OnReplace(forms.ReevaluateAll)
	return &Workspace{
		Viewer:    viewer,
		Index:     index,
		Assets:    resolver,
		Forms:     forms,
		Refresher: NewTreeRefresher(w.backend, index, resolver, w.interval, log),
	}
}

// Server returns the workspace of tokenless calls
func (w *Workspaces) Server() *Workspace {
	return w.server
}

// For returns the caller's workspace, loading it on first use and once it is older than
// the refresh interval. A rejected token is reported as the error and its workspace is
// dropped; other refresh failures leave the last snapshot in place, marked stale.
func (w *Workspaces) For(ctx context.Context) (*Workspace, error) {
	ws := w.lookup(ViewerKey(ctx))
	if err := ws.ensureFresh(ctx, w.interval); err != nil {
		return w.rejected(ws, err)
	}
	return ws, nil
}

// Refresh reloads the caller's workspace now
func (w *Workspaces) Refresh(ctx context.Context) (*Workspace, error) {
	ws := w.lookup(ViewerKey(ctx))
	ws.refreshMu.Lock()
	err := ws.Refresher.Refresh(ctx)
	ws.refreshMu.Unlock()
	if err != nil {
		if _, rerr := w.rejected(ws, err); rerr != nil {
			return nil, rerr
		}
		return ws, err
	}
	return ws, nil
}

func (w *Workspaces) lookup(viewer string) *Workspace {
	if viewer == ServerViewer {
		return w.server
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ws, ok := w.tokens.Get(viewer)
	if !ok {
		ws = w.build(viewer)
		w.tokens.Add(viewer, ws)
	}
	return ws
}

// rejected drops the workspace of a token the backend refused; any other refresh
// error still serves the workspace
func (w *Workspaces) rejected(ws *Workspace, err error) (*Workspace, error) {
	if !errors.Is(err, ErrUnauthorized) {
		return ws, nil
	}
	if ws.Viewer != ServerViewer {
		w.tokens.Remove(ws.Viewer)
	}
	return nil, err
}

// ensureFresh refreshes when the workspace never loaded, is past its interval or
// failed last time. Concurrent callers wait for one refresh.
func (ws *Workspace) ensureFresh(ctx context.Context, interval time.Duration) error {
	ws.refreshMu.Lock()
	defer ws.refreshMu.Unlock()

	st := ws.Refresher.Status()
	if !st.LastRefresh.IsZero() && st.LastError == "" && time.Since(st.LastRefresh) < interval {
		return nil
	}
	return ws.Refresher.Refresh(ctx)
}

// Start keeps the server workspace current until ctx is done
func (w *Workspaces) Start(ctx context.Context) {
	w.server.Refresher.Start(ctx)
}

// OpenForms counts open forms across all workspaces
func (w *Workspaces) OpenForms() int {
	n := w.server.Forms.Len()
	for _, viewer := range w.tokens.Keys() {
		if ws, ok := w.tokens.Peek(viewer); ok {
			n += ws.Forms.Len()
		}
	}
	return n
}

// Len is the number of live token workspaces
func (w *Workspaces) Len() int {
	return w.tokens.Len()
}
