package console

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
)

// DefaultPollInterval is how often the directory refreshes on its own.
const DefaultPollInterval = 30 * time.Second

// DirectoryState is a snapshot of the session directory.
type DirectoryState struct {
	Filter     domain.StatusFilter
	Page       int
	Sessions   []domain.ChatSession
	Pagination domain.Pagination
	Err        error
}

// DirectoryOptions tunes a Directory.
type DirectoryOptions struct {
	PageSize       int
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

// Directory is the paginated, filterable list of chat sessions.
type Directory struct {
	api      API
	pageSize int
	poll     time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	filter   domain.StatusFilter
	page     int
	gen      uint64
	state    DirectoryState
	listener func(DirectoryState)
	onError  func(error)

	invalidate chan struct{}
}

// NewDirectory creates a directory showing pending sessions on page 1.
func NewDirectory(api API, opts DirectoryOptions) *Directory {
	if opts.PageSize <= 0 {
		opts.PageSize = domain.DefaultPageSize
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	return &Directory{
		api:        api,
		pageSize:   opts.PageSize,
		poll:       opts.PollInterval,
		timeout:    opts.RequestTimeout,
		filter:     domain.FilterPending,
		page:       1,
		invalidate: make(chan struct{}, 1),
	}
}

// SetListener registers the view callback for new snapshots.
func (d *Directory) SetListener(fn func(DirectoryState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = fn
}

// OnError registers the callback for refresh failures in Run.
func (d *Directory) OnError(fn func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onError = fn
}

// SetFilter changes the status filter and always resets to page 1.
// A refresh still in flight for the old query is discarded.
func (d *Directory) SetFilter(filter domain.StatusFilter) error {
	if _, ok := filter.Statuses(); !ok {
		return apperr.Validation("unknown status filter " + string(filter))
	}
	d.mu.Lock()
	d.filter = filter
	d.page = 1
	d.gen++
	d.mu.Unlock()
	d.Invalidate()
	return nil
}

// SetPage moves to page p.
func (d *Directory) SetPage(p int) error {
	if p < 1 {
		return apperr.Validation("page must be >= 1")
	}
	d.mu.Lock()
	d.page = p
	d.gen++
	d.mu.Unlock()
	d.Invalidate()
	return nil
}

// Query returns the query the next refresh will issue.
func (d *Directory) Query() domain.SessionQuery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return domain.SessionQuery{Status: d.filter, Page: d.page, Limit: d.pageSize}
}

// State returns the latest snapshot.
func (d *Directory) State() DirectoryState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Refresh fetches the current page. A response for a query that has since
// been superseded is dropped.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	q := domain.SessionQuery{Status: d.filter, Page: d.page, Limit: d.pageSize}
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	page, err := d.api.ListSessions(ctx, q)

	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return nil
	}
	d.state.Filter = q.Status
	d.state.Page = q.Page
	d.state.Err = err
	if err == nil {
		d.state.Sessions = page.Data
		d.state.Pagination = page.Pagination
	}
	state := d.state
	listener := d.listener
	d.mu.Unlock()

	if listener != nil {
		listener(state)
	}
	return err
}

// Claim claims a session for the signed-in admin and refreshes the list.
// A conflict still refreshes so the view shows the winner.
func (d *Directory) Claim(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	return d.act(ctx, sessionID, d.api.ClaimSession)
}

// Close closes a session owned by the signed-in admin.
func (d *Directory) Close(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	return d.act(ctx, sessionID, d.api.CloseSession)
}

// Archive archives a closed session.
func (d *Directory) Archive(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	return d.act(ctx, sessionID, d.api.ArchiveSession)
}

func (d *Directory) act(ctx context.Context, sessionID string, call func(context.Context, string) (*domain.ChatSession, error)) (*domain.ChatSession, error) {
	if sessionID == "" {
		return nil, apperr.Validation("conversation id is required")
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	session, err := call(callCtx, sessionID)
	cancel()

	if err != nil && !errors.Is(err, apperr.ErrConflict) && !errors.Is(err, apperr.ErrInvalidState) {
		return nil, err
	}
	if refreshErr := d.Refresh(ctx); refreshErr != nil && err == nil {
		d.reportError(refreshErr)
	}
	return session, err
}

// Invalidate schedules a refresh from Run.
func (d *Directory) Invalidate() {
	select {
	case d.invalidate <- struct{}{}:
	default:
	}
}

// Subscribe refreshes the directory on session lifecycle events from t.
func (d *Directory) Subscribe(t Transport) func() {
	var unsubs []func()
	for _, msgType := range []string{
		protocol.TypeNewChatSession,
		protocol.TypeChatClaimed,
		protocol.TypeChatSessionUpdated,
		protocol.TypeChatSessionRead,
	} {
		unsubs = append(unsubs, t.Subscribe(msgType, func(protocol.Envelope) { d.Invalidate() }))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Run refreshes immediately, then on every poll tick and invalidation until
// ctx is done. Failures are reported and retried on the next tick.
func (d *Directory) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	if err := d.Refresh(ctx); err != nil {
		d.reportError(err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-d.invalidate:
		}
		if err := d.Refresh(ctx); err != nil && ctx.Err() == nil {
			d.reportError(err)
		}
	}
}

func (d *Directory) reportError(err error) {
	d.mu.Lock()
	fn := d.onError
	d.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
