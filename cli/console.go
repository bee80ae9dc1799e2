package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/console"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
	"github.com/rancherdx/pawfect-livechat/internal/logging"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
)

var errQuit = errors.New("quit")

const consoleHelp = `Commands:
  /list [pending|active|closed|archived|all]   change the session filter
  /page N, /next, /prev                       move through pages
  /open ID                                    show a conversation
  /claim ID                                   claim a pending session and open it
  /close [ID]                                 close a session you own
  /archive ID                                 archive a closed session
  /refresh, /retry                            reload the list or the open conversation
  /dismiss, or an empty line                  clear the current notice
  /quit
Any other input is sent as a reply to the open conversation.
`

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive admin console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.token == "" {
				return errors.New("--token is required")
			}
			if opts.adminID == "" {
				return errors.New("--admin-id is required")
			}
			logger, err := logging.NewConsole(opts.verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runConsole(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
}

// lockedWriter serializes output from the console's listeners.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type consoleApp struct {
	out      io.Writer
	adminID  string
	conn     *console.Conn
	dir      *console.Directory
	log      *console.MessageLog
	composer *console.Composer
	surface  console.Surface
	logger   *zap.Logger

	// selects tracks in-flight history loads.
	selects sync.WaitGroup
	closing atomic.Bool
	// stopped is set once the socket gives up for good.
	stopped atomic.Bool
}

func runConsole(ctx context.Context, in io.Reader, out io.Writer, logger *zap.Logger) error {
	w := &lockedWriter{w: out}
	api := apiClient()
	conn := console.NewConn(opts.wsURL, opts.token, console.WithLogger(logger))
	dir := console.NewDirectory(api, console.DirectoryOptions{
		PageSize:       opts.pageSize,
		PollInterval:   opts.poll,
		RequestTimeout: opts.timeout,
	})

	app := &consoleApp{
		out:      w,
		adminID:  opts.adminID,
		conn:     conn,
		dir:      dir,
		log:      console.NewMessageLog(api, dir, opts.timeout),
		composer: console.NewComposer(conn),
		surface:  console.NewSurface(w, console.Layout{Compact: opts.compact, Width: opts.width}),
		logger:   logger,
	}
	app.wire(ctx)

	if err := conn.Open(ctx); err != nil {
		return err
	}
	defer conn.Close()

	fmt.Fprint(w, consoleHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dir.Run(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case line, ok := <-lines:
				if !ok {
					return errQuit
				}
				if err := app.handle(gctx, strings.TrimSpace(line)); err != nil {
					if errors.Is(err, errQuit) {
						return err
					}
					app.showError(err)
				}
			}
		}
	})

	err := g.Wait()
	app.closing.Store(true)
	app.selects.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// wire connects the console components to each other and to the output.
func (a *consoleApp) wire(ctx context.Context) {
	a.dir.SetListener(func(s console.DirectoryState) {
		if s.Err != nil {
			return
		}
		fmt.Fprint(a.out, renderSessions(s.Filter, s.Sessions, s.Pagination, a.log.Current()))
	})
	a.dir.OnError(a.showError)
	a.log.SetListener(func(conversationID string, messages []domain.ChatMessage) {
		if conversationID == "" {
			return
		}
		if messages == nil {
			fmt.Fprintln(a.out, faintStyle.Render("loading "+conversationID+"..."))
			return
		}
		fmt.Fprint(a.out, renderLog(conversationID, messages, a.adminID, maxLogLines))
	})

	a.dir.Subscribe(a.conn)
	a.log.Subscribe(a.conn)
	a.conn.Subscribe(protocol.TypeNewChatSession, func(env protocol.Envelope) {
		var s domain.ChatSession
		if env.Decode(&s) == nil {
			a.surface.Show(console.Notice{Severity: console.SeverityInfo, Title: "New chat", Body: s.ID + ": " + s.LastMessageSnippet})
		}
	})
	a.conn.Subscribe(protocol.TypeChatClaimed, func(env protocol.Envelope) {
		var p domain.ClaimedPayload
		if env.Decode(&p) == nil && p.AdminID != a.adminID && p.ConversationID == a.log.Current() {
			a.showError(apperr.New(apperr.CodeConflict, p.ConversationID+" was claimed by "+p.AdminID))
		}
	})
	a.composer.OnRejected(func(ref string, p domain.ErrorPayload) {
		a.logger.Debug("reply rejected", zap.String("ref", ref), zap.String("code", p.Code))
		a.showError(apperr.New(p.Code, p.Message))
	})
	if opts.verbose {
		a.conn.Subscribe(protocol.TypeAny, func(env protocol.Envelope) {
			a.logger.Debug("event", zap.String("type", env.Type), zap.String("ref", env.Ref))
		})
	}
	a.log.ResyncOnReconnect(ctx, a.conn, func(err error) {
		if !a.closing.Load() {
			a.showError(err)
		}
	})
	a.conn.OnTerminate(func(err error) {
		a.stopped.Store(true)
		if ctx.Err() == nil && !a.closing.Load() {
			a.showError(err)
		}
	})
	a.conn.OnStateChange(func(connected bool) {
		if connected {
			a.surface.Dismiss()
			a.dir.Invalidate()
			return
		}
		if ctx.Err() == nil && !a.closing.Load() && !a.stopped.Load() {
			a.surface.Show(console.NoticeFor(apperr.New(apperr.CodeDisconnected, "connection to chat server lost, reconnecting")))
		}
	})
}

func (a *consoleApp) showError(err error) {
	a.surface.Show(console.NoticeFor(err))
}

func (a *consoleApp) handle(ctx context.Context, line string) error {
	if line == "" {
		a.surface.Dismiss()
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := a.composer.Send(ctx, a.log.Current(), a.adminID, line)
		return err
	}

	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		fmt.Fprint(a.out, consoleHelp)
	case "/list":
		filter := domain.FilterPending
		if arg != "" {
			filter = domain.StatusFilter(arg)
		}
		return a.dir.SetFilter(filter)
	case "/page":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return apperr.Validation("page must be a number")
		}
		return a.dir.SetPage(n)
	case "/next":
		return a.dir.SetPage(a.dir.Query().Page + 1)
	case "/prev":
		return a.dir.SetPage(a.dir.Query().Page - 1)
	case "/refresh":
		a.dir.Invalidate()
	case "/open":
		if arg == "" {
			return apperr.Validation("usage: /open ID")
		}
		a.open(ctx, arg)
	case "/claim":
		if _, err := a.dir.Claim(ctx, arg); err != nil {
			return err
		}
		a.open(ctx, arg)
	case "/close":
		if arg == "" {
			arg = a.log.Current()
		}
		_, err := a.dir.Close(ctx, arg)
		return err
	case "/archive":
		_, err := a.dir.Archive(ctx, arg)
		return err
	case "/retry":
		a.selects.Add(1)
		go func() {
			defer a.selects.Done()
			if err := a.log.Retry(ctx); err != nil && ctx.Err() == nil {
				a.showError(err)
			}
		}()
	case "/dismiss":
		a.surface.Dismiss()
	default:
		return apperr.Validation("unknown command " + fields[0] + ", try /help")
	}
	return nil
}

// open loads a conversation without blocking the prompt. Selecting another
// conversation before it finishes discards this load.
func (a *consoleApp) open(ctx context.Context, conversationID string) {
	a.selects.Add(1)
	go func() {
		defer a.selects.Done()
		if err := a.log.Select(ctx, conversationID); err != nil && ctx.Err() == nil {
			a.showError(err)
		}
	}()
}
