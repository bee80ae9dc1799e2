package main

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/console"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
	"github.com/rancherdx/pawfect-livechat/internal/logging"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
)

func newVisitorCmd() *cobra.Command {
	var visitorID, userID, pageURL string
	var follow bool

	cmd := &cobra.Command{
		Use:   "visitor <message>",
		Short: "Start or continue a chat as a website visitor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if visitorID == "" {
				visitorID = "visitor-" + uuid.NewString()[:8]
			}
			resp, err := console.NewAPIClient(opts.apiURL, "", opts.timeout).InitiateChat(cmd.Context(), domain.InitiateChatRequest{
				VisitorID:          visitorID,
				InitialMessageText: strings.Join(args, " "),
				PageURL:            pageURL,
				UserID:             userID,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (conversation %s)\n", resp.Message, resp.ConversationID)
			if !follow {
				return nil
			}
			return followChat(cmd, visitorID, userID, pageURL)
		},
	}
	cmd.Flags().StringVar(&visitorID, "visitor-id", "", "visitor id (random when empty)")
	cmd.Flags().StringVar(&userID, "user-id", "", "signed-in user id")
	cmd.Flags().StringVar(&pageURL, "page-url", "", "page the visitor is on")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stay connected and chat interactively")
	return cmd
}

// followChat holds the visitor socket open, printing events and sending each
// input line. "/leave" closes the session.
func followChat(cmd *cobra.Command, visitorID, userID, pageURL string) error {
	logger, err := logging.NewConsole(opts.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	u, err := url.Parse(opts.visitorWSURL)
	if err != nil {
		return fmt.Errorf("invalid visitor socket url: %w", err)
	}
	q := u.Query()
	q.Set("visitor_id", visitorID)
	if userID != "" {
		q.Set("user_id", userID)
	}
	if pageURL != "" {
		q.Set("page_url", pageURL)
	}
	u.RawQuery = q.Encode()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := &lockedWriter{w: cmd.OutOrStdout()}
	conn := console.NewConn(u.String(), "", console.WithLogger(logger))
	conn.Subscribe(protocol.TypeChatMessageReceive, func(env protocol.Envelope) {
		var m domain.ChatMessage
		if env.Decode(&m) == nil && (m.SenderType == domain.SenderAdmin || m.SenderType == domain.SenderSystem) {
			fmt.Fprintln(w, renderMessage(m, ""))
		}
	})
	conn.Subscribe(protocol.TypeAdminJoinedChat, func(env protocol.Envelope) {
		var p domain.AdminJoinedPayload
		if env.Decode(&p) == nil {
			fmt.Fprintln(w, systemStyle.Render(p.Message))
		}
	})
	closed := make(chan struct{}, 1)
	conn.Subscribe(protocol.TypeChatClosed, func(protocol.Envelope) {
		fmt.Fprintln(w, systemStyle.Render("The chat has ended."))
		select {
		case closed <- struct{}{}:
		default:
		}
	})
	conn.Subscribe(protocol.TypeError, func(env protocol.Envelope) {
		var p domain.ErrorPayload
		if env.Decode(&p) == nil {
			fmt.Fprintln(w, console.NoticeFor(apperr.New(p.Code, p.Message)).Title+": "+p.Message)
		}
	})

	if err := conn.Open(ctx); err != nil {
		return err
	}
	defer conn.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-closed:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			env, err := visitorFrame(line)
			if err != nil {
				return err
			}
			if err := conn.Send(ctx, env); err != nil {
				fmt.Fprintln(w, console.NoticeFor(err).Title)
			}
		}
	}
}

func visitorFrame(line string) (protocol.Envelope, error) {
	if line == "/leave" {
		return protocol.NewRequest(protocol.TypeChatSessionClose, nil)
	}
	return protocol.NewRequest(protocol.TypeChatMessageSend, domain.SendMessagePayload{MessageText: line})
}
