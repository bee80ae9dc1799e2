// Command chatctl is the admin console and visitor client for the live chat
// server.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rancherdx/pawfect-livechat/internal/config"
	"github.com/rancherdx/pawfect-livechat/internal/console"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	apiURL       string
	wsURL        string
	visitorWSURL string
	token        string
	adminID      string
	pageSize     int
	poll         time.Duration
	timeout      time.Duration
	compact      bool
	width        int
	verbose      bool
}

var opts globalOptions

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.LoadConsole()

	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Live chat console for the puppy dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.apiURL, "api", cfg.APIURL, "chat server base URL")
	pf.StringVar(&opts.wsURL, "ws", cfg.WSURL, "admin notification socket URL")
	pf.StringVar(&opts.visitorWSURL, "visitor-ws", cfg.VisitorWSURL, "visitor chat socket URL")
	pf.StringVar(&opts.token, "token", cfg.Token, "admin bearer token")
	pf.StringVar(&opts.adminID, "admin-id", cfg.AdminID, "admin id the token belongs to")
	pf.IntVar(&opts.pageSize, "page-size", cfg.PageSize, "sessions per page")
	pf.DurationVar(&opts.poll, "poll", cfg.PollInterval, "session list refresh interval")
	pf.DurationVar(&opts.timeout, "timeout", cfg.RequestTimeout, "request timeout")
	pf.BoolVar(&opts.compact, "compact", cfg.Compact, "use the compact layout")
	pf.IntVar(&opts.width, "width", 100, "terminal width")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log transport activity")

	root.AddCommand(
		newSessionsCmd(),
		newActionCmd("claim", "Claim a pending session", (*console.APIClient).ClaimSession),
		newActionCmd("close", "Close a session you own", (*console.APIClient).CloseSession),
		newActionCmd("archive", "Archive a closed session", (*console.APIClient).ArchiveSession),
		newHistoryCmd(),
		newConsoleCmd(),
		newVisitorCmd(),
	)
	return root
}

func apiClient() *console.APIClient {
	return console.NewAPIClient(opts.apiURL, opts.token, opts.timeout)
}
