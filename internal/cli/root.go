// Package cli provides the smsbridge command-line client: sign in by phone,
// send messages (or SMS, for the admin), mark them seen, and watch a
// conversation live over polling, the NDJSON stream or a WebSocket.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tbourn/smsbridge-chat/internal/client"
	"github.com/tbourn/smsbridge-chat/internal/sysutil"
)

// Version is set at build time.
var Version = "0.1.0"

// app carries global flags and lazily built state shared by subcommands.
type app struct {
	server      string
	sessionFile string
	verbose     bool

	out io.Writer
	err io.Writer
}

// NewRootCmd builds the command tree. Output goes to the command's writers
// so tests can capture it.
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "smsbridge",
		Short: "Chat with Hilbert from the terminal",
		Long: `smsbridge is a terminal client for the SMS-bridged chat service.

Users sign in with their phone number and talk to the admin; the admin sees
every conversation and can forward replies by SMS.

The server URL comes from --server, SMSBRIDGE_URL, or defaults to
http://localhost:8080/api/v1. The session token is kept in --session-file.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.out = cmd.OutOrStdout()
			a.err = cmd.ErrOrStderr()
			if a.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.server, "server", "", "API base URL (default $SMSBRIDGE_URL)")
	rootCmd.PersistentFlags().StringVar(&a.sessionFile, "session-file", defaultSessionPath(), "where the session token is stored")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newRegisterCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newSendCmd(a),
		newSeenCmd(a),
		newConversationsCmd(a),
		newWatchCmd(a),
	)
	return rootCmd
}

// Execute runs the CLI with os.Args. Library logs go to stderr in console
// form, warnings and above unless --verbose.
func Execute() error {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	sysutil.InitLogger(os.Stderr, true, "")
	return NewRootCmd().Execute()
}

// anonymous returns a client for the chosen server without a token.
func (a *app) anonymous() *client.Client {
	return client.New(a.server)
}

// authenticated restores the saved session. The saved server URL is used
// unless --server overrides it.
func (a *app) authenticated() (*client.Client, *savedSession, error) {
	s, err := loadSession(a.sessionFile)
	if err != nil {
		return nil, nil, err
	}
	c := client.New(sysutil.FirstNonEmpty(a.server, s.Server))
	c.SetToken(s.Token)
	return c, s, nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) warnf(format string, args ...any) {
	fmt.Fprintf(a.err, format, args...)
}
