package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/smsbridge-chat/internal/client"
	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
	"github.com/tbourn/smsbridge-chat/internal/reducer"
	"github.com/tbourn/smsbridge-chat/internal/sysutil"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		strategyName string
		to           string
		interval     time.Duration
		freshness    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a conversation live",
		Long: `Follow a conversation live until interrupted.

Strategies:
  poll    fetch full snapshots every --interval
  stream  long-lived NDJSON response from /stream
  ws      WebSocket at /ws

By default the stream is used when the server enables it, polling otherwise.
The admin watches every conversation unless --to narrows it to one.
While watching, presence is refreshed every 5s; on exit the session is
reported offline.`,
		Example: `  smsbridge watch
  smsbridge watch --strategy ws
  smsbridge watch --strategy poll --interval 2s --to 5b7c1e0a-2f7d-4f43-9a7e-0c2d8c1b9f10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.authenticated()
			if err != nil {
				return err
			}
			ctx, stop := sysutil.SignalContext(cmd.Context())
			defer stop()

			me, err := c.Me(ctx)
			if err != nil {
				return fmt.Errorf("whoami: %w", err)
			}

			strategy := client.StrategyPoll
			if me.StreamEnabled {
				strategy = client.StrategyStream
			}
			if strategyName != "" {
				if strategy, err = client.ParseStrategy(strategyName); err != nil {
					return err
				}
			}
			if strategy != client.StrategyPoll && !me.StreamEnabled {
				return errors.New("the server has realtime streams disabled; use --strategy poll")
			}
			if interval <= 0 {
				interval = me.PollInterval()
			}

			var n notifier.ChangeNotifier
			switch strategy {
			case client.StrategyStream:
				n = client.NewStream(c)
			case client.StrategyWS:
				n = client.NewWebSocket(c)
			default:
				n = client.NewPoller(c, interval)
			}
			defer n.Close()

			focus := to
			if !me.Session.IsAdmin {
				focus = me.Session.ProfileID
			}
			v := &view{app: a, self: me.Session, focus: focus, online: make(map[string]bool), printed: make(map[string]bool)}
			v.state = reducer.New(me.Session.Role(), freshness)

			log.Debug().Str("strategy", string(strategy)).Msg("watching")
			w := &client.Watcher{
				Client:   c,
				Notifier: n,
				State:    v.state,
				Subject:  me.Subject(),
				OnReady:  v.history,
				OnEvent:  v.event,
			}
			a.printf("Watching via %s (Ctrl+C to stop)\n", strategy)
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&strategyName, "strategy", "s", "", "poll, stream or ws")
	cmd.Flags().StringVar(&to, "to", "", "only show this conversation (admin)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default: server setting)")
	cmd.Flags().DurationVar(&freshness, "freshness", 15*time.Second, "presence freshness window")
	return cmd
}

// view renders watcher output. The watcher serializes calls into it.
type view struct {
	*app
	state   *reducer.State
	self    domain.Session
	focus   string
	online  map[string]bool
	printed map[string]bool
	lastErr string
}

func (v *view) visible(profileID string) bool {
	return v.focus == "" || profileID == v.focus
}

func (v *view) history() {
	for _, pid := range v.state.Conversations() {
		if !v.visible(pid) {
			continue
		}
		if v.self.IsAdmin {
			v.printf("── %s (%d unread)\n", pid, v.state.UnreadCount(pid))
		}
		for _, m := range v.state.Messages(pid) {
			v.message(m)
		}
	}
}

func (v *view) message(m domain.Message) {
	who := "you"
	if m.Sender != v.self.Role() {
		who = "Hilbert"
		if m.Sender == domain.RoleUser {
			who = m.ProfileID
		}
	}
	v.printed[m.ID] = true
	seen := ""
	if m.SeenAt != nil {
		seen = " ✓"
	}
	v.printf("[%s] %s: %s%s\n", m.CreatedAt.Local().Format("15:04:05"), who, m.Content, seen)
}

func (v *view) event(ev notifier.Event, changed bool) {
	switch ev.Type {
	case notifier.EventMessage:
		if changed && !v.printed[ev.Message.ID] && v.visible(ev.Message.ProfileID) {
			v.message(*ev.Message)
		}
	case notifier.EventSeen:
		if changed && v.visible(ev.Seen.ProfileID) {
			v.printf("(%d message(s) seen by %s)\n", len(ev.Seen.MessageIDs), ev.Seen.SeenBy)
		}
	case notifier.EventPresence:
		pid := ev.Presence.ProfileID
		if pid == v.self.ProfileID || (v.self.IsAdmin && !v.visible(pid)) {
			return
		}
		v.presence(pid)
	case notifier.EventError:
		if ev.Error != v.lastErr {
			v.warnf("! %s (reconnecting)\n", ev.Error)
			v.lastErr = ev.Error
		}
	case notifier.EventSubscribed:
		v.lastErr = ""
	}
}

func (v *view) presence(profileID string) {
	now := v.state.Online(profileID)
	if was, known := v.online[profileID]; known && was == now {
		return
	}
	v.online[profileID] = now
	name := profileID
	if !v.self.IsAdmin {
		name = "Hilbert"
	}
	if now {
		v.printf("* %s is online\n", name)
	} else {
		v.printf("* %s went offline\n", name)
	}
}
