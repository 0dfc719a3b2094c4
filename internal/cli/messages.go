package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tbourn/smsbridge-chat/internal/domain"
)

func newSendCmd(a *app) *cobra.Command {
	var (
		to      string
		viaSMS  bool
		idemKey string
	)
	cmd := &cobra.Command{
		Use:   "send <text...>",
		Short: "Send a message",
		Long: `Send a message into a conversation.

Users always write to the admin. The admin must name the conversation with
--to and may add --sms to also deliver the message by SMS; the stored copy
is then prefixed "[SMS] " or "[SMS Failed] ".`,
		Example: `  smsbridge send "hello"
  smsbridge send --to 5b7c1e0a-2f7d-4f43-9a7e-0c2d8c1b9f10 --sms "Your order is ready"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := a.authenticated()
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			if s.IsAdmin && to == "" {
				return errors.New("--to is required for the admin")
			}

			if viaSMS {
				if !s.IsAdmin {
					return errors.New("only the admin can send SMS")
				}
				out, err := c.SendSMS(cmd.Context(), to, text)
				if err != nil {
					return fmt.Errorf("send sms: %w", err)
				}
				if out.Delivered {
					a.printf("Sent %s by SMS (gateway id %s)\n", out.Message.ID, out.GatewayID)
				} else {
					a.warnf("%s\n", out.SMSError)
					a.printf("Stored %s without SMS delivery\n", out.Message.ID)
				}
				return nil
			}

			if idemKey == "" {
				idemKey = uuid.NewString()
			}
			m, err := c.Send(cmd.Context(), to, text, idemKey)
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			a.printf("Sent %s\n", m.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "conversation (profile id); required for the admin")
	cmd.Flags().BoolVar(&viaSMS, "sms", false, "also deliver by SMS (admin only)")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "retry key (default: random)")
	return cmd
}

func newSeenCmd(a *app) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "seen [message-id...]",
		Short: "Mark messages as seen",
		Long: `Mark messages from the other side as seen. With no ids, every unread
message in the conversation is marked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := a.authenticated()
			if err != nil {
				return err
			}
			ids := args
			if len(ids) == 0 {
				if s.IsAdmin && to == "" {
					return errors.New("--to is required for the admin")
				}
				conv, err := c.Messages(cmd.Context(), to, false)
				if err != nil {
					return fmt.Errorf("list messages: %w", err)
				}
				viewer := domain.RoleUser
				if s.IsAdmin {
					viewer = domain.RoleAdmin
				}
				for _, m := range conv.Messages {
					if m.Sender == viewer.Counterpart() && m.SeenAt == nil {
						ids = append(ids, m.ID)
					}
				}
				if len(ids) == 0 {
					a.printf("Nothing unread\n")
					return nil
				}
			}
			n, err := c.MarkSeen(cmd.Context(), ids)
			if err != nil {
				return fmt.Errorf("mark seen: %w", err)
			}
			a.printf("Marked %d message(s) seen\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "conversation (profile id); required for the admin")
	return cmd
}

func newConversationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List every conversation (admin only)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.authenticated()
			if err != nil {
				return err
			}
			convs, err := c.AdminConversations(cmd.Context())
			if err != nil {
				return fmt.Errorf("conversations: %w", err)
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROFILE\tPHONE\tNAME\tUNREAD\tSTATUS\tLAST")
			for _, cv := range convs.Conversations {
				status := "offline"
				switch {
				case cv.IsTyping:
					status = "typing"
				case cv.IsOnline:
					status = "online"
				}
				last := "-"
				if n := len(cv.Messages); n > 0 {
					last = cv.Messages[n-1].CreatedAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					cv.Profile.ID, cv.Profile.PhoneNumber, cv.Profile.Name, cv.UnreadCount, status, last)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			a.printf("%d unread in total\n", convs.TotalUnread)
			return nil
		},
	}
}
