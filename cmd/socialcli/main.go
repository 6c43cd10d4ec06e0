// Command socialcli exercises the social client kit against a Redis-backed
// store: friendships, conversations, and the notification inbox, including
// the live watch views.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"socialkit/chat"
	"socialkit/config"
	"socialkit/friends"
	"socialkit/notifications"
	"socialkit/store/redistore"
)

var (
	flagRedis string
	flagUser  string
	flagName  string

	st        *redistore.Store
	friendSvc *friends.Service
	chatSvc   *chat.Service
	notifySvc *notifications.Service
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := config.LoadConfig()

	root := &cobra.Command{
		Use:           "socialcli",
		Short:         "Social graph, chat, and notification client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				level = logrus.InfoLevel
			}
			logrus.SetLevel(level)
			if cfg.LogFormat == "json" {
				logrus.SetFormatter(&logrus.JSONFormatter{})
			}

			st, err = redistore.Dial(cmd.Context(), flagRedis)
			if err != nil {
				return err
			}
			log := logrus.StandardLogger()
			notifySvc = notifications.NewService(st, log)
			friendSvc = friends.NewService(st, notifySvc, log)
			chatSvc = chat.NewService(st, notifySvc, log)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if st != nil {
				_ = st.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&flagRedis, "redis", cfg.RedisURL, "redis address")
	root.PersistentFlags().StringVar(&flagUser, "as", "", "acting user ID")
	root.PersistentFlags().StringVar(&flagName, "name", "", "acting user display name")

	root.AddCommand(friendsCmd(), chatCmd(), notifyCmd())
	return root
}

func requireUser() error {
	if flagUser == "" {
		return fmt.Errorf("--as is required")
	}
	if flagName == "" {
		flagName = flagUser
	}
	return nil
}

func friendsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "friends", Short: "Manage friendships"}

	cmd.AddCommand(&cobra.Command{
		Use:   "request <userID>",
		Short: "Send a friend request",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			f, err := friendSvc.SendRequest(c.Context(), flagUser, flagName, args[0])
			if err != nil {
				return err
			}
			fmt.Println("sent:", f.ID)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "accept <friendshipID>",
		Short: "Accept a friend request",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			f, err := friendSvc.Accept(c.Context(), args[0], flagUser, flagName)
			if err != nil {
				return err
			}
			fmt.Println("accepted:", f.ID)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reject <friendshipID>",
		Short: "Reject a friend request",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return friendSvc.Reject(c.Context(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <friendshipID>",
		Short: "Remove a friend",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return friendSvc.Remove(c.Context(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "block <userID>",
		Short: "Block a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			f, err := friendSvc.Block(c.Context(), flagUser, args[0])
			if err != nil {
				return err
			}
			fmt.Println("blocked:", f.ID)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "unblock <friendshipID>",
		Short: "Unblock a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return friendSvc.Unblock(c.Context(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status <userID>",
		Short: "Show friendship status with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			status, _, err := friendSvc.Status(c.Context(), flagUser, args[0])
			if err != nil {
				return err
			}
			fmt.Println(status)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List friends",
		RunE: func(c *cobra.Command, _ []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			list, err := friendSvc.Friends(c.Context(), flagUser)
			if err != nil {
				return err
			}
			for _, f := range list {
				fmt.Printf("%s\t%s\n", f.ID, f.OtherUser(flagUser))
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "requests",
		Short: "List incoming friend requests",
		RunE: func(c *cobra.Command, _ []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			list, err := friendSvc.PendingRequests(c.Context(), flagUser)
			if err != nil {
				return err
			}
			for _, f := range list {
				fmt.Printf("%s\tfrom %s\n", f.ID, f.RequesterID)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Watch the live friend list until interrupted",
		RunE: func(c *cobra.Command, _ []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			ctx, stop := signalContext(c.Context())
			defer stop()
			w, err := friendSvc.WatchFriends(ctx, flagUser)
			if err != nil {
				return err
			}
			defer w.Close()
			for {
				select {
				case list, ok := <-w.Updates():
					if !ok {
						return nil
					}
					fmt.Printf("friends (%d):\n", len(list))
					for _, f := range list {
						fmt.Printf("  %s\n", f.OtherUser(flagUser))
					}
				case <-ctx.Done():
					return nil
				}
			}
		},
	})
	return cmd
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "chat", Short: "Manage conversations and messages"}

	cmd.AddCommand(&cobra.Command{
		Use:   "open <userID> <userName>",
		Short: "Open (or resolve) the direct conversation with a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			conv, err := chatSvc.GetOrCreateDirect(c.Context(), flagUser, flagName, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println("conversation:", conv.ID)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "send <conversationID> <text>",
		Short: "Send a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			msg, err := chatSvc.SendMessage(c.Context(), args[0], flagUser, flagName, args[1])
			if err != nil {
				return err
			}
			fmt.Println("sent:", msg.ID)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "history <conversationID>",
		Short: "Print the conversation's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			msgs, err := chatSvc.Messages(c.Context(), args[0])
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.SenderName, m.Text)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "read <conversationID>",
		Short: "Mark every message in the conversation as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			return chatSvc.MarkConversationRead(c.Context(), args[0], flagUser)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Watch the live conversation list until interrupted",
		RunE: func(c *cobra.Command, _ []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			ctx, stop := signalContext(c.Context())
			defer stop()
			w, err := chatSvc.WatchConversations(ctx, flagUser)
			if err != nil {
				return err
			}
			defer w.Close()
			for {
				select {
				case list, ok := <-w.Updates():
					if !ok {
						return nil
					}
					fmt.Printf("conversations (%d):\n", len(list))
					for _, conv := range list {
						fmt.Printf("  %s\t%s\n", conv.ID, conv.LastMessage)
					}
				case <-ctx.Done():
					return nil
				}
			}
		},
	})
	return cmd
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "notify", Short: "Manage the notification inbox"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(c *cobra.Command, _ []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			list, err := notifySvc.List(c.Context(), flagUser)
			if err != nil {
				return err
			}
			for _, n := range list {
				read := " "
				if n.IsRead {
					read = "*"
				}
				fmt.Printf("%s %s\t%s\t%s\n", read, n.ID, n.Type, n.Message)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "unread",
		Short: "Print the unread notification count",
		RunE: func(c *cobra.Command, _ []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			count, err := notifySvc.UnreadCount(c.Context(), flagUser)
			if err != nil {
				return err
			}
			fmt.Println(count)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "mark-read <notificationID>",
		Short: "Mark one notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return notifySvc.MarkRead(c.Context(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "mark-all-read",
		Short: "Mark every notification as read",
		RunE: func(c *cobra.Command, _ []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			return notifySvc.MarkAllRead(c.Context(), flagUser)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Watch the live inbox until interrupted",
		RunE: func(c *cobra.Command, _ []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			ctx, stop := signalContext(c.Context())
			defer stop()
			w, err := notifySvc.WatchInbox(ctx, flagUser)
			if err != nil {
				return err
			}
			defer w.Close()
			for {
				select {
				case list, ok := <-w.Updates():
					if !ok {
						return nil
					}
					fmt.Printf("inbox (%d):\n", len(list))
					for _, n := range list {
						fmt.Printf("  %s\t%s\n", n.Type, n.Message)
					}
				case <-ctx.Done():
					return nil
				}
			}
		},
	})
	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
