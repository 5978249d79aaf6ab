package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"stratizen/config"
	"stratizen/crypto"
	"stratizen/logging"
	"stratizen/messaging"
	"stratizen/models"
	"stratizen/storage"
)

const timeLayout = "2006-01-02 15:04:05"

type app struct {
	cfg         *config.UserConfig
	cfgPath     string
	dbPath      string
	fingerprint string
	actingUser  string

	repo     *storage.Store
	messages *messaging.Store
}

func main() {
	rootCmd, a := newRootCmd()
	err := rootCmd.Execute()
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "stratizen",
		Short:         "Local encrypted peer messaging for the Stratizen community",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.actingUser, "as", "", "act as this user ID instead of the configured one")

	rootCmd.AddCommand(
		a.infoCmd(),
		a.sendCmd(),
		a.threadCmd(),
		a.inboxCmd(),
		a.readCmd(),
		a.chatCmd(),
	)
	return rootCmd, a
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg, a.cfgPath = cfg, cfgPath
	if a.actingUser == "" {
		a.actingUser = cfg.UserID
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger := logging.L().With().Str(logging.FieldUserID, a.actingUser).Logger()
	ctx := logging.WithLogger(cmd.Context(), logger)
	cmd.SetContext(ctx)

	secret, err := crypto.EnsureMasterSecret(cfg.MasterKeyPath)
	if err != nil {
		return fmt.Errorf("prepare master secret: %w", err)
	}
	a.fingerprint = crypto.SecretFingerprint(secret)

	keys, err := crypto.NewHKDFKeyProvider(secret, []byte(config.AppDirectoryName))
	if err != nil {
		return err
	}

	dedupWindow := time.Duration(cfg.DedupWindowSeconds) * time.Second
	repo, dbPath, err := storage.Open(
		cfg.DatabaseDir,
		storage.WithSendTokenRetention(max(storage.DefaultSendTokenRetention, dedupWindow)),
	)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.repo, a.dbPath = repo, dbPath

	a.messages, err = messaging.New(
		ctx,
		repo,
		keys,
		messaging.WithDedupWindow(dedupWindow),
		messaging.WithUnreadTracking(cfg.TrackUnread),
	)
	if err != nil {
		_ = repo.Close()
		a.repo = nil
		return fmt.Errorf("open message store: %w", err)
	}

	logger.Debug().Str("database", dbPath).Msg("message store ready")
	return nil
}

func (a *app) close() error {
	if a.repo == nil {
		return nil
	}
	err := a.repo.Close()
	a.repo = nil
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the local identity and storage locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User ID:         %s\n", a.actingUser)
			fmt.Fprintf(out, "Display Name:    %s\n", a.cfg.DisplayName)
			fmt.Fprintf(out, "Key Fingerprint: %s\n", crypto.FormatFingerprint(a.fingerprint))
			fmt.Fprintf(out, "Config File:     %s\n", a.cfgPath)
			fmt.Fprintf(out, "Database File:   %s\n", a.dbPath)
			fmt.Fprintf(out, "Unread Tracking: %t\n", a.cfg.TrackUnread)
			return nil
		},
	}
}

func (a *app) sendCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "send <to> <message...>",
		Short: "Send a message to another user",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args[1:], " ")
			if strings.TrimSpace(content) == "" {
				return errors.New("message is empty")
			}

			return a.messages.SendMessage(cmd.Context(), models.OutgoingMessage{
				Sender:      a.actingUser,
				Receiver:    args[0],
				Content:     content,
				ClientToken: token,
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "idempotency token; resending with the same token is a no-op")
	return cmd
}

func (a *app) threadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thread <peer>",
		Short: "Print the conversation with a peer, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, err := a.messages.GetConversation(cmd.Context(), a.actingUser, args[0])
			if err != nil {
				return fmt.Errorf("failed to load conversation: %w", err)
			}
			if len(transcript) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No messages yet.")
				return nil
			}
			for _, message := range transcript {
				printMessage(cmd.OutOrStdout(), message)
			}

			unread, err := a.messages.UnreadCount(cmd.Context(), a.actingUser, args[0])
			if err != nil {
				return fmt.Errorf("failed to count unread messages: %w", err)
			}
			if unread > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d unread\n", unread)
			}
			return nil
		},
	}
}

func (a *app) inboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "List conversations, most recently active first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conversations, err := a.messages.GetUserConversations(cmd.Context(), a.actingUser)
			if err != nil {
				return fmt.Errorf("failed to load conversations: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(conversations) == 0 {
				fmt.Fprintln(out, "No conversations yet.")
				return nil
			}
			for _, conversation := range conversations {
				unread := ""
				if conversation.UnreadCount > 0 {
					unread = fmt.Sprintf(" (%d unread)", conversation.UnreadCount)
				}
				fmt.Fprintf(out, "%s  %-20s %s%s\n",
					time.UnixMilli(conversation.LastTimestamp).Format(timeLayout),
					conversation.ParticipantID,
					conversation.LastMessage,
					unread,
				)
			}
			return nil
		},
	}
}

func (a *app) readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <peer>",
		Short: "Mark the conversation with a peer as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.messages.MarkConversationRead(cmd.Context(), a.actingUser, args[0])
		},
	}
}

func (a *app) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <peer>",
		Short: "Interactive chat: prints the thread, then sends each line you type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := args[0]
			out := cmd.OutOrStdout()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			transcript, err := a.messages.GetConversation(ctx, a.actingUser, peer)
			if err != nil {
				return fmt.Errorf("failed to load conversation: %w", err)
			}
			for _, message := range transcript {
				printMessage(out, message)
			}

			unsubscribe := a.messages.SubscribeConversation(a.actingUser, peer, func(message models.Message) {
				printMessage(out, message)
			})
			defer unsubscribe()

			lines := readLines(ctx, cmd.InOrStdin())
			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return a.messages.MarkConversationRead(cmd.Context(), a.actingUser, peer)
					}
					if strings.TrimSpace(line) == "" {
						continue
					}
					if err := a.sendWithRetry(ctx, peer, line); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "failed to send: %v\n", err)
					}
				}
			}
		},
	}
}

// sendWithRetry resends once under the same token, so a retry never duplicates.
func (a *app) sendWithRetry(ctx context.Context, peer, content string) error {
	out := models.OutgoingMessage{
		Sender:      a.actingUser,
		Receiver:    peer,
		Content:     content,
		ClientToken: uuid.NewString(),
	}

	err := a.messages.SendMessage(ctx, out)
	if err == nil {
		return nil
	}
	logger := logging.Ctx(ctx)
	logger.Warn().Err(err).Str(logging.FieldPeerID, peer).Msg("send failed, retrying")
	return a.messages.SendMessage(ctx, out)
}

func readLines(ctx context.Context, in io.Reader) <-chan string {
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
	return lines
}

func printMessage(out io.Writer, message models.Message) {
	fmt.Fprintf(out, "[%s] %s: %s\n",
		time.UnixMilli(message.Timestamp).Format(timeLayout),
		message.Sender,
		message.Content,
	)
}
