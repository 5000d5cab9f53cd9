package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
	"github.com/zhouzirui/z-lingo/backend/pkg/chatclient"
)

var (
	serverURL string
	token     string
	modelName string
	mode      string
	persist   bool
	timeout   time.Duration
	settings  *viper.Viper

	rootCmd = &cobra.Command{
		Use:   "chattester",
		Short: "Drive the z-lingo chat relay from the terminal",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			token = settings.GetString("token")
		},
	}

	askCmd = &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Send a single prompt and print the settled reply",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	replCmd = &cobra.Command{
		Use:   "repl",
		Short: "Hold a conversation, one prompt per line (/new resets, /quit exits)",
		RunE:  runRepl,
	}

	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "List saved chat sessions",
		RunE:  runSessions,
	}
)

// bindSettings layers the --token flag over $CHAT_TOKEN. An explicit flag wins.
func bindSettings(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlag("token", cmd.PersistentFlags().Lookup("token"))
	_ = v.BindEnv("token", "CHAT_TOKEN")
	return v
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "backend base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (defaults to $CHAT_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "model name sent with each request")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "assistant, tutor or navigator")
	rootCmd.PersistentFlags().BoolVar(&persist, "persist", true, "save settled turns as a chat session")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "per prompt timeout")

	settings = bindSettings(rootCmd)

	rootCmd.AddCommand(askCmd, replCmd, sessionsCmd)
}

func newConversation(out io.Writer) *chatclient.Conversation {
	client := chatclient.New(serverURL, token)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	opts := chatclient.ConversationOptions{Model: modelName, Mode: mode, Logger: logger}
	if persist {
		opts.Persister = chatclient.NewHTTPPersister(client)
	}
	return chatclient.NewConversation(printingStreamer{client: client, out: out}, opts)
}

// printingStreamer echoes deltas as they arrive.
type printingStreamer struct {
	client *chatclient.Client
	out    io.Writer
}

func (p printingStreamer) Stream(ctx context.Context, req chatclient.ChatRequest, handle func(chat.StreamEvent) error) error {
	return p.client.Stream(ctx, req, func(event chat.StreamEvent) error {
		if event.Kind == chat.EventDelta {
			fmt.Fprint(p.out, event.Text)
		}
		return handle(event)
	})
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	conv := newConversation(out)
	return send(ctx, out, conv, strings.Join(args, " "))
}

func runRepl(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	conv := newConversation(out)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit":
			return nil
		case "/new":
			conv.Reset()
			fmt.Fprintln(out, "(new conversation)")
		default:
			if err := send(ctx, out, conv, line); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func send(ctx context.Context, out io.Writer, conv *chatclient.Conversation, prompt string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := conv.Send(ctx, prompt)
	fmt.Fprintln(out)
	if err != nil {
		return err
	}

	if reply.Content == "" {
		fmt.Fprintln(out, "(no reply)")
		return nil
	}
	fmt.Fprintf(out, "assistant: %s\n", reply.Content)
	for _, link := range reply.Links {
		fmt.Fprintf(out, "  -> %s (%s)\n", link.Label, link.URL)
	}
	if id := conv.SessionID(); id != "" {
		fmt.Fprintf(out, "session: %s\n", id)
	}
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	sessions, err := chatclient.New(serverURL, token).ListSessions(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(out, "%s  %s  %s\n", s.ID, s.UpdatedAt.Local().Format(time.DateTime), s.Title)
	}
	return nil
}
