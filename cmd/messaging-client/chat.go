package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"messaging-client/internal/conversation"
	"messaging-client/internal/entry"
	"messaging-client/internal/model"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the configured deployment from the terminal",
	Long: `Starts or resumes a conversation and reads messages from stdin.

Commands:
  /prechat key=value ...  submit pre-chat routing attributes
  /typing                 send a typing burst
  /retry                  re-send the message that failed last
  /end                    end the conversation
  /reset                  leave a closed conversation so a new one can start
  /quit                   exit, keeping the session for the next run`,
	RunE: runChat,
}

// transcriptPrinter writes each entry once, in arrival order.
type transcriptPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]struct{}
	status  model.ConversationStatus
	typing  bool
	prechat bool
	failed  string
}

func newTranscriptPrinter(out io.Writer) *transcriptPrinter {
	return &transcriptPrinter{out: out, printed: make(map[string]struct{})}
}

func (p *transcriptPrinter) render(s conversation.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range s.Entries {
		key := string(e.EntryType) + "/" + e.MessageID
		if _, ok := p.printed[key]; ok {
			continue
		}
		p.printed[key] = struct{}{}
		if line := formatEntry(e); line != "" {
			fmt.Fprintln(p.out, line)
		}
	}
	if s.IsAnotherParticipantTyping != p.typing {
		p.typing = s.IsAnotherParticipantTyping
		if p.typing && len(s.TypingParticipants) > 0 {
			fmt.Fprintf(p.out, "... %s is typing\n", s.TypingParticipants[0].Name)
		}
	}
	if s.AwaitingPrechat != p.prechat {
		p.prechat = s.AwaitingPrechat
		if p.prechat {
			fmt.Fprintln(p.out, "* pre-chat details required, use /prechat key=value")
		}
	}
	if s.FailedMessage != nil && s.FailedMessage.MessageID != p.failed {
		p.failed = s.FailedMessage.MessageID
		fmt.Fprintf(p.out, "! message %q was not delivered\n", s.FailedMessage.Text)
	}
	if s.Status != p.status {
		p.status = s.Status
		fmt.Fprintf(p.out, "* conversation %s\n", strings.ToLower(string(s.Status)))
	}
}

func formatEntry(e entry.Entry) string {
	name := e.Sender.DisplayName
	if name == "" {
		name = string(e.Sender.Role)
	}
	switch c := e.Content.(type) {
	case entry.TextContent:
		return fmt.Sprintf("%s: %s", name, c.Text)
	case entry.ChoicesContent:
		titles := make([]string, 0, len(c.Options))
		for _, o := range c.Options {
			titles = append(titles, o.Title)
		}
		return fmt.Sprintf("%s: %s [%s]", name, c.Text, strings.Join(titles, " | "))
	case entry.RichLinkContent:
		return fmt.Sprintf("%s: %s <%s>", name, c.Title, c.URL)
	case entry.AttachmentContent:
		return fmt.Sprintf("%s: %s (%d attachments)", name, c.Text, len(c.Attachments))
	case entry.ParticipantChangeContent:
		parts := make([]string, 0, len(c.Changes))
		for _, ch := range c.Changes {
			who := ch.DisplayName
			if who == "" {
				who = string(ch.Role)
			}
			parts = append(parts, fmt.Sprintf("%s %s", who, strings.ToLower(string(ch.Operation))))
		}
		return "* " + strings.Join(parts, ", ")
	default:
		return ""
	}
}

func parseAttributes(fields []string) map[string]string {
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			continue
		}
		values[k] = v
	}
	return values
}

// begin initializes the configured deployment and starts or resumes its
// session.
func begin(ctx context.Context, engine *conversation.Engine) error {
	if err := engine.Initialize(ctx, configDeployment(cfg)); err != nil {
		return err
	}
	restored, err := engine.Restore(ctx)
	if err != nil {
		return err
	}
	if restored {
		logger.Info("resuming persisted session")
	}
	return engine.Start(ctx)
}

// restart leaves a closed conversation and bootstraps a new one. Cleanup
// forgets the deployment, so it is initialized again.
func restart(ctx context.Context, engine *conversation.Engine) error {
	if err := engine.Reset(); err != nil {
		return err
	}
	return begin(ctx, engine)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	printer := newTranscriptPrinter(out)
	engine, closeBackend, err := newEngine(ctx, cfg, logger, hooks{
		OnChange: printer.render,
		OnHide: func() {
			fmt.Fprintln(out, "* conversation hidden after an unrecoverable error")
		},
	})
	if err != nil {
		return err
	}
	defer closeBackend()
	defer engine.Shutdown()

	if err := begin(ctx, engine); err != nil {
		return err
	}

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
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		var err error
		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit":
			return nil
		case "/end":
			err = engine.End(ctx)
		case "/reset":
			err = restart(ctx, engine)
		case "/typing":
			err = engine.UserTyping(ctx)
		case "/retry":
			_, err = engine.RetryFailed(ctx)
		case "/prechat":
			err = engine.SubmitPrechat(ctx, parseAttributes(fields[1:]))
		default:
			_, err = engine.SendMessage(ctx, line, conversation.SendOptions{})
		}
		if err != nil {
			logger.Debug("command failed", zap.String("command", fields[0]), zap.Error(err))
			fmt.Fprintln(out, "!", err)
		}
	}
}
