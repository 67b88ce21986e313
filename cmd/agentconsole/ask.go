package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bazelment/agentconsole/config"
	"github.com/bazelment/agentconsole/metrics"
	"github.com/bazelment/agentconsole/session"
	"github.com/bazelment/agentconsole/store"
	"github.com/bazelment/agentconsole/transport"
)

var (
	askEndpoint         string
	askApprovalEndpoint string
	askMetricsAddr      string
	askRender           string
	askTimeout          time.Duration
	askAutoApprove      bool
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>...",
	Short: "Send one prompt and stream the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyAskFlags(cfg)

		log := newLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}

		var rec *metrics.Recorder
		if askMetricsAddr != "" {
			rec = metrics.New()
			srv := &http.Server{Addr: askMetricsAddr, Handler: rec.Handler(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Warn("metrics server stopped", "error", err)
				}
			}()
			defer srv.Close()
		}

		renderer, err := chooseRenderer(askRender)
		if err != nil {
			return err
		}

		client := transport.NewClient(cfg.Endpoint,
			transport.WithApprovalEndpoint(cfg.ApprovalEndpoint),
			transport.WithLogger(log))
		st := store.New()
		con := newConsole(cmd.OutOrStdout(), cmd.ErrOrStderr(), st, renderer)
		if w, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil {
			con.width = w
		}
		st.AddObserver(con)

		opts := append(cfg.SessionOptions(), session.WithLogger(log), session.WithRecorder(rec))
		engine := session.NewEngine(client, st, opts...)
		defer engine.Close()

		turn, err := engine.Send(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return awaitTurn(ctx, engine, turn, con, readLines(cmd.InOrStdin()), cmd.ErrOrStderr(), log)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askEndpoint, "endpoint", "", "Agent stream endpoint (overrides config)")
	askCmd.Flags().StringVar(&askApprovalEndpoint, "approval-endpoint", "", "Approval decision endpoint (overrides config)")
	askCmd.Flags().StringVar(&askMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the prompt runs")
	askCmd.Flags().StringVar(&askRender, "render", "auto", "Reply rendering: auto, plain, or markdown")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 0, "Abort the stream after this long (overrides config)")
	askCmd.Flags().BoolVar(&askAutoApprove, "auto-approve", false, "Approve every approval request without prompting")
}

func applyAskFlags(cfg *config.Config) {
	if askEndpoint != "" {
		cfg.Endpoint = askEndpoint
	}
	if askApprovalEndpoint != "" {
		cfg.ApprovalEndpoint = askApprovalEndpoint
	}
	if askTimeout > 0 {
		cfg.Timeout = askTimeout
	}
}

// chooseRenderer returns a markdown renderer, or nil for plain streaming.
func chooseRenderer(mode string) (*glamour.TermRenderer, error) {
	switch mode {
	case "plain":
		return nil, nil
	case "markdown":
	case "auto":
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("invalid --render %q", mode)
	}
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	return newMarkdownRenderer(width)
}

// errPromptAbandoned reports that a prompt was dropped before it was answered.
var errPromptAbandoned = errors.New("approval prompt abandoned")

// readLines feeds r to a channel line by line and closes it at EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

// awaitTurn waits for the turn to end, answering approval requests as they
// arrive. An approval still pending once the turn settles is asked about
// before returning.
func awaitTurn(ctx context.Context, engine *session.Engine, turn *session.Turn, con *console, lines <-chan string, prompt io.Writer, log *slog.Logger) error {
	for {
		select {
		case <-turn.Done():
			switch turn.Outcome() {
			case session.OutcomeFailed:
				return turn.Err()
			case session.OutcomeCancelled:
				fmt.Fprintln(prompt, "cancelled")
				return nil
			}
			select {
			case <-con.approvals:
			default:
			}
			if req := con.store.Snapshot().PendingApproval; req != nil {
				return answerApproval(ctx, engine, *req, lines, nil, prompt, log)
			}
			return nil

		case req := <-con.approvals:
			if err := answerApproval(ctx, engine, req, lines, turn.Done(), prompt, log); err != nil {
				return err
			}
		}
	}
}

// answerApproval asks about req and submits the answer. Closing abort drops
// the prompt without an error.
func answerApproval(ctx context.Context, engine *session.Engine, req store.HitlRequest, lines <-chan string, abort <-chan struct{}, prompt io.Writer, log *slog.Logger) error {
	decision, err := askDecision(ctx, req, lines, abort, prompt)
	switch {
	case errors.Is(err, errPromptAbandoned):
		fmt.Fprintln(prompt)
		log.Debug("approval prompt abandoned", "request_id", req.ID)
		return nil
	case err != nil:
		return err
	}
	err = engine.ResolveApproval(ctx, req.ID, decision)
	switch {
	case errors.Is(err, session.ErrNoPendingApproval), errors.Is(err, session.ErrApprovalMismatch), errors.Is(err, session.ErrApprovalStale):
		log.Debug("approval no longer pending", "request_id", req.ID)
	case err != nil:
		return err
	}
	return nil
}

// askDecision prompts for a decision on req. End of input rejects. It returns
// ctx.Err() when ctx ends and errPromptAbandoned when abort closes.
func askDecision(ctx context.Context, req store.HitlRequest, lines <-chan string, abort <-chan struct{}, out io.Writer) (session.Decision, error) {
	fmt.Fprintf(out, "\n⚠ %s\n", req.Message)
	if req.Action != "" {
		fmt.Fprintf(out, "  action: %s\n", req.Action)
	}
	if req.Confidence != nil {
		fmt.Fprintf(out, "  confidence: %.0f%%\n", *req.Confidence*100)
	}
	if askAutoApprove {
		fmt.Fprintln(out, "  auto-approved")
		return session.Decision{Approved: true}, nil
	}

	choices := "[y]es/[n]o"
	if req.EditableContent != nil {
		fmt.Fprintf(out, "  content: %s\n", *req.EditableContent)
		choices += "/[e]dit"
	}
	fmt.Fprintf(out, "Approve? %s: ", choices)

	line, err := nextLine(ctx, lines, abort)
	if err != nil {
		return session.Decision{}, err
	}
	d := parseDecision(line)
	if d.edit && req.EditableContent != nil {
		fmt.Fprint(out, "New content: ")
		edited, err := nextLine(ctx, lines, abort)
		if err != nil {
			return session.Decision{}, err
		}
		edited = strings.TrimRight(edited, "\r\n")
		return session.Decision{Approved: true, EditedContent: &edited}, nil
	}
	return session.Decision{Approved: d.approved}, nil
}

// nextLine returns the next input line, or "" once input is exhausted.
func nextLine(ctx context.Context, lines <-chan string, abort <-chan struct{}) (string, error) {
	select {
	case line := <-lines:
		return line, nil
	case <-abort:
		return "", errPromptAbandoned
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type answer struct {
	approved bool
	edit     bool
}

func parseDecision(line string) answer {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return answer{approved: true}
	case "e", "edit":
		return answer{approved: true, edit: true}
	default:
		return answer{}
	}
}
