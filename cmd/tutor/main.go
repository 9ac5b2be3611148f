package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/pion/webrtc/v4"

	"english-tutor/internal/config"
	"english-tutor/internal/conversation"
	"english-tutor/internal/domain"
	"english-tutor/internal/realtime"
	"english-tutor/internal/realtime/pionrtc"
	"english-tutor/internal/relayclient"
	"english-tutor/internal/tutor"
)

const help = `Type a sentence to talk to the tutor. Commands:
  /realtime      start a realtime session
  /stop          end the realtime session
  /explanations  show the explanation panel
  /events        show the realtime event log
  /speak         read the last reply aloud
  /quit          exit`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg, err := config.LoadClient()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	relay, err := relayclient.New(cfg.RelayURL)
	if err != nil {
		slog.Error("failed to create relay client", "err", err)
		os.Exit(1)
	}

	out := &console{w: os.Stdout}
	deps := tutor.Deps{
		Relay:    relay,
		Notifier: out,
		Logger:   logger,
	}
	if cfg.RealtimeConfigured() {
		sdp, err := realtime.NewHTTPExchanger(cfg.RealtimeBaseURL, cfg.RealtimeModel, nil)
		if err != nil {
			slog.Error("failed to create SDP exchanger", "err", err)
			os.Exit(1)
		}
		deps.Realtime = &realtime.Deps{
			Tokens: relay,
			Peers:  pionrtc.Connector{Config: webrtc.Configuration{}, Logger: logger},
			Media:  pionrtc.SilentMicrophone{},
			Sink:   &pionrtc.DrainSink{Logger: logger},
			SDP:    sdp,
		}
	}

	client, err := tutor.NewClient(deps, tutor.Config{
		TranslationEnabled: cfg.TranslationEnabled,
		EventLogLimit:      cfg.EventLogLimit,
		Realtime: realtime.Config{
			Session:   realtime.DefaultSessionConfig(cfg.RealtimeVoice),
			SendGuard: cfg.RealtimeSendGuard,
		},
	}, conversation.WithListener(out))
	if err != nil {
		slog.Error("failed to create client", "err", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out.println(help)
	if err := run(ctx, client, os.Stdin, out); err != nil {
		slog.Error("input failed", "err", err)
	}
}

func run(ctx context.Context, client *tutor.Client, in io.Reader, out *console) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
		scanErr <- sc.Err()
		close(lines)
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
		case line == "/quit":
			return nil
		case line == "/realtime":
			_ = client.StartRealtime(ctx)
		case line == "/stop":
			client.StopRealtime()
		case line == "/explanations":
			for _, exp := range client.Explanations() {
				out.explanation(exp)
			}
		case line == "/events":
			for _, ev := range client.Events() {
				out.printf("[%s] %s\n", ev.Timestamp, ev.Type)
			}
		case line == "/speak":
			speakLast(ctx, client)
		case strings.HasPrefix(line, "/"):
			out.println(help)
		default:
			if err := client.Submit(ctx, line); err != nil && errors.Is(err, tutor.ErrBusy) {
				out.println("(still waiting for the last reply)")
			}
		}
	}
}

func speakLast(ctx context.Context, client *tutor.Client) {
	msgs := client.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].IsUser {
			_ = client.SpeakMessage(ctx, msgs[i].ID)
			return
		}
	}
}

// console prints notices and conversation updates to the terminal.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *console) println(s string) { c.printf("%s\n", s) }

func (c *console) Notify(level domain.NoticeLevel, message string) {
	c.printf("* %s: %s\n", level, message)
}

func (c *console) MessageAppended(msg domain.Message) {
	who := "tutor"
	if msg.IsUser {
		who = "you"
	}
	c.printf("%-5s > %s\n", who, msg.Text)
}

func (c *console) TranslationAttached(msg domain.Message) {
	c.printf("        (%s)\n", msg.Translation)
}

func (c *console) ExplanationAdded(exp domain.Explanation) {
	c.explanation(exp)
}

func (c *console) explanation(exp domain.Explanation) {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n%s\n", exp.English, exp.Japanese)
	if exp.Grammar != "" {
		fmt.Fprintf(&b, "grammar: %s\n", exp.Grammar)
	}
	c.printf("%s", b.String())
}
