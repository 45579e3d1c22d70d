package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voice-agent/internal/log"
	"github.com/teslashibe/go-voice-agent/pkg/agent"
	"github.com/teslashibe/go-voice-agent/pkg/conversation"
	"github.com/teslashibe/go-voice-agent/pkg/voice"
)

const chatHelp = "Type a message, or /quit to end. /pause and /resume control the microphone."

func chatCmd() *cobra.Command {
	var (
		opts   agent.ChatOptions
		export string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to an expert in the terminal",
		Example: `  voiceagent chat --expert maya-patel --option "Meditation & Wellness"
  voiceagent chat --expert sophia-chen --topic "Go interviews" --mic --speak`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var format conversation.Format
			if export != "" {
				if format, err = conversation.ParseFormat(strings.TrimPrefix(filepath.Ext(export), ".")); err != nil {
					return err
				}
			}

			app, err := agent.New(cfg, log.L())
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := app.Init(ctx); err != nil {
				return err
			}
			defer app.Shutdown()

			sess, err := app.NewSession(opts)
			if err != nil {
				return err
			}
			return runChat(ctx, sess, cmd.InOrStdin(), cmd.OutOrStdout(), export, format)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.Expert, "expert", "e", "", "expert name or id (required)")
	f.StringVarP(&opts.Topic, "topic", "t", "", "session topic (defaults to the coaching option)")
	f.StringVarP(&opts.CoachingOption, "option", "o", "", "coaching option")
	f.StringVar(&opts.UserID, "user", "", "user id recorded with the session")
	f.StringVar(&opts.UserName, "name", "", "your name")
	f.BoolVar(&opts.Mic, "mic", false, "capture speech from the microphone")
	f.BoolVar(&opts.Speak, "speak", false, "speak replies through the speakers")
	f.StringVar(&export, "export", "", "write the transcript here on exit (.txt, .json, .md or .html)")
	_ = cmd.MarkFlagRequired("expert")
	return cmd
}

// runChat drives one session from lines read on in until EOF, /quit or
// ctx is cancelled.
func runChat(ctx context.Context, sess *voice.Session, in io.Reader, out io.Writer, export string, format conversation.Format) error {
	var mu sync.Mutex
	printf := func(format string, a ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, a...)
	}

	expertName := sess.Config().Expert.Name
	sess.OnResponse = func(t *voice.Turn) {
		if t.Source == voice.SourceVoice {
			printf("you (voice)> %s\n", t.Input)
		}
		printf("%s [%s]> %s\n", expertName, t.Response.Emotion, t.Response.Text)
		if len(t.Response.Suggestions) > 0 {
			printf("  suggestions: %s\n", strings.Join(t.Response.Suggestions, " | "))
		}
	}
	sess.OnError = func(err error) {
		printf("! %v\n", err)
	}
	sess.OnStateChange = func(st voice.State) {
		if st == voice.StatePaused || (st == voice.StateActive && sess.TextOnly()) {
			printf("(%s%s)\n", st, textOnlySuffix(sess))
		}
	}

	welcome, err := sess.Connect(ctx)
	if err != nil {
		return err
	}
	printf("%s> %s\n%s\n", expertName, welcome, chatHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			line = strings.TrimSpace(line)
			switch strings.ToLower(line) {
			case "":
				continue
			case "/quit", "/exit":
				break loop
			case "/pause":
				if err := sess.Pause(ctx); err != nil {
					printf("! %v\n", err)
				}
				continue
			case "/resume":
				if err := sess.Resume(ctx); err != nil {
					printf("! %v\n", err)
				}
				continue
			}
			if _, err := sess.Submit(ctx, line, conversation.AudioMetrics{}); err != nil {
				if errors.Is(err, context.Canceled) {
					break loop
				}
				printf("! %v\n", err)
			}
		}
	}

	fb, err := sess.Disconnect(context.Background())
	if err != nil {
		return err
	}
	printFeedback(out, fb)

	if export != "" {
		data, err := sess.Export(format)
		if err != nil {
			return err
		}
		if err := os.WriteFile(export, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(out, "transcript written to %s\n", export)
	}
	return nil
}

func textOnlySuffix(sess *voice.Session) string {
	if sess.TextOnly() {
		return ", text only"
	}
	return ""
}

func printFeedback(out io.Writer, fb *conversation.Feedback) {
	if fb == nil {
		return
	}
	fmt.Fprintf(out, "\n--- session feedback ---\n%s\n", fb.Summary)
	fmt.Fprintf(out, "duration: %ds  exchanges: %d  topics: %d\n", fb.DurationSeconds(), fb.ExchangesCount, fb.TopicsCount)
	if len(fb.Recommendations.Topics) > 0 {
		fmt.Fprintf(out, "explore next: %s\n", strings.Join(fb.Recommendations.Topics, ", "))
	}
	if fb.Recommendations.NextSession != "" {
		fmt.Fprintf(out, "next session: %s\n", fb.Recommendations.NextSession)
	}
	for _, r := range fb.Recommendations.Resources {
		fmt.Fprintf(out, "  - %s\n", r)
	}
}
