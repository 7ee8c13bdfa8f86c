package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	log "log/slog"

	cli "github.com/spf13/pflag"

	"chatty/internal/app"
	"chatty/internal/chat"
	"chatty/internal/config"
	"chatty/internal/console"
)

func main() {
	var flags config.Flags
	disableStreaming := cli.Bool("disable-streaming", false, "Print the whole answer at once")
	noSave := cli.Bool("no-save", false, "Do not save the conversation")
	persona := cli.String("persona", chat.JoiPersona, "System persona: default or joi")
	resume := cli.String("resume", "", "Continue a saved conversation file")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks Proxy Address")
	cfg, logger := app.Boot(&flags)

	client := app.OpenAI(cfg, *proxyAddr, logger)

	opts := []chat.Option{chat.WithModel(cfg.ChatModel()), chat.WithLogger(logger)}
	var session *chat.Session
	if *resume != "" {
		var err error
		session, err = chat.Load(*resume, opts...)
		if err != nil {
			log.Error("Failed to resume conversation", "path", *resume, "err", err)
			os.Exit(1)
		}
		log.Info("Resumed conversation", "messages", session.Len(), "title", session.Title())
	} else {
		prompt, ok := chat.SystemInstructions(time.Now())[*persona]
		if !ok {
			log.Error("Unknown persona", "persona", *persona)
			os.Exit(1)
		}
		session = chat.NewSession(prompt, opts...)
	}
	saveDir := app.SaveDir(*noSave)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	con := console.Stdio()
	for ctx.Err() == nil {
		con.Printf("%s Question:\n\n", con.Emoji(console.QuestionEmoji))
		question, err := con.ReadLine("")
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Error("Failed to read question", "err", err)
			os.Exit(1)
		}
		if strings.TrimSpace(question) == "" {
			continue
		}

		con.Printf("\n%s ChatGPT:\n\n", con.Emoji(console.RobotEmoji))

		if *disableStreaming {
			answer, err := session.Next(ctx, client, question)
			if err != nil {
				log.Error("Chat request failed", "err", err)
				continue
			}
			con.Println(answer)
			con.Printf("\n%s %d/%d tokens used\n\n", con.Emoji(console.IncreasingTrend), session.TokenUsage(), chat.TokenLimit)
		} else {
			if _, err := session.NextStreaming(ctx, client, question, con.Sink()); err != nil {
				con.Println()
				log.Error("Chat request failed", "err", err)
				continue
			}
			con.Printf("\n\n")
		}

		if saveDir != "" {
			path, err := session.Persist(saveDir)
			if err != nil {
				log.Warn("Failed to save conversation", "err", err)
				continue
			}
			log.Debug("Saved conversation", "path", path)
		}
	}
}
