package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	log "log/slog"

	cli "github.com/spf13/pflag"

	"chatty/internal/app"
	"chatty/internal/chat"
	"chatty/internal/config"
	"chatty/internal/console"
	"chatty/internal/ipc"
	"chatty/internal/mqtt"
	"chatty/internal/smarthome"
	"chatty/internal/speech"
	"chatty/internal/tts"
	"chatty/pkg/stt"
)

func main() {
	var (
		flags    config.Flags
		recFlags app.RecordFlags
	)
	recFlags.Register(cli.CommandLine)
	disableStreaming := cli.Bool("disable-streaming", false, "Print the whole answer at once")
	noSave := cli.Bool("no-save", false, "Do not save the conversation")
	mute := cli.BoolP("mute", "m", false, "Do not speak the response")
	localSpeech := cli.Bool("local-tts", false, "Speak with espeak instead of publishing to MQTT")
	localWhisper := cli.Bool("local-whisper", false, "Transcribe with the configured whisper.cpp model")
	language := cli.String("language", "auto", "Language hint for local transcription")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks Proxy Address")
	cfg, logger := app.Boot(&flags)

	if recFlags.ListDevices {
		if err := app.ListDevices(console.Stdio()); err != nil {
			log.Error("Failed to list audio devices", "err", err)
			os.Exit(1)
		}
		return
	}

	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := app.OpenAI(cfg, *proxyAddr, logger)

	var transcriber speech.Transcriber = client
	if *localWhisper {
		w, err := stt.NewTranscriber(cfg.WhisperModel, stt.Options{Language: *language})
		if err != nil {
			log.Error("Failed to init whisper", "model", cfg.WhisperModel, "err", err)
			os.Exit(1)
		}
		defer w.Close()
		transcriber = w
		log.Debug("Loaded whisper", "model", cfg.WhisperModel)
	}

	say := func(context.Context, string) error { return nil }
	switch {
	case *mute:
	case *localSpeech || cfg.MQTT == nil:
		say = func(_ context.Context, text string) error { return tts.Speak(text) }
	default:
		mqttCfg, _ := cfg.RequireMQTT()
		mc, err := mqtt.Connect(ctx, mqttCfg, nil, logger)
		if err != nil {
			log.Error("Failed to connect to MQTT", "err", err)
			os.Exit(1)
		}
		defer mc.Disconnect(context.Background())
		say = func(ctx context.Context, text string) error {
			return smarthome.PublishSpeech(ctx, mc, smarthome.SpeechTopic, text)
		}
	}

	con := console.Stdio()
	signals := ipc.NewSignals()
	if srv := app.ListenControl(signals, logger); srv != nil {
		defer srv.Close()
	}

	capture, err := app.NewCapture(recFlags, con, signals, logger)
	if err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer capture.Close()

	newSession := func() *chat.Session {
		return chat.NewSession(chat.SystemInstructions(time.Now())[chat.JoiPersona],
			chat.WithModel(cfg.ChatModel()), chat.WithLogger(logger))
	}
	session := newSession()
	saveDir := app.SaveDir(*noSave)

	log.Info("Boot up - successful")

	for ctx.Err() == nil {
		if signals.ResetRequested() {
			con.Println("Resetting conversation")
			session = newSession()
		}

		answer, err := turn(ctx, capture, transcriber, client, session, con, !*disableStreaming)
		if err != nil {
			log.Error("Turn failed", "err", err)
		} else if answer != "" {
			if err := say(ctx, answer); err != nil {
				log.Error("Failed to voice out", "err", err)
			}
			if saveDir != "" {
				if path, err := session.Persist(saveDir); err != nil {
					log.Warn("Failed to save conversation", "err", err)
				} else {
					log.Debug("Saved conversation", "path", path)
				}
			}
		}

		if err := con.WaitForEnter("Press enter to continue recording"); err != nil {
			return
		}
	}
}

func turn(ctx context.Context, capture *app.Capture, tr speech.Transcriber, c chat.Completer,
	session *chat.Session, con *console.Console, streaming bool,
) (string, error) {
	question, err := capture.Listen(ctx, tr)
	if err != nil {
		return "", err
	}
	if question == "" {
		log.Info("Nothing was said")
		return "", nil
	}

	con.Printf("%s Question:\n%s\n", con.Emoji(console.QuestionEmoji), question)
	con.Printf("\n%s ChatGPT:\n\n", con.Emoji(console.RobotEmoji))

	if !streaming {
		answer, err := session.Next(ctx, c, question)
		if err != nil {
			return "", err
		}
		con.Println(answer)
		con.Println()
		return answer, nil
	}

	answer, err := session.NextStreaming(ctx, c, question, con.Sink())
	con.Printf("\n\n")
	return answer, err
}
