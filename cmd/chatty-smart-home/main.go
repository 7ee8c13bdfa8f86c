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
	"chatty/pkg/stt"
)

const (
	clientID          = "smart_home_mqtt_server"
	transcribeTimeout = 60 * time.Second
)

func main() {
	var flags config.Flags
	disableStreaming := cli.Bool("disable-streaming", false, "Print the whole answer at once")
	noSave := cli.Bool("no-save", false, "Do not save the conversation")
	mute := cli.BoolP("mute", "m", false, "Do not speak the response")
	localWhisper := cli.Bool("local-whisper", false, "Transcribe with the configured whisper.cpp model")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks Proxy Address")
	cfg, logger := app.Boot(&flags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mqttCfg, err := cfg.RequireMQTT()
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	mqttCfg.ClientID = clientID

	client := app.OpenAI(cfg, *proxyAddr, logger)

	var transcriber speech.Transcriber = client
	if *localWhisper {
		w, err := stt.NewTranscriber(cfg.WhisperModel, stt.Options{Language: "auto"})
		if err != nil {
			log.Error("Failed to init whisper", "model", cfg.WhisperModel, "err", err)
			os.Exit(1)
		}
		defer w.Close()
		transcriber = w
	}

	mc, err := mqtt.Connect(ctx, mqttCfg, []string{
		smarthome.StateTopic,
		smarthome.ResetTopic,
		smarthome.VoiceCommandTopic,
	}, logger)
	if err != nil {
		log.Error("Failed to connect to MQTT", "err", err)
		os.Exit(1)
	}
	defer mc.Disconnect(context.Background())

	con := console.Stdio()
	sink := chat.Sinks{con.Sink(), mqtt.FragmentSink{Publisher: mc, Topic: smarthome.TranscriptTopic}}

	rec, err := smarthome.NewReconciler(client, mc, smarthome.DefaultState(), smarthome.Options{
		Streaming:      !*disableStreaming,
		Sink:           sink,
		Mute:           *mute,
		SaveDir:        app.SaveDir(*noSave),
		SessionOptions: []chat.Option{chat.WithModel(cfg.ChatModel())},
		Logger:         logger,
	})
	if err != nil {
		log.Error("Failed to build system prompt", "err", err)
		os.Exit(1)
	}
	con.Println(rec.SystemPrompt())

	signals := ipc.NewSignals()
	if srv := app.ListenControl(signals, logger); srv != nil {
		defer srv.Close()
	}

	log.Info("Waiting for commands", "topic", smarthome.VoiceCommandTopic)

	for {
		select {
		case <-ctx.Done():
			return
		case <-signals.Reset():
			con.Println("Resetting chat manager")
			rec.Reset()
		case msg := <-mc.Messages():
			handle(ctx, msg, rec, transcriber, con, !*disableStreaming)
		}
	}
}

func handle(ctx context.Context, msg mqtt.Message, rec *smarthome.Reconciler, tr speech.Transcriber,
	con *console.Console, streaming bool,
) {
	switch msg.Topic {
	case smarthome.StateTopic:
		if err := rec.Observe(msg.Payload); err != nil {
			log.Warn("Ignoring malformed home state", "err", err)
		}
	case smarthome.ResetTopic:
		con.Println("Resetting chat manager")
		rec.Reset()
	case smarthome.VoiceCommandTopic:
		con.Println("Transcribing")
		con.Println()

		tctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
		request, err := speech.TranscribeMessage(tctx, tr, msg.Payload)
		cancel()
		if err != nil {
			log.Error("Failed to transcribe voice command", "err", err)
			return
		}

		con.Printf("%s Question:\n%s\n", con.Emoji(console.QuestionEmoji), request)
		con.Printf("\n%s ChatGPT:\n\n", con.Emoji(console.RobotEmoji))

		res, err := rec.Turn(ctx, request)
		app.ReportTurn(con, res, err, streaming)
	default:
		log.Debug("Ignoring message", "topic", msg.Topic)
	}
}
