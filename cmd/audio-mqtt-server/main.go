package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	log "log/slog"

	cli "github.com/spf13/pflag"

	"chatty/internal/app"
	"chatty/internal/config"
	"chatty/internal/console"
	"chatty/internal/mqtt"
	"chatty/internal/smarthome"
	"chatty/internal/speech"
	"chatty/pkg/stt"
)

const transcribeTimeout = 60 * time.Second

func main() {
	var flags config.Flags
	topic := cli.String("topic", smarthome.VoiceCommandTopic, "Topic carrying audio commands")
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
	if mqttCfg.ClientID == "" {
		mqttCfg.ClientID = "Server"
	}

	var transcriber speech.Transcriber
	if *localWhisper {
		w, err := stt.NewTranscriber(cfg.WhisperModel, stt.Options{Language: "auto"})
		if err != nil {
			log.Error("Failed to init whisper", "model", cfg.WhisperModel, "err", err)
			os.Exit(1)
		}
		defer w.Close()
		transcriber = w
	} else {
		transcriber = app.OpenAI(cfg, *proxyAddr, logger)
	}

	mc, err := mqtt.Connect(ctx, mqttCfg, []string{*topic}, logger)
	if err != nil {
		log.Error("Failed to connect to MQTT", "err", err)
		os.Exit(1)
	}
	defer mc.Disconnect(context.Background())

	con := console.Stdio()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-mc.Messages():
			if msg.Topic != *topic {
				continue
			}
			tctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
			text, err := speech.TranscribeMessage(tctx, transcriber, msg.Payload)
			cancel()
			if err != nil {
				log.Error("Failed to transcribe", "err", err)
				continue
			}
			con.Printf("Transcribed:\n%s\n", text)
		}
	}
}
