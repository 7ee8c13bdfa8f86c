package main

import (
	"context"
	"os"
	"time"

	log "log/slog"

	cli "github.com/spf13/pflag"

	"chatty/internal/app"
	"chatty/internal/config"
	"chatty/internal/console"
	"chatty/internal/ipc"
	"chatty/internal/mqtt"
	"chatty/internal/smarthome"
	"chatty/internal/speech"
)

const publishTimeout = 10 * time.Second

func main() {
	var (
		flags    config.Flags
		recFlags app.RecordFlags
	)
	recFlags.Register(cli.CommandLine)
	topic := cli.String("topic", smarthome.VoiceCommandTopic, "Topic to publish the recording to")
	cfg, logger := app.Boot(&flags)

	if recFlags.ListDevices {
		if err := app.ListDevices(console.Stdio()); err != nil {
			log.Error("Failed to list audio devices", "err", err)
			os.Exit(1)
		}
		return
	}

	mqttCfg, err := cfg.RequireMQTT()
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	mc, err := mqtt.Connect(ctx, mqttCfg, nil, logger)
	if err != nil {
		log.Error("Failed to connect to MQTT", "err", err)
		os.Exit(1)
	}
	defer mc.Disconnect(context.Background())

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

	wav, err := capture.ToMemory(ctx)
	if err != nil {
		log.Error("Failed to record", "err", err)
		os.Exit(1)
	}

	payload, err := speech.EncodeAudioMessage(wav, "wav")
	if err != nil {
		log.Error("Failed to encode audio", "err", err)
		os.Exit(1)
	}

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := mc.Publish(pctx, *topic, 0, false, payload); err != nil {
		log.Error("Failed to publish audio", "err", err)
		os.Exit(1)
	}
	log.Info("Published audio command", "topic", *topic, "bytes", len(wav))
}
