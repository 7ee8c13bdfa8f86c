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
)

const firstStateTimeout = 3 * time.Second

func main() {
	var (
		flags    config.Flags
		recFlags app.RecordFlags
	)
	recFlags.Register(cli.CommandLine)
	disableStreaming := cli.Bool("disable-streaming", false, "Print the whole answer at once")
	noSave := cli.Bool("no-save", false, "Do not save the conversation")
	mute := cli.BoolP("mute", "m", false, "Do not speak the response")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks Proxy Address")
	cfg, logger := app.Boot(&flags)

	if recFlags.ListDevices {
		if err := app.ListDevices(console.Stdio()); err != nil {
			log.Error("Failed to list audio devices", "err", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mqttCfg, err := cfg.RequireMQTT()
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	client := app.OpenAI(cfg, *proxyAddr, logger)

	mc, err := mqtt.Connect(ctx, mqttCfg, []string{smarthome.StateTopic}, logger)
	if err != nil {
		log.Error("Failed to connect to MQTT", "err", err)
		os.Exit(1)
	}
	defer mc.Disconnect(context.Background())

	con := console.Stdio()

	// the retained state, if the broker has one
	initial, err := mqtt.WaitForFirstMessage[smarthome.State](ctx, mc.Messages(), smarthome.StateTopic, firstStateTimeout, true)
	if err != nil {
		log.Error("Failed waiting for home state", "err", err)
		os.Exit(1)
	}
	if initial.IsZero() {
		log.Info("No home state received, starting from defaults")
	}

	rec, err := smarthome.NewReconciler(client, mc, initial, smarthome.Options{
		Streaming:      !*disableStreaming,
		Sink:           con.Sink(),
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

	capture, err := app.NewCapture(recFlags, con, signals, logger)
	if err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer capture.Close()

	for ctx.Err() == nil {
		if signals.ResetRequested() {
			con.Println("Resetting chat manager")
			rec.Reset()
		}

		request, err := capture.Listen(ctx, client)
		switch {
		case err != nil:
			log.Error("Failed to get request", "err", err)
		case request == "":
			log.Info("Nothing was said")
		default:
			// make sure we are not reading outdated info
			rec.Drain(mc.Messages())

			con.Printf("%s Question:\n%s\n", con.Emoji(console.QuestionEmoji), request)
			con.Printf("\n%s ChatGPT:\n\n", con.Emoji(console.RobotEmoji))

			res, err := rec.Turn(ctx, request)
			app.ReportTurn(con, res, err, !*disableStreaming)
		}

		if err := con.WaitForEnter("Press enter for next question"); err != nil {
			return
		}
	}
}
