package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/duo/webqq/pkg/connector"
	"github.com/duo/webqq/pkg/qqid"

	"github.com/rs/zerolog"
	flag "maunium.net/go/mauflag"
)

// Information to find out exactly which commit the client was built from.
// These are filled at build time with the -X linker flag.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath = flag.MakeFull("c", "config", "The path to your config file.", "config.yaml").String()
var saveConfig = flag.MakeFull("s", "save-config", "Write missing config keys back to the config file.", "false").Bool()
var generateExample = flag.MakeFull("e", "generate-example-config", "Save the example config to the config path and quit.", "false").Bool()
var version = flag.MakeFull("v", "version", "View client version and quit.", "false").Bool()
var wantHelp, _ = flag.MakeHelpFlag()

func main() {
	flag.SetHelpTitles(
		"webqq - A WebQQ client that logs in by QR code and prints incoming messages.",
		"webqq [-hvse] [-c <path>]",
	)
	err := flag.Parse()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		flag.PrintHelp()
		os.Exit(1)
	} else if *wantHelp {
		flag.PrintHelp()
		os.Exit(0)
	} else if *version {
		fmt.Printf("webqq %s (%s, built at %s)\n", Tag, Commit, BuildTime)
		os.Exit(0)
	} else if *generateExample {
		if err = os.WriteFile(*configPath, []byte(fullExampleConfig()), 0600); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "Failed to write example config:", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath, *saveConfig)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(10)
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(11)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	qc := connector.NewConnector(cfg.Network, *log)
	log.Info().Str("path", cfg.QRCodePath).Msg("Logging in, the QR code will be written to disk")

	client, err := qc.Connect(ctx, connector.FileQRCodeSink(cfg.QRCodePath), &messagePrinter{log: *log})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to log in")
	}
	_ = os.Remove(cfg.QRCodePath)

	select {
	case <-ctx.Done():
		log.Info().Msg("Interrupt received, stopping...")
	case <-client.Done():
	}

	_ = client.Close()
	<-client.Done()
}

type messagePrinter struct {
	log zerolog.Logger
}

func (p *messagePrinter) OnPrivateMessage(msg *qqid.PrivateMessage) {
	p.log.Info().
		Int64("from", msg.SenderID).
		Time("time", msg.Time.Time).
		Msg(msg.Content)
}

func (p *messagePrinter) OnGroupMessage(msg *qqid.GroupMessage) {
	p.log.Info().
		Int64("group", msg.GroupID).
		Int64("from", msg.SenderID).
		Time("time", msg.Time.Time).
		Msg(msg.Content)
}

func (p *messagePrinter) OnDiscussMessage(msg *qqid.DiscussMessage) {
	p.log.Info().
		Int64("discussion", msg.DiscussID).
		Int64("from", msg.SenderID).
		Time("time", msg.Time.Time).
		Msg(msg.Content)
}

func (p *messagePrinter) OnSessionInvalid(err error) {
	p.log.Warn().Err(err).Msg("Session is no longer valid, restart to log in again")
}
