// Wsecho is a conformance-testing echo client for this module's
// WebSocket engine. It drives the fuzzing server of the
// [Autobahn Testsuite], feeding every received data message straight
// back to the server, which is exactly what the test suite expects of
// a well-behaved client under test.
//
// [Autobahn Testsuite]: https://github.com/crossbario/autobahn-testsuite
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strconv"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"

	"github.com/brindlecove/wsclient/internal/logger"
	"github.com/brindlecove/wsclient/pkg/websocket"
	"github.com/tzrikka/xdg"
)

const (
	configDirName  = "wsecho"
	configFileName = "config.toml"

	agentName = "wsclient"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:    "wsecho",
		Usage:   "run the Autobahn Testsuite fuzzing client against this module's WebSocket engine",
		Version: bi.Main.Version,
		Flags:   flags(),
		Action:  run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	path := configFile()
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "server-url",
			Usage: "base URL of the Autobahn fuzzing server",
			Value: "ws://127.0.0.1:9001",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSECHO_SERVER_URL"),
				toml.TOML("wsecho.server_url", path),
			),
		},
		&cli.StringFlag{
			Name:  "agent",
			Usage: "agent name reported to the fuzzing server",
			Value: agentName,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSECHO_AGENT"),
				toml.TOML("wsecho.agent", path),
			),
		},
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSECHO_PRETTY_LOG"),
				toml.TOML("wsecho.pretty_log", path),
			),
		},
	}
}

// configFile returns the path to the app's configuration file, creating
// an empty one if it doesn't already exist.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, configDirName, configFileName)
	if err != nil {
		logger.FatalError("failed to create config file", err)
	}
	return altsrc.StringSourcer(path)
}

func run(ctx context.Context, cmd *cli.Command) error {
	initLog(cmd.Bool("pretty-log"))

	baseURL := cmd.String("server-url")
	agent := cmd.String("agent")

	n := getCaseCount(ctx, baseURL)
	slog.Info("case count", slog.Int("n", n))

	for i := 1; i <= n; i++ {
		runCase(ctx, baseURL, agent, i)
	}

	updateReports(ctx, baseURL, agent)
	return nil
}

func initLog(pretty bool) {
	var handler slog.Handler
	if pretty {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}

// getCaseCount retrieves the number of enabled test cases from the
// Autobahn fuzzing server, by requesting it as a WebSocket message.
func getCaseCount(ctx context.Context, baseURL string) int {
	conn, err := websocket.Dial(ctx, baseURL+"/getCaseCount", nil)
	if err != nil {
		logger.FatalError("dial error", err)
	}

	msg, ok := <-conn.IncomingMessages()
	if !ok {
		slog.Debug("connection closed before case count arrived")
		return 0
	}

	n, err := strconv.Atoi(string(msg.Data))
	if err != nil {
		logger.FatalError("invalid test case count", err)
	}
	return n
}

// updateReports instructs the fuzzing server to generate/update the
// HTML and JSON reports for every case that ran against this agent.
func updateReports(ctx context.Context, baseURL, agent string) {
	slog.Info("updating reports")
	url := fmt.Sprintf("%s/updateReports?agent=%s", baseURL, agent)
	conn, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		logger.FatalError("dial error", err)
	}
	conn.WaitUntilClosed()
}

// runCase dials a single fuzzing-server test case and echoes back every
// data message it receives, letting the server drive the close.
func runCase(ctx context.Context, baseURL, agent string, i int) {
	l := slog.With(slog.Int("case", i))
	l.Info("starting test case")

	url := fmt.Sprintf("%s/runCase?case=%d&agent=%s", baseURL, i, agent)
	conn, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		logger.FatalError("dial error", err)
	}

	for msg := range conn.IncomingMessages() {
		cl := l.With(slog.String("opcode", msg.Opcode.String()), slog.Int("length", len(msg.Data)))
		cl.Debug("received message")

		var sendErr error
		switch msg.Opcode {
		case websocket.OpcodeText:
			sendErr = conn.SendText(string(msg.Data))
		case websocket.OpcodeBinary:
			sendErr = conn.SendBinary(msg.Data)
		default:
			cl.Error("unexpected opcode in a data message")
			continue
		}

		if sendErr != nil {
			cl.Error("echo error", slog.Any("error", sendErr))
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}

	l.Debug("test case connection closed")
}
