// Wsshell is an interactive demo client: it opens a WebSocket connection
// to a server given on the command line, prints every incoming data
// message to stdout, and sends each line typed on stdin as a Text
// message. It uses [websocket.Client] rather than a bare [websocket.Conn],
// so it exercises the same cached-connection and seamless-reconnect
// machinery a long-running event listener would.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/google/uuid"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"

	"github.com/brindlecove/wsclient/internal/logger"
	"github.com/brindlecove/wsclient/pkg/websocket"
	"github.com/tzrikka/xdg"
)

const (
	configDirName  = "wsshell"
	configFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:      "wsshell",
		Usage:     "interactively send and receive WebSocket messages",
		Version:   bi.Main.Version,
		Flags:     flags(),
		Arguments: []cli.Argument{&cli.StringArg{Name: "url"}},
		Action:    run,
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
			Name:  "client-id",
			Usage: "stable identity used to cache and reconnect this client's connection",
			Value: uuid.NewString(),
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSSHELL_CLIENT_ID"),
				toml.TOML("wsshell.client_id", path),
			),
		},
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSSHELL_PRETTY_LOG"),
				toml.TOML("wsshell.pretty_log", path),
			),
		},
	}
}

func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, configDirName, configFileName)
	if err != nil {
		logger.FatalError("failed to create config file", err)
	}
	return altsrc.StringSourcer(path)
}

func run(ctx context.Context, cmd *cli.Command) error {
	initLog(cmd.Bool("pretty-log"))

	url := cmd.StringArg("url")
	if url == "" {
		return fmt.Errorf("usage: %s [options] <ws-url>", cmd.Name)
	}

	urlFunc := func(context.Context) (string, error) { return url, nil }
	client, err := websocket.NewOrCachedClient(ctx, urlFunc, cmd.String("client-id"), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Close(websocket.StatusNormalClosure, "wsshell exiting")

	go printIncoming(client)
	return readAndSend(client)
}

func initLog(pretty bool) {
	var handler slog.Handler
	if pretty {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}

// printIncoming relays every data message the client receives to stdout,
// tagged with its opcode, until the client's channel is closed.
func printIncoming(c *websocket.Client) {
	for msg := range c.IncomingMessages() {
		fmt.Printf("< [%s] %s\n", msg.Opcode, msg.Data)
	}
}

// readAndSend sends each line from stdin as a Text message until EOF.
func readAndSend(c *websocket.Client) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := c.SendText(scanner.Text()); err != nil {
			slog.Error("failed to send message", slog.Any("error", err))
		}
	}
	return scanner.Err()
}
