package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/matheus3301/chatsync/internal/ctlclient"
	"github.com/matheus3301/chatsync/internal/session"
)

const requestTimeout = 30 * time.Second

type contextKey int

const contextKeyClient contextKey = iota

func getClient(ctx *cli.Context) *ctlclient.Client {
	return ctx.Context.Value(contextKeyClient).(*ctlclient.Client)
}

func prepareClient(ctx *cli.Context) error {
	profile := session.ResolveProfile(ctx.String("profile"))
	if err := session.ValidateName(profile); err != nil {
		return err
	}
	socket := ctx.String("socket")
	if socket == "" {
		socket = session.SocketPath(profile)
	}
	ctx.Context = context.WithValue(ctx.Context, contextKeyClient, ctlclient.New(socket))
	return nil
}

func main() {
	app := &cli.App{
		Name:  "chatsyncctl",
		Usage: "Control a chatsync profile daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage:   "profile name (overrides config default)",
				EnvVars: []string{"CHATSYNC_PROFILE"},
			},
			&cli.StringFlag{
				Name:  "socket",
				Usage: "control socket path",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "output in JSON format",
			},
		},
		Before: prepareClient,
		After: func(ctx *cli.Context) error {
			if c, ok := ctx.Context.Value(contextKeyClient).(*ctlclient.Client); ok {
				return c.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			statusCommand,
			signinCommand,
			signoutCommand,
			inboxCommand,
			openCommand,
			dmCommand,
			groupCommand,
			threadCommand,
			closeCommand,
			sendCommand,
			attachCommand,
			renameCommand,
			addCommand,
			removeCommand,
			leaveCommand,
			mediaCommand,
			notifyCommand,
			readyCommand,
			pendingCommand,
			useCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// requestContext bounds a single daemon call.
func requestContext(ctx *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Context, requestTimeout)
}

func requireArgs(ctx *cli.Context, n int) error {
	if ctx.NArg() < n {
		return fmt.Errorf("usage: chatsyncctl %s %s", ctx.Command.Name, ctx.Command.ArgsUsage)
	}
	return nil
}

// output prints v as JSON when --json is set, otherwise calls text.
func output(ctx *cli.Context, v any, text func()) {
	if ctx.Bool("json") {
		outputJSON(v)
		return
	}
	text()
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
