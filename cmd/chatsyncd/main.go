package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/fx"

	"github.com/matheus3301/chatsync/internal/daemon"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/session"
)

func main() {
	// .env files are optional; variables already set win.
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(session.BaseDir(), ".env"))

	flags := pflag.NewFlagSet("chatsyncd", pflag.ExitOnError)
	profileFlag := flags.StringP("profile", "p", "", "profile name (overrides config default)")
	socketFlag := flags.String("socket", "", "control socket path (defaults to the profile directory)")
	launchFlag := flags.String("launch-payload", "", "JSON notification the daemon was launched from")
	_ = flags.Parse(os.Args[1:])

	profile := session.ResolveProfile(*profileFlag)
	if err := session.ValidateName(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	params := daemon.Params{Profile: profile, SocketPath: *socketFlag}
	if *launchFlag != "" {
		var n notify.Notification
		if err := json.Unmarshal([]byte(*launchFlag), &n); err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid --launch-payload: %v\n", err)
			os.Exit(1)
		}
		params.Launch = &n
	}

	app := fx.New(
		daemon.Module(params),
	)

	app.Run()
}
