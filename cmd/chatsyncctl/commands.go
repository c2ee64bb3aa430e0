package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/inbox"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/thread"
)

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "Show daemon and session status",
	Action: func(ctx *cli.Context) error {
		rctx, cancel := requestContext(ctx)
		defer cancel()
		st, err := getClient(ctx).Status(rctx)
		if err != nil {
			return err
		}
		output(ctx, st, func() {
			fmt.Printf("Profile:    %s\n", st.Profile)
			fmt.Printf("Status:     %s (since %s)\n", st.Status, st.Since.Format("15:04:05"))
			if st.Identity != "" {
				fmt.Printf("Identity:   %s\n", st.Identity)
			}
			fmt.Printf("Navigation: ready=%v\n", st.NavigationReady)
			fmt.Printf("Uptime:     %dms\n", st.UptimeMs)
		})
		return nil
	},
}

var signinCommand = &cli.Command{
	Name:      "signin",
	Usage:     "Sign the daemon in",
	ArgsUsage: "<auth-token>",
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 1); err != nil {
			return err
		}
		rctx, cancel := requestContext(ctx)
		defer cancel()
		resp, err := getClient(ctx).SignIn(rctx, ctx.Args().First())
		if err != nil {
			return err
		}
		output(ctx, resp, func() { fmt.Printf("Signed in as %s\n", resp.Identity) })
		return nil
	},
}

var signoutCommand = &cli.Command{
	Name:  "signout",
	Usage: "Sign the daemon out and close open threads",
	Action: func(ctx *cli.Context) error {
		rctx, cancel := requestContext(ctx)
		defer cancel()
		if err := getClient(ctx).SignOut(rctx); err != nil {
			return err
		}
		fmt.Println("Signed out")
		return nil
	},
}

var inboxCommand = &cli.Command{
	Name:  "inbox",
	Usage: "List conversations and users",
	Action: func(ctx *cli.Context) error {
		rctx, cancel := requestContext(ctx)
		defer cancel()
		resp, err := getClient(ctx).Inbox(rctx)
		if err != nil {
			return err
		}
		output(ctx, resp, func() { printInbox(resp) })
		return nil
	},
}

func printInbox(resp *api.InboxResponse) {
	if resp.UsersError != "" {
		fmt.Fprintf(os.Stderr, "warning: users unavailable: %s\n", resp.UsersError)
	}
	if resp.ConversationsError != "" {
		fmt.Fprintf(os.Stderr, "warning: conversations unavailable: %s\n", resp.ConversationsError)
	}
	if len(resp.Entries) == 0 {
		fmt.Println("Nothing here yet.")
		return
	}
	for _, e := range resp.Entries {
		switch e.Kind {
		case inbox.KindConversation:
			c := e.Conversation
			unread := ""
			if c.UnreadCount > 0 {
				unread = fmt.Sprintf(" (%d)", c.UnreadCount)
			}
			fmt.Printf("%-36s %-24s%s  %s\n", c.SID, c.DisplayName, unread, inbox.Preview(*c, resp.Self))
		case inbox.KindUser:
			fmt.Printf("%-36s %s\n", "user", e.User.UserName)
		}
	}
}

func printOpen(ctx *cli.Context, resp *api.OpenResponse) {
	output(ctx, resp, func() {
		name := resp.Params.RecipientUsername
		if resp.Params.IsGroup {
			name = resp.Params.GroupName
		}
		fmt.Printf("Opened %s (%s)\n", resp.Params.ConversationSID, name)
		if resp.Thread != nil {
			printThread(resp.Thread)
		}
	})
}

func printThread(snap *thread.Snapshot) {
	if snap.IsGroup {
		fmt.Printf("Group %q: %s\n", snap.Name, strings.Join(snap.Participants, ", "))
	}
	for _, m := range snap.Messages {
		body := m.Body
		if m.Media != nil {
			body = inbox.MediaPreview + " " + m.Media.Filename + " [" + m.SID + "]"
		}
		fmt.Printf("%s  %-12s %s\n", m.DateCreated.Format("01-02 15:04"), m.Author, body)
	}
}

var openCommand = &cli.Command{
	Name:      "open",
	Usage:     "Open a conversation from the inbox",
	ArgsUsage: "<conversation-sid>",
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 1); err != nil {
			return err
		}
		rctx, cancel := requestContext(ctx)
		defer cancel()
		resp, err := getClient(ctx).Open(rctx, ctx.Args().First())
		if err != nil {
			return err
		}
		printOpen(ctx, resp)
		return nil
	},
}

var dmCommand = &cli.Command{
	Name:      "dm",
	Usage:     "Open or create the direct conversation with a user",
	ArgsUsage: "<user-name>",
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 1); err != nil {
			return err
		}
		rctx, cancel := requestContext(ctx)
		defer cancel()
		resp, err := getClient(ctx).Direct(rctx, ctx.Args().First())
		if err != nil {
			return err
		}
		printOpen(ctx, resp)
		return nil
	},
}

var groupCommand = &cli.Command{
	Name:      "group",
	Usage:     "Create a group conversation",
	ArgsUsage: "<member> <member>...",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "group name", Required: true},
	},
	Action: func(ctx *cli.Context) error {
		rctx, cancel := requestContext(ctx)
		defer cancel()
		resp, err := getClient(ctx).CreateGroup(rctx, ctx.String("name"), ctx.Args().Slice())
		if err != nil {
			return err
		}
		printOpen(ctx, resp)
		return nil
	},
}

var threadCommand = &cli.Command{
	Name:      "thread",
	Usage:     "Show the open thread",
	ArgsUsage: "<conversation-sid>",
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 1); err != nil {
			return err
		}
		rctx, cancel := requestContext(ctx)
		defer cancel()
		snap, err := getClient(ctx).Thread(rctx, ctx.Args().First())
		if err != nil {
			return err
		}
		output(ctx, snap, func() { printThread(snap) })
		return nil
	},
}

var closeCommand = &cli.Command{
	Name:      "close",
	Usage:     "Close the open thread",
	ArgsUsage: "<conversation-sid>",
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 1); err != nil {
			return err
		}
		rctx, cancel := requestContext(ctx)
		defer cancel()
		return getClient(ctx).CloseThread(rctx, ctx.Args().First())
	},
}

var sendCommand = &cli.Command{
	Name:      "send",
	Usage:     "Send a text message to the open thread",
	ArgsUsage: "<conversation-sid> <text>...",
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 2); err != nil {
			return err
		}
		rctx, cancel := requestContext(ctx)
		defer cancel()
		body := strings.Join(ctx.Args().Tail(), " ")
		return getClient(ctx).SendText(rctx, ctx.Args().First(), body)
	},
}

var attachCommand = &cli.Command{
	Name:      "attach",
	Usage:     "Send a file to the open thread",
	ArgsUsage: "<conversation-sid> <file>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "type", Usage: "content type (sniffed when empty)"},
	},
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 2); err != nil {
			return err
		}
		path := ctx.Args().Get(1)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read attachment: %w", err)
		}
		rctx, cancel := requestContext(ctx)
		defer cancel()
		return getClient(ctx).SendMedia(rctx, ctx.Args().First(), api.MediaRequest{
			ContentType: ctx.String("type"),
			Filename:    path,
			Data:        data,
		})
	},
}

var renameCommand = &cli.Command{
	Name:      "rename",
	Usage:     "Rename the open thread",
	ArgsUsage: "<conversation-sid> <name>...",
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 2); err != nil {
			return err
		}
		rctx, cancel := requestContext(ctx)
		defer cancel()
		snap, err := getClient(ctx).Rename(rctx, ctx.Args().First(), strings.Join(ctx.Args().Tail(), " "))
		if err != nil {
			return err
		}
		output(ctx, snap, func() { fmt.Printf("Renamed to %q\n", snap.Name) })
		return nil
	},
}

var addCommand = &cli.Command{
	Name:      "add",
	Usage:     "Add participants to the open thread",
	ArgsUsage: "<conversation-sid> <identity>...",
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 2); err != nil {
			return err
		}
		rctx, cancel := requestContext(ctx)
		defer cancel()
		return getClient(ctx).AddParticipants(rctx, ctx.Args().First(), ctx.Args().Tail()...)
	},
}

var removeCommand = &cli.Command{
	Name:      "remove",
	Usage:     "Remove a participant from the open thread",
	ArgsUsage: "<conversation-sid> <identity>",
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 2); err != nil {
			return err
		}
		rctx, cancel := requestContext(ctx)
		defer cancel()
		return getClient(ctx).RemoveParticipant(rctx, ctx.Args().First(), ctx.Args().Get(1))
	},
}

var leaveCommand = &cli.Command{
	Name:      "leave",
	Usage:     "Leave the open thread's conversation",
	ArgsUsage: "<conversation-sid>",
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 1); err != nil {
			return err
		}
		rctx, cancel := requestContext(ctx)
		defer cancel()
		return getClient(ctx).Leave(rctx, ctx.Args().First())
	},
}

var mediaCommand = &cli.Command{
	Name:      "media",
	Usage:     "Resolve a temporary URL for an attachment",
	ArgsUsage: "<conversation-sid> <message-sid>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "type", Usage: "attachment content type (default: from the message)"},
	},
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 2); err != nil {
			return err
		}
		rctx, cancel := requestContext(ctx)
		defer cancel()
		resp, err := getClient(ctx).Media(rctx, ctx.Args().First(), ctx.Args().Get(1), ctx.String("type"))
		if err != nil {
			return err
		}
		output(ctx, resp, func() {
			fmt.Printf("%s (%s %s, until ~%s)\n", resp.URL, resp.Kind, resp.ContentType, resp.ExpiresApproximately.Format("15:04:05"))
		})
		return nil
	},
}

var notifyCommand = &cli.Command{
	Name:      "notify",
	Usage:     "Deliver a push notification (foreground, tap or initial)",
	ArgsUsage: "<kind>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "title"},
		&cli.StringFlag{Name: "body"},
		&cli.StringFlag{Name: "data", Usage: "notification data as a JSON object"},
	},
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 1); err != nil {
			return err
		}
		n := notify.Notification{Title: ctx.String("title"), Body: ctx.String("body")}
		if raw := ctx.String("data"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &n.Data); err != nil {
				return fmt.Errorf("invalid --data: %w", err)
			}
		}
		rctx, cancel := requestContext(ctx)
		defer cancel()
		resp, err := getClient(ctx).Notify(rctx, ctx.Args().First(), n)
		if err != nil {
			return err
		}
		output(ctx, resp, func() { fmt.Printf("accepted=%v routable=%v\n", resp.Accepted, resp.Routable) })
		return nil
	},
}

var readyCommand = &cli.Command{
	Name:  "ready",
	Usage: "Mark navigation as mounted",
	Action: func(ctx *cli.Context) error {
		rctx, cancel := requestContext(ctx)
		defer cancel()
		return getClient(ctx).Ready(rctx)
	},
}

var pendingCommand = &cli.Command{
	Name:  "pending",
	Usage: "Show the navigation target waiting for readiness",
	Action: func(ctx *cli.Context) error {
		rctx, cancel := requestContext(ctx)
		defer cancel()
		resp, err := getClient(ctx).Pending(rctx)
		if err != nil {
			return err
		}
		output(ctx, resp, func() {
			fmt.Printf("Ready: %v\n", resp.Ready)
			if resp.Target != nil {
				fmt.Printf("Pending: %s\n", resp.Target.ConversationSID)
			}
		})
		return nil
	},
}

var useCommand = &cli.Command{
	Name:      "use",
	Usage:     "Set the default profile in the config file",
	ArgsUsage: "<profile>",
	Action: func(ctx *cli.Context) error {
		if err := requireArgs(ctx, 1); err != nil {
			return err
		}
		name := ctx.Args().First()
		if err := session.ValidateName(name); err != nil {
			return err
		}
		path := session.ConfigPath()
		cfg, err := config.Load(path)
		if errors.Is(err, fs.ErrNotExist) {
			cfg, err = &config.Config{}, nil
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg.DefaultProfile = name
		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Printf("Default profile set to %s\n", name)
		return nil
	},
}
