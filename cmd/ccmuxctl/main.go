// ccmuxctl is a command-line client for the ccmux daemon, covering the
// common session/pane operations plus the orchestration surface. It
// speaks the same wire protocol the TUI and agent bridge use.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ccmux/ccmux/internal/layoutfile"
	"github.com/ccmux/ccmux/internal/transport"
	"github.com/ccmux/ccmux/internal/wire"
)

var version = "dev"

const requestTimeout = 10 * time.Second

func defaultSocketPath() string {
	if dir := os.Getenv("CCMUX_STATE_DIR"); dir != "" {
		return filepath.Join(dir, "ccmux.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ccmux", "ccmux.sock")
	}
	return filepath.Join(home, ".local", "state", "ccmux", "ccmux.sock")
}

func main() {
	app := &cli.App{
		Name:    "ccmuxctl",
		Usage:   "control a running ccmux daemon",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "socket",
				Usage: "daemon socket path",
				Value: defaultSocketPath(),
			},
			&cli.StringFlag{
				Name:  "client-type",
				Usage: "client type to register as (tui, mcp, other)",
				Value: "other",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "ls",
				Usage: "list sessions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tag", Usage: "only sessions carrying this tag"},
				},
				Action: cmdListSessions,
			},
			{
				Name:      "new",
				Usage:     "create a session",
				ArgsUsage: "[name]",
				Action:    cmdNewSession,
			},
			{
				Name:      "kill",
				Usage:     "destroy a session",
				ArgsUsage: "<session>",
				Action:    cmdKillSession,
			},
			{
				Name:      "rename",
				Usage:     "rename a session",
				ArgsUsage: "<session> <new-name>",
				Action:    cmdRenameSession,
			},
			{
				Name:      "attach",
				Usage:     "attach to a session and stream pane output",
				ArgsUsage: "<session>",
				Action:    cmdAttach,
			},
			{
				Name:  "panes",
				Usage: "list panes",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "session", Usage: "restrict to one session"},
				},
				Action: cmdListPanes,
			},
			{
				Name:      "split",
				Usage:     "split a pane",
				ArgsUsage: "<pane-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "direction", Aliases: []string{"d"}, Value: "vertical"},
					&cli.StringFlag{Name: "cwd"},
				},
				Action: cmdSplitPane,
			},
			{
				Name:      "send",
				Usage:     "send input to a pane",
				ArgsUsage: "<pane-id> <text>...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Usage: "send a key symbol (Enter, C-c, ...) instead of text"},
				},
				Action: cmdSendInput,
			},
			{
				Name:      "read",
				Usage:     "read a pane's scrollback",
				ArgsUsage: "<pane-id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "lines", Usage: "trailing lines to return (0 = all)"},
					&cli.BoolFlag{Name: "strip-ansi", Usage: "strip ANSI escape sequences"},
				},
				Action: cmdReadPane,
			},
			{
				Name:      "expect",
				Usage:     "wait for a pattern on a pane's output",
				ArgsUsage: "<pane-id> <pattern>",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "timeout-ms", Value: 10000},
				},
				Action: cmdExpect,
			},
			{
				Name:      "layout",
				Usage:     "apply a declarative layout file to a session",
				ArgsUsage: "<session> <layout-file>",
				Action:    cmdLayout,
			},
			{
				Name:      "worker-status",
				Usage:     "read a session's worker status payload",
				ArgsUsage: "<session>",
				Action:    cmdWorkerStatus,
			},
			{
				Name:      "update-status",
				Usage:     "publish a session's worker status JSON",
				ArgsUsage: "<session> <json>",
				Action:    cmdUpdateStatus,
			},
			{
				Name:      "poll",
				Usage:     "drain a session's orchestration inbox",
				ArgsUsage: "<session>",
				Action:    cmdPoll,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ccmuxctl: %v\n", err)
		os.Exit(1)
	}
}

func dial(c *cli.Context) (*transport.Client, error) {
	return transport.Dial(c.String("socket"), c.String("client-type"))
}

// request sends one request and decodes the response into out (which may
// be nil when only success matters), translating Error responses into a
// CLI error.
func request(client *transport.Client, typ string, body, out any) error {
	resp, err := client.Request(typ, body, requestTimeout)
	if err != nil {
		return err
	}
	if resp.Type == wire.TypeError {
		var werr struct {
			Code    string `msgpack:"code"`
			Message string `msgpack:"message"`
		}
		if derr := resp.Decode(&werr); derr == nil {
			return fmt.Errorf("%s: %s", werr.Code, werr.Message)
		}
		return fmt.Errorf("request %s failed", typ)
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// resolveSession accepts either a session UUID or a session name.
func resolveSession(client *transport.Client, ref string) (wire.Session, error) {
	var list wire.SessionListResp
	if err := request(client, wire.TypeListSessions, wire.ListSessionsReq{}, &list); err != nil {
		return wire.Session{}, err
	}
	for _, s := range list.Sessions {
		if s.ID == ref || s.Name == ref {
			return s, nil
		}
	}
	return wire.Session{}, fmt.Errorf("no session %q", ref)
}

func cmdListSessions(c *cli.Context) error {
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	var list wire.SessionListResp
	if err := request(client, wire.TypeListSessions, wire.ListSessionsReq{Tag: c.String("tag")}, &list); err != nil {
		return err
	}
	for _, s := range list.Sessions {
		panes := 0
		for _, w := range s.Windows {
			panes += len(w.Panes)
		}
		fmt.Printf("%s\t%s\t%d windows\t%d panes\n", s.ID, s.Name, len(s.Windows), panes)
	}
	return nil
}

func cmdNewSession(c *cli.Context) error {
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	var info wire.SessionInfoResp
	if err := request(client, wire.TypeCreateSession, wire.CreateSessionReq{Name: c.Args().First()}, &info); err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", info.Session.ID, info.Session.Name)
	return nil
}

func cmdKillSession(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: kill <session>")
	}
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := resolveSession(client, c.Args().First())
	if err != nil {
		return err
	}
	return request(client, wire.TypeDestroySession, wire.DestroySessionReq{SessionID: session.ID}, nil)
}

func cmdRenameSession(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: rename <session> <new-name>")
	}
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := resolveSession(client, c.Args().Get(0))
	if err != nil {
		return err
	}
	return request(client, wire.TypeRenameSession, wire.RenameSessionReq{SessionID: session.ID, NewName: c.Args().Get(1)}, nil)
}

func cmdAttach(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: attach <session>")
	}
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := resolveSession(client, c.Args().First())
	if err != nil {
		return err
	}
	var attached wire.AttachedResp
	if err := request(client, wire.TypeAttachSession, wire.AttachSessionReq{SessionID: session.ID}, &attached); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "attached to %s (%d windows)\n", attached.Session.Name, len(attached.Windows))

	for sm := range client.Pushes() {
		switch sm.Type {
		case wire.TypeOutput:
			var out wire.OutputPush
			if sm.Decode(&out) == nil {
				os.Stdout.Write(out.Data)
			}
		case wire.TypeNotification:
			var n wire.NotificationPush
			if sm.Decode(&n) == nil {
				fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Text)
			}
		case wire.TypePaneClosed:
			var pc wire.PaneClosedPush
			if sm.Decode(&pc) == nil {
				fmt.Fprintf(os.Stderr, "pane %s closed\n", pc.PaneID)
			}
		case wire.TypeSessionDestroyed:
			var sd wire.SessionDestroyedPush
			if sm.Decode(&sd) == nil && sd.SessionID == session.ID {
				return nil
			}
		}
	}
	return nil
}

func cmdListPanes(c *cli.Context) error {
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	req := wire.ListAllPanesReq{}
	if ref := c.String("session"); ref != "" {
		session, err := resolveSession(client, ref)
		if err != nil {
			return err
		}
		req.SessionID = session.ID
	}
	var list wire.PaneListResp
	if err := request(client, wire.TypeListAllPanes, req, &list); err != nil {
		return err
	}
	for _, p := range list.Panes {
		fmt.Printf("%s\t%dx%d\t%s\t%s\n", p.ID, p.Cols, p.Rows, p.State.Kind, p.Title)
	}
	return nil
}

func cmdSplitPane(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: split <pane-id>")
	}
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	var info wire.PaneInfoResp
	req := wire.SplitPaneReq{
		PaneID:    c.Args().First(),
		Direction: c.String("direction"),
		Cwd:       c.String("cwd"),
	}
	if err := request(client, wire.TypeSplitPane, req, &info); err != nil {
		return err
	}
	fmt.Printf("%s\n", info.Pane.ID)
	return nil
}

func cmdSendInput(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: send <pane-id> [text...]")
	}
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	req := wire.SendInputReq{PaneID: c.Args().First()}
	if key := c.String("key"); key != "" {
		req.Key = key
	} else {
		req.Data = []byte(strings.Join(c.Args().Slice()[1:], " "))
	}
	return request(client, wire.TypeSendInput, req, nil)
}

func cmdReadPane(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: read <pane-id>")
	}
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	var resp wire.ScrollbackLinesResp
	req := wire.ReadPaneReq{
		PaneID:    c.Args().First(),
		Lines:     c.Int("lines"),
		StripAnsi: c.Bool("strip-ansi"),
	}
	if err := request(client, wire.TypeReadPane, req, &resp); err != nil {
		return err
	}
	os.Stdout.Write(resp.Data)
	return nil
}

func cmdExpect(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: expect <pane-id> <pattern>")
	}
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	var match wire.ExpectMatchResp
	req := wire.ExpectReq{
		PaneID:    c.Args().Get(0),
		Pattern:   c.Args().Get(1),
		TimeoutMs: c.Uint64("timeout-ms"),
	}
	if err := request(client, wire.TypeExpect, req, &match); err != nil {
		return err
	}
	fmt.Println(match.Line)
	return nil
}

func cmdLayout(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: layout <session> <layout-file>")
	}
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := resolveSession(client, c.Args().Get(0))
	if err != nil {
		return err
	}
	doc, err := layoutfile.Load(c.Args().Get(1))
	if err != nil {
		return err
	}
	req := doc.ToLayoutSpec()
	req.SessionID = session.ID
	var info wire.WindowInfoResp
	if err := request(client, wire.TypeCreateLayout, req, &info); err != nil {
		return err
	}
	fmt.Printf("%s\t%s\t%d panes\n", info.Window.ID, info.Window.Name, len(info.Window.Panes))
	return nil
}

func cmdWorkerStatus(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: worker-status <session>")
	}
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := resolveSession(client, c.Args().First())
	if err != nil {
		return err
	}
	var resp wire.WorkerStatusResp
	if err := request(client, wire.TypeGetWorkerStatus, wire.GetWorkerStatusReq{SessionID: session.ID}, &resp); err != nil {
		return err
	}
	if len(resp.Status) == 0 {
		fmt.Println("no status reported")
		return nil
	}
	os.Stdout.Write(resp.Status)
	fmt.Println()
	return nil
}

func cmdUpdateStatus(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: update-status <session> <json>")
	}
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := resolveSession(client, c.Args().Get(0))
	if err != nil {
		return err
	}
	req := wire.UpdateWorkerStatusReq{SessionID: session.ID, Status: []byte(c.Args().Get(1))}
	return request(client, wire.TypeUpdateWorkerStatus, req, nil)
}

func cmdPoll(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: poll <session>")
	}
	client, err := dial(c)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := resolveSession(client, c.Args().First())
	if err != nil {
		return err
	}
	var resp wire.MessagesResp
	if err := request(client, wire.TypePollMessages, wire.PollMessagesReq{SessionID: session.ID}, &resp); err != nil {
		return err
	}
	for _, m := range resp.Messages {
		fmt.Printf("%d\t%s\t%s\n", m.ReceivedAt, m.FromSessionID, m.Body)
	}
	return nil
}
