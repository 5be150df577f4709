package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mgutz/ansi"
	"github.com/spf13/afero"
)

var errQuit = errors.New("quit")

type command struct {
	usage string
	help  string
	run   func(c *console, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":    {"", "list commands", (*console).help},
		"status":  {"", "show session state", (*console).status},
		"list":    {"", "show the achievement list", (*console).list},
		"enable":  {"", "enable achievements", (*console).enable},
		"disable": {"", "disable achievements", (*console).disable},
		"login":   {"<user> [hardcore]", "log in with a password", (*console).login},
		"load":    {"<rom>", "insert a ROM", (*console).load},
		"eject":   {"", "stop the running game", (*console).ejectGame},
		"pause":   {"", "pause the frame loop", (*console).pause},
		"resume":  {"", "resume the frame loop", (*console).resume},
		"reset":   {"", "re-arm achievements for the current game", (*console).reset},
		"encore":  {"on|off", "allow unlocked achievements to trigger again", (*console).encore},
		"poke":    {"<addr> <hex>", "write bytes before the next frame", (*console).poke},
		"peek":    {"<addr> <len>", "read bytes", (*console).peek},
		"save":    {"<file>", "save a memory snapshot", (*console).save},
		"restore": {"<file>", "load a memory snapshot", (*console).restore},
		"quit":    {"", "exit", func(*console, []string) error { return errQuit }},
	}
}

type console struct {
	app *app
	fs  afero.Fs
	out io.Writer
	rl  *readline.Instance
	// readPassword prompts without echo.
	readPassword func(prompt string) (string, error)
}

func newConsole(a *app, historyPath string) (*console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "racore> ",
		InterruptPrompt: "\n",
		EOFPrompt:       "quit",
		HistoryFile:     historyPath,
	})
	if err != nil {
		return nil, err
	}
	c := &console{app: a, fs: a.opts.fs, out: rl.Stdout(), rl: rl}
	c.readPassword = func(prompt string) (string, error) {
		b, err := rl.ReadPassword(prompt)
		return string(b), err
	}
	// keep asynchronous output from clobbering the prompt
	a.setOutput(rl.Stderr())
	return c, nil
}

func (c *console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) run(ctx context.Context) error {
	defer c.rl.Close()
	go func() {
		<-ctx.Done()
		c.rl.Close()
	}()

	for {
		line, err := c.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if err := c.exec(line); err == errQuit {
			return nil
		} else if err != nil {
			c.printf("%s %v", ansi.Color("error:", "red"), err)
		}
	}
}

// exec runs one console line.
func (c *console) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := commands[fields[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return cmd.run(c, fields[1:])
}

func (c *console) help(args []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := commands[name]
		c.printf("  %-8s %-18s %s", name, cmd.usage, cmd.help)
	}
	return nil
}

func (c *console) status(args []string) error {
	st := c.app.session.Snapshot()
	c.printf("enabled=%v authenticated=%v hardcore=%v paused=%v", st.Enabled, st.Authenticated, st.Hardcore, st.Paused)
	if st.Username != "" {
		c.printf("user: %s (%s)", st.Username, st.DisplayName)
	}
	if st.LoginError != "" {
		c.printf("login error: %s", st.LoginError)
	}
	c.printf("game: %s [%s]", st.LastIdentity, st.LoadState)
	if st.LoadError != "" {
		c.printf("load error: %s", st.LoadError)
	}
	if g := c.app.session.Game(); g != nil {
		c.printf("title: %s (#%d)", g.Title, g.ID)
	}
	c.printf("frames: %d, achievements: %d", c.app.loop.Frames(), st.Achievements)
	return nil
}

func (c *console) list(args []string) error {
	entries := c.app.session.GetAchievementList()
	if len(entries) == 0 {
		c.printf("no achievements")
		return nil
	}
	for _, e := range entries {
		mark := " "
		if e.Unlocked {
			mark = "*"
		}
		progress := ""
		if e.Progress.Text != "" {
			progress = " [" + e.Progress.Text + "]"
		}
		c.printf("%s %6d %-14s %3dpt %s%s", mark, e.ID, e.BucketLabel, e.Points, e.Title, progress)
	}
	return nil
}

func (c *console) enable(args []string) error {
	c.app.session.Enable()
	return nil
}

func (c *console) disable(args []string) error {
	c.app.session.Disable()
	return nil
}

func (c *console) login(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: login <user> [hardcore]")
	}
	hardcore := len(args) == 2 && args[1] == "hardcore"
	password, err := c.readPassword("password: ")
	if err != nil {
		return err
	}
	return c.app.session.LoginWithCredentials(args[0], password, hardcore)
}

func (c *console) load(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: load <rom>")
	}
	id, err := c.app.insert(args[0])
	if err != nil {
		return err
	}
	c.printf("%s %s %s", id.Title, id.GameCode, id.Hash)
	return nil
}

func (c *console) ejectGame(args []string) error {
	c.app.eject()
	return nil
}

func (c *console) pause(args []string) error {
	c.app.loop.Pause()
	return nil
}

func (c *console) resume(args []string) error {
	c.app.loop.Resume()
	return nil
}

func (c *console) reset(args []string) error {
	c.app.session.Reset()
	return nil
}

func (c *console) encore(args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return fmt.Errorf("usage: encore on|off")
	}
	c.app.session.SetEncoreMode(args[0] == "on")
	return nil
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad address %q", s)
	}
	return uint32(v), nil
}

func (c *console) poke(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: poke <addr> <hex>")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(args[1])
	if err != nil || len(data) == 0 {
		return fmt.Errorf("bad hex %q", args[1])
	}
	return c.app.machine.Queue(addr, data)
}

func (c *console) peek(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: peek <addr> <len>")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(args[1], 0, 16)
	if err != nil || n == 0 {
		return fmt.Errorf("bad length %q", args[1])
	}
	data, err := c.app.machine.Peek(addr, uint32(n))
	if err != nil {
		return err
	}
	c.printf("%#08x: % x", addr, data)
	return nil
}

func (c *console) save(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: save <file>")
	}
	f, err := c.fs.Create(args[0])
	if err != nil {
		return err
	}
	if err := c.app.machine.SaveSnapshot(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *console) restore(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: restore <file>")
	}
	f, err := c.fs.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	return c.app.machine.LoadSnapshot(f)
}
