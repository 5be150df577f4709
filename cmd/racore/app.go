package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/mgutz/ansi"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/PanMenel/racore/achievements"
	emucore "github.com/PanMenel/racore/api"
	"github.com/PanMenel/racore/chime"
	"github.com/PanMenel/racore/engine/scripted"
	"github.com/PanMenel/racore/host"
	"github.com/PanMenel/racore/netbridge"
	"github.com/PanMenel/racore/romloader"
	"github.com/PanMenel/racore/storage"
	"github.com/PanMenel/racore/webui"
)

// coreVersion is reported in the client identifier.
const coreVersion = "0.4.0"

var (
	colorUnlock   = ansi.ColorFunc("yellow+b")
	colorProgress = ansi.ColorFunc("cyan")
	colorOK       = ansi.ColorFunc("green")
	colorFail     = ansi.ColorFunc("red")
)

type appOptions struct {
	out   io.Writer
	fs    afero.Fs
	sound bool
	// persist writes config changes such as a fresh login token back to disk.
	persist bool
}

type app struct {
	cfg     *storage.Config
	opts    appOptions
	info    emucore.SystemInfo
	machine *host.Machine
	loader  *romloader.Loader
	session *achievements.Session
	loop    *host.Loop
	web     *webui.Controller
	chime   *chime.Player

	outMu sync.Mutex
	out   io.Writer
}

func newApp(cfg *storage.Config, opts appOptions) (*app, error) {
	if opts.fs == nil {
		opts.fs = afero.NewOsFs()
	}
	a := &app{
		cfg:  cfg,
		opts: opts,
		info: emucore.NintendoDS(coreVersion),
		out:  opts.out,
	}

	machine, err := host.NewMachine(a.info.Name)
	if err != nil {
		return nil, err
	}
	a.machine = machine
	a.loader = romloader.New(romloader.WithFs(opts.fs), romloader.WithExtensions(a.info.Extensions...))

	bridgeOpts := []netbridge.Option{
		netbridge.WithTimeout(time.Duration(cfg.Network.TimeoutSeconds) * time.Second),
	}
	if cfg.Network.CABundlePath != "" {
		pem, err := afero.ReadFile(opts.fs, cfg.Network.CABundlePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		bridgeOpts = append(bridgeOpts, netbridge.WithCABundle(pem))
	}
	userAgent := netbridge.UserAgent(a.info.ClientName(), "scripted/"+scripted.Version)
	bridge := netbridge.New(userAgent, bridgeOpts...)

	factory := scripted.Factory(
		scripted.WithHost(cfg.Network.ServerURL),
		scripted.WithMediaHost(cfg.Network.MediaURL),
	)
	a.session = achievements.NewSession(factory, bridge,
		achievements.WithEmulator(machine.Memory(), machine),
	)

	ra := cfg.RetroAchievements
	a.session.SetCredentials(ra.Username, ra.Password, ra.Hardcore)
	if ra.Token != "" {
		a.session.SetToken(ra.Username, ra.Token)
	}
	a.session.SetEncoreMode(ra.EncoreMode)

	a.loop = host.NewLoop(a.session, cfg.Host.FrameRate, machine.Step)
	a.web = webui.NewController(a.session)
	if opts.sound && ra.UnlockSound {
		a.chime = chime.NewPlayer(cfg.Host.Volume)
	}

	a.wireNotifier()
	return a, nil
}

func (a *app) printf(format string, args ...interface{}) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format+"\n", args...)
}

func (a *app) setOutput(w io.Writer) {
	a.outMu.Lock()
	a.out = w
	a.outMu.Unlock()
}

// wireNotifier fans each session event out to the console, the chime and
// the websocket feed.
func (a *app) wireNotifier() {
	n := a.session.Notifier()
	show := a.cfg.RetroAchievements.ShowNotification

	n.SetOnAchievementUnlocked(func(ev achievements.AchievementUnlocked) {
		if show {
			a.printf("%s %s: %s", colorUnlock("Achievement unlocked!"), ev.Title, ev.Description)
		}
		if a.chime != nil {
			if err := a.chime.Play(); err != nil {
				log.Printf("[racore] chime: %v", err)
			}
		}
		a.web.Unlocked(ev)
	})
	n.SetOnMeasuredProgress(func(ev achievements.ProgressChange) {
		if show {
			a.printf("%s #%d %s", colorProgress("progress"), ev.ID, ev.Text)
		}
		a.web.Progress(ev)
	})
	n.SetOnLoginResult(func(ev achievements.LoginResult) {
		if ev.Success {
			a.printf("%s as %s", colorOK("logged in"), a.session.DisplayName())
			a.rememberToken()
		} else {
			a.printf("%s: %s", colorFail("login failed"), ev.Message)
		}
		a.web.LoginResult(ev)
	})
	n.SetOnGameLoadResult(func(ev achievements.GameLoadResult) {
		if ev.Success {
			title := ev.Identity
			if g := a.session.Game(); g != nil {
				title = g.Title
			}
			a.printf("%s %s (%d achievements)", colorOK("loaded"), title, len(a.session.GetAchievementList()))
		} else {
			a.printf("%s %s: %s", colorFail("load failed"), ev.Identity, ev.Message)
		}
		a.web.GameLoadResult(ev)
	})
}

// rememberToken stores the session token so the next start can log in
// without a password.
func (a *app) rememberToken() {
	token := a.session.Token()
	if token == "" || token == a.cfg.RetroAchievements.Token {
		return
	}
	a.cfg.RetroAchievements.Username = a.session.Username()
	a.cfg.RetroAchievements.Token = token
	if !a.opts.persist {
		return
	}
	if err := storage.SaveConfig(a.cfg); err != nil {
		log.Printf("[racore] failed to save token: %v", err)
	}
}

// insert identifies a ROM and starts it on the machine.
func (a *app) insert(path string) (romloader.Identity, error) {
	id, err := a.loader.Identify(path)
	if err != nil {
		return romloader.Identity{}, err
	}
	a.machine.Insert(id)
	a.session.SetPendingGameIdentity(id.Hash)
	log.Printf("[racore] inserted %s [%s] %s", id.Title, id.GameCode, id.Hash)
	return id, nil
}

func (a *app) eject() {
	a.machine.Eject()
}

// run drives the frame loop, the websocket feed and, when given, the
// console until ctx ends or the console quits.
func (a *app) run(ctx context.Context, c *console) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.cfg.RetroAchievements.Enabled {
		a.session.Enable()
	}
	defer a.session.Disable()
	defer a.web.Server().Close()
	if a.chime != nil {
		defer a.chime.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.loop.Run(ctx)
	})
	if a.cfg.Host.WebListen != "" {
		g.Go(func() error {
			return a.web.Server().Serve(ctx, a.cfg.Host.WebListen)
		})
	}
	if c != nil {
		g.Go(func() error {
			defer cancel()
			return c.run(ctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
