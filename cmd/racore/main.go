// Command racore runs the achievement core headless against an in-memory
// Nintendo DS memory model, with a console and a websocket feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/PanMenel/racore/storage"
)

func main() {
	configDir := flag.String("config", "", "config directory (default: per-user config folder)")
	rom := flag.String("rom", "", "ROM to insert at start")
	snapshot := flag.String("snapshot", "", "memory snapshot to restore after inserting the ROM")
	headless := flag.Bool("headless", false, "run without the console")
	noSound := flag.Bool("no-sound", false, "disable the unlock chime")
	web := flag.String("web", "", "websocket listen address (overrides config)")
	flag.Usage = func() {
		fmt.Printf("Usage: %s [options]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	storage.Init("racore")
	if *configDir != "" {
		storage.SetBaseDir(*configDir)
	}
	if err := storage.CreateConfigIfMissing(); err != nil {
		log.Printf("[racore] could not create config: %v", err)
	}
	cfg, err := storage.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if errs := storage.ValidateConfig(cfg); len(errs) > 0 {
		log.Printf("[racore] invalid config values reset to defaults: %s", strings.Join(errs, "; "))
		storage.CorrectConfig(cfg)
	}
	if *web != "" {
		cfg.Host.WebListen = *web
	}
	if pw := os.Getenv("RACORE_PASSWORD"); pw != "" {
		cfg.RetroAchievements.Password = pw
	}

	a, err := newApp(cfg, appOptions{out: os.Stdout, sound: !*noSound, persist: true})
	if err != nil {
		log.Fatal(err)
	}

	if *rom != "" {
		if _, err := a.insert(*rom); err != nil {
			log.Fatal(err)
		}
		if *snapshot != "" {
			f, err := os.Open(*snapshot)
			if err != nil {
				log.Fatal(err)
			}
			err = a.machine.LoadSnapshot(f)
			f.Close()
			if err != nil {
				log.Fatal(err)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var c *console
	if !*headless {
		c, err = newConsole(a, storage.GetHistoryPath())
		if err != nil {
			log.Fatal(err)
		}
		log.SetOutput(c.rl.Stderr())
	}

	if err := a.run(ctx, c); err != nil {
		log.Fatal(err)
	}
}
