/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/umbra/engine"
	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/testbed"
)

func main() {
	configPath := flag.String("config", "umbra.toml", "path to the engine configuration file")
	watch := flag.Bool("watch", true, "reload shadow and log settings when the configuration file changes")
	flag.Parse()

	cfg := config.Default()
	if _, err := os.Stat(*configPath); err == nil {
		if cfg, err = config.Load(*configPath); err != nil {
			core.LogFatal("%s", err)
		}
	} else {
		core.LogWarn("%s not found, running with the default configuration", *configPath)
		*watch = false
	}

	tb := testbed.NewTestGame()

	e, err := engine.New(tb.Game, cfg)
	if err != nil {
		core.LogFatal("%s", err)
	}
	if *watch {
		if err := e.WatchConfig(*configPath); err != nil {
			core.LogWarn("config hot reload disabled: %s", err)
		}
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	// the run loop owns the window, so the signal only asks it to stop
	go func() {
		<-sigCh
		e.Quit()
	}()

	if err := e.Run(); err != nil {
		core.LogFatal("%s", err)
	}
}
