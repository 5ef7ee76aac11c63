/*
This is an example of application that will use the
engine package to stream resources headless
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/thefork190/TheFork-sub000/engine"
	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/testbed"
)

func main() {
	configPath := flag.String("config", "testbed.toml", "path to the application config")
	flag.Parse()

	config, err := engine.LoadApplicationConfig(*configPath)
	if err != nil {
		core.LogFatal("failed to load config: %s", err)
	}
	if err := os.MkdirAll(config.AssetsDir, 0o755); err != nil {
		core.LogFatal("failed to create the assets directory: %s", err)
	}

	tb := testbed.NewTestGame(&config)

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal(err.Error())
	}

	if err := e.Initialize(); err != nil {
		core.LogFatal(err.Error())
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// start shutdown goroutine
	go func() {
		// capture sigterm and other system call here
		<-sigCh
		e.Stop()
	}()

	// run engine
	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	if runErr != nil {
		core.LogFatal(runErr.Error())
	}
}
