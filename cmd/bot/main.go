package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/pflag"

	"totdbot/internal/app"
	"totdbot/internal/config"
)

var version = "dev"

func main() {
	cfgPath := pflag.StringP("config", "c", "./config.yaml", "path to the config file (yaml or json)")
	check := pflag.Bool("check", false, "validate the config and exit")
	showVersion := pflag.BoolP("version", "v", false, "print the version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println("totdbot", version)
		return
	}
	if *check {
		os.Exit(runCheck(*cfgPath))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		_ = a.Stop(stopCtx, app.StopFatal)
		stop()
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatal
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil && reason == app.StopFatal {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runCheck(path string) int {
	cfg, err := config.NewConfigManager(path).Parse()
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "config invalid:", err)
		return 1
	}
	fmt.Println("config ok:", path)
	return 0
}
