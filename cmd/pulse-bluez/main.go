//go:build linux

// Command pulse-bluez runs the demo peripheral on a real HCI adapter via
// BlueZ. Requires capabilities to open the adapter (typically root or
// cap_net_admin).
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/user/pulsebeacon/beacon"
	"github.com/user/pulsebeacon/bluez"
	"github.com/user/pulsebeacon/logger"
	"github.com/user/pulsebeacon/monitor"
)

func main() {
	device := flag.Int("device", 0, "HCI adapter index (hciN)")
	name := flag.String("name", "PulseBeacon", "advertised local name")
	listen := flag.String("listen", ":8080", "monitor hub listen address")
	logLevel := flag.String("log", "info", "log level (trace|debug|info|warn|error)")
	flag.Parse()

	logger.SetLevel(logger.ParseLevel(*logLevel))

	transport := bluez.New(*device)
	app := beacon.NewApp(*name, transport, nil)

	hub := monitor.NewHub(app.Engine())
	app.Engine().SetEventHook(hub.HandleEvent)

	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "bring-up failed: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	go func() {
		logger.Info("Main", "Monitor hub on ws://%s/ws", *listen)
		if err := http.ListenAndServe(*listen, mux); err != nil {
			logger.Error("Main", "Monitor hub stopped: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	app.Stop()
	logger.Info("Main", "Shut down")
}
