// Command pulse-peripheral runs the demo peripheral on the in-memory
// simulated transport: two simulated centrals subscribe and unsubscribe
// while the engine broadcasts heartbeat, battery, and sensor frames.
// Engine activity is streamed on ws://<listen>/ws.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/user/pulsebeacon/beacon"
	"github.com/user/pulsebeacon/logger"
	"github.com/user/pulsebeacon/monitor"
	"github.com/user/pulsebeacon/peripheral"
)

func main() {
	name := flag.String("name", "PulseBeacon", "advertised local name")
	listen := flag.String("listen", ":8080", "monitor hub listen address")
	logLevel := flag.String("log", "info", "log level (trace|debug|info|warn|error)")
	flag.Parse()

	logger.SetLevel(logger.ParseLevel(*logLevel))

	sim := peripheral.NewSimulator("Sim")
	app := beacon.NewApp(*name, sim, nil)

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

	stop := make(chan struct{})
	go driveCentrals(sim, stop)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	close(stop)
	app.Stop()
	logger.Info("Main", "Shut down")
}

// driveCentrals simulates central churn: both centrals subscribe to the
// heartbeat, one also follows the sensor stream, and they periodically walk
// away and come back so the start/stop gating is visible on the dashboard.
func driveCentrals(sim *peripheral.Simulator, stop chan struct{}) {
	alice := sim.AttachCentral(uuid.New().String(), "alice-phone")
	bob := sim.AttachCentral(uuid.New().String(), "bob-watch")

	subscribeAll := func() {
		sim.SimulateSubscribe(alice.ID, beacon.HeartbeatCharUUID)
		sim.SimulateSubscribe(bob.ID, beacon.HeartbeatCharUUID)
		sim.SimulateSubscribe(alice.ID, beacon.SensorCharUUID)
		sim.SimulateSubscribe(bob.ID, beacon.BatteryLevelCharUUID)
	}
	subscribeAll()

	subscribed := true
	for {
		select {
		case <-stop:
			return
		case <-time.After(15 * time.Second):
		}
		if subscribed {
			sim.SimulateUnsubscribe(alice.ID, beacon.SensorCharUUID)
			sim.SimulateUnsubscribe(bob.ID, beacon.HeartbeatCharUUID)
		} else {
			subscribeAll()
		}
		subscribed = !subscribed
	}
}
