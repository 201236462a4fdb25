// Command button-sensor watches push buttons on GPIO pins, classifies presses
// as short or long and publishes each action to MQTT.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/sweeney/button-sensor/internal/config"
	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/mqtt"
	"github.com/sweeney/button-sensor/internal/status"
	"github.com/sweeney/button-sensor/internal/timer"
	"github.com/sweeney/button-sensor/internal/web"
)

// httpOff disables the status server when passed as --http.
const httpOff = "off"

var (
	app        = kingpin.New("button-sensor", "GPIO button press detector")
	debug      = app.Flag("debug", "Turn on debug logging.").Bool()
	configPath = app.Flag("config", "Path to the YAML configuration file.").Short('c').Default("config.yaml").String()
	broker     = app.Flag("broker", "MQTT broker address, overrides the config file.").String()
	httpAddr   = app.Flag("http", `HTTP status address, overrides the config file ("off" disables).`).String()

	runCmd     = app.Command("run", "Run the detector daemon.").Default()
	printCmd   = app.Command("print-state", "Print the current level of every configured button and exit.")
	versionCmd = app.Command("version", "Show current version.")
)

var buildTime, buildVersion string

func showVersion() {
	if buildTime != "" && buildVersion != "" {
		fmt.Printf("%s (built: %s)\n", buildVersion, buildTime)
	} else {
		fmt.Println("button-sensor: dev")
	}
}

func main() {
	cmd, err := app.Parse(os.Args[1:])
	if err != nil {
		fmt.Printf("%v: Try --help\n", err.Error())
		os.Exit(1)
	}

	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if *debug {
		log.Info("Enabling debug output...")
		log.SetLevel(log.DebugLevel)
	}

	switch cmd {
	case runCmd.FullCommand():
		err = withConfig(run)
	case printCmd.FullCommand():
		err = withConfig(func(cfg *config.Config) error {
			src, err := openSource(cfg)
			if err != nil {
				return err
			}
			defer src.Close()
			return printState(os.Stdout, src, cfg.Buttons)
		})
	case versionCmd.FullCommand():
		showVersion()
	default:
		kingpin.FatalUsage("Unrecognized command")
	}

	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// withConfig loads the config file, applies flag overrides and calls fn.
func withConfig(fn func(cfg *config.Config) error) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *broker != "" {
		cfg.MQTT.Broker = *broker
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	return fn(cfg)
}

func openSource(cfg *config.Config) (gpio.Source, error) {
	switch cfg.Backend {
	case config.BackendPeriph:
		src, err := gpio.NewPeriphSource()
		if err != nil {
			return nil, fmt.Errorf("init periph: %w", err)
		}
		return src, nil
	default:
		src, err := gpio.NewChipSource(cfg.Chip)
		if err != nil {
			return nil, fmt.Errorf("init gpio: %w", err)
		}
		return src, nil
	}
}

// printState writes one line per button with its current level.
// Buttons are wired active-low, so LOW means held down.
func printState(w io.Writer, src gpio.Source, buttons []config.Button) error {
	for _, b := range buttons {
		level, err := src.Read(b.Pin)
		if err != nil {
			return fmt.Errorf("read %s (pin %d): %w", b.Name, b.Pin, err)
		}
		state := "released"
		if level == gpio.Low {
			state = "pressed"
		}
		fmt.Fprintf(w, "%s (GPIO%d): %s %s\n", b.Name, b.Pin, level, state)
	}
	return nil
}

func statusConfig(cfg *config.Config) status.Config {
	buttons := make([]status.Button, len(cfg.Buttons))
	for i, b := range cfg.Buttons {
		buttons[i] = status.Button{Pin: b.Pin, Name: b.Name}
	}
	heartbeat := cfg.Heartbeat
	if heartbeat < 0 {
		heartbeat = 0
	}
	return status.Config{
		Buttons:     buttons,
		DebounceMs:  cfg.Debounce.Milliseconds(),
		LongPressMs: cfg.LongPress.Milliseconds(),
		PollMs:      cfg.Poll.Milliseconds(),
		HeartbeatMs: heartbeat.Milliseconds(),
		Backend:     cfg.Backend,
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTPAddr,
	}
}

func run(cfg *config.Config) error {
	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	detector := logic.NewDetector(src, timer.NewAlarm(), logic.Options{
		Debounce:  cfg.Debounce,
		LongPress: cfg.LongPress,
	})

	publisher, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.BufferSize)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Tracker exists before STARTUP so the snapshot is available.
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	if err := detector.Begin(cfg.Pins()); err != nil {
		return fmt.Errorf("begin detection: %w", err)
	}
	tracker.Update(detector.State(), detector.Counts())
	tracker.SetMQTTConnected(publisher.IsConnected())

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Warnf("failed to publish startup event: %v", err)
	} else {
		log.Info("published startup event")
	}

	if cfg.HTTPAddr != httpOff {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Infof("started: buttons=%v debounce=%v longPress=%v poll=%v broker=%s heartbeat=%v",
		cfg.Pins(), cfg.Debounce, cfg.LongPress, cfg.Poll, cfg.MQTT.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(detector, publisher, publisher, tracker, cfg.Names(), cfg.Heartbeat, time.Now, ticker.C, sigCh)
}

// runLoop is the polling consumer of the detector. On every tick it hands a
// latched action to the publisher and re-enables detection. It returns after
// a signal, once detection is stopped and SHUTDOWN is published.
func runLoop(detector *logic.Detector, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, names map[int]string, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	hb := logic.NewHeartbeat(now(), heartbeat)

	for {
		select {
		case s := <-sig:
			log.Infof("received %v, shutting down", s)
			if err := detector.End(); err != nil {
				log.Warnf("stop detection: %v", err)
			}

			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			tracker.Update(detector.State(), detector.Counts())
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			snap := tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warnf("failed to publish shutdown event: %v", err)
			} else {
				log.Info("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()

			if detector.ToProcess() {
				if action, ok := detector.Pending(); ok {
					event := logic.Event{
						Timestamp: t,
						Pin:       action.Pin,
						Name:      names[action.Pin],
						Action:    action.Kind,
						HeldFor:   action.HeldFor,
					}
					log.Infof("action: %s on %s (pin %d, held %v)", event.Action, event.Name, event.Pin, event.HeldFor)
					if err := publisher.Publish(event); err != nil {
						// Don't crash on publish failure
						log.Warnf("publish error: %v", err)
					}
					tracker.RecordAction(event)
				}
				if err := detector.Processed(); err != nil {
					log.Warnf("acknowledge action: %v", err)
				}
			}

			tracker.Update(detector.State(), detector.Counts())
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			if hbData := hb.Check(t, detector.Counts()); hbData != nil {
				log.Infof("heartbeat: uptime=%v pressed=%d long_pressed=%d abandoned=%d",
					hbData.Uptime, hbData.Counts.Pressed, hbData.Counts.LongPressed, hbData.Counts.Abandoned)

				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				hbEvent := mqtt.SystemEvent{
					Timestamp:  hbData.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Warnf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
