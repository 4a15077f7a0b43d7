// Command tide-display drives a tide clock and a water-level display from
// NOAA predictions, publishing what it does to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/tide-display/internal/gpio"
	"github.com/sweeney/tide-display/internal/lavet"
	"github.com/sweeney/tide-display/internal/level"
	"github.com/sweeney/tide-display/internal/logic"
	"github.com/sweeney/tide-display/internal/mqtt"
	"github.com/sweeney/tide-display/internal/noaa"
	"github.com/sweeney/tide-display/internal/status"
	"github.com/sweeney/tide-display/internal/store"
	"github.com/sweeney/tide-display/internal/tides"
	"github.com/sweeney/tide-display/internal/web"
)

func main() {
	var cfg config
	flag.DurationVar(&cfg.poll, "poll", 2*time.Millisecond, "Control loop period")
	flag.DurationVar(&cfg.debounce, "debounce", logic.DefaultSettle, "Power-present settle window")
	flag.StringVar(&cfg.face, "face", "linear", "Clock face: linear or nonlinear")
	flag.StringVar(&cfg.motor, "motor", string(logic.VariantTick), "Clock movement: tick or sweep")
	flag.StringVar(&cfg.station, "station", noaa.DefaultStation, "NOAA CO-OPS station id")
	flag.StringVar(&cfg.noaaURL, "noaa-url", noaa.DefaultBaseURL, "NOAA CO-OPS data API endpoint")
	flag.Float64Var(&cfg.minLevel, "min-level", level.DefaultMinLevel, "Lowest displayable level (ft MLLW)")
	flag.Float64Var(&cfg.maxLevel, "max-level", level.DefaultMaxLevel, "Highest displayable level (ft MLLW)")
	flag.StringVar(&cfg.levelSrc, "level-source", string(tides.LevelPredicted), "Level source: predicted or observed")
	flag.DurationVar(&cfg.levelEvery, "level-every", 6*time.Minute, "How often to refresh the displayed level")
	flag.DurationVar(&cfg.fetchEvery, "fetch-every", logic.DefaultFetchInterval, "Minimum time between tide fetch attempts")
	flag.StringVar(&cfg.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.DurationVar(&cfg.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&cfg.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.StringVar(&cfg.dbPath, "db", "tide-display.db", "Prediction cache (empty to disable)")
	flag.StringVar(&cfg.chip, "chip", gpio.DefaultChip, "GPIO chip")
	flag.IntVar(&cfg.pins.tick, "pin-tick", gpio.DefaultPinTick, "Lavet tick coil line")
	flag.IntVar(&cfg.pins.tock, "pin-tock", gpio.DefaultPinTock, "Lavet tock coil line")
	flag.IntVar(&cfg.pins.a, "pin-a", gpio.DefaultPinA, "Stepper IN1 line")
	flag.IntVar(&cfg.pins.b, "pin-b", gpio.DefaultPinB, "Stepper IN2 line")
	flag.IntVar(&cfg.pins.c, "pin-c", gpio.DefaultPinC, "Stepper IN3 line")
	flag.IntVar(&cfg.pins.d, "pin-d", gpio.DefaultPinD, "Stepper IN4 line")
	flag.IntVar(&cfg.pins.limit, "pin-limit", gpio.DefaultPinLimit, "Limit sensor line (active low)")
	flag.IntVar(&cfg.pins.power, "pin-power", gpio.DefaultPinPower, "Power-present line")
	flag.BoolVar(&cfg.printState, "print-state", false, "Print sensor state and exit")

	flag.Parse()

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// hardware holds the opened GPIO lines.
type hardware struct {
	tick, tock   *gpio.RealOutput
	coils        [4]gpio.Output
	limit, power *gpio.RealInput
	closers      []interface{ Close() error }
}

func (h *hardware) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		h.closers[i].Close()
	}
}

func openHardware(cfg config) (*hardware, error) {
	h := &hardware{}
	output := func(offset int) (*gpio.RealOutput, error) {
		o, err := gpio.NewRealOutput(cfg.chip, offset)
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, o)
		return o, nil
	}

	var err error
	if h.tick, err = output(cfg.pins.tick); err != nil {
		h.Close()
		return nil, err
	}
	if h.tock, err = output(cfg.pins.tock); err != nil {
		h.Close()
		return nil, err
	}
	for i, pin := range []int{cfg.pins.a, cfg.pins.b, cfg.pins.c, cfg.pins.d} {
		o, err := output(pin)
		if err != nil {
			h.Close()
			return nil, err
		}
		h.coils[i] = o
	}

	if h.limit, err = gpio.NewRealInput(cfg.chip, cfg.pins.limit, gpio.PullUp, true); err != nil {
		h.Close()
		return nil, err
	}
	h.closers = append(h.closers, h.limit)
	if h.power, err = gpio.NewRealInput(cfg.chip, cfg.pins.power, gpio.PullDown, false); err != nil {
		h.Close()
		return nil, err
	}
	h.closers = append(h.closers, h.power)
	return h, nil
}

func run(cfg config) error {
	set, err := cfg.validate()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	hw, err := openHardware(cfg)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer hw.Close()

	// Print state mode
	if cfg.printState {
		power, err := hw.power.Read()
		if err != nil {
			return fmt.Errorf("read power: %w", err)
		}
		limit, err := hw.limit.Read()
		if err != nil {
			return fmt.Errorf("read limit: %w", err)
		}
		fmt.Printf("power: %s, limit: %s\n", onOff(power, "ON", "OFF"), onOff(limit, "TRIPPED", "CLEAR"))
		return nil
	}

	start := time.Now()
	uptime := uptimeSince(start, time.Now)

	// Tide and level collaborators
	var cache tides.Cache
	if cfg.dbPath != "" {
		db, err := store.Open(cfg.dbPath)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer db.Close()
		if err := db.Prune(start.Add(-48 * time.Hour)); err != nil {
			log.Printf("store: %v", err)
		}
		cache = db
	}
	source := tides.NewSource(noaa.NewClientWithURL(cfg.noaaURL, cfg.station), cache, cfg.station, set.levelSrc, time.Now)

	// Tide clock
	actuator, err := lavet.New(hw.tick, hw.tock, set.motor.PulseDuration, time.Sleep)
	if err != nil {
		return fmt.Errorf("init lavet: %w", err)
	}
	pacer := logic.NewPacer(set.face, set.motor, source.NextTide, actuator, uptime, cfg.fetchEvery)

	// Water-level display
	display, err := level.New(set.levels, level.NewStepper(hw.coils), hw.limit, hw.power,
		logic.NewPowerMonitor(cfg.debounce), uptime, time.Sleep)
	if err != nil {
		return fmt.Errorf("init level display: %w", err)
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(start, status.Config{
		BootID:       uuid.NewString(),
		PollMs:       cfg.poll.Milliseconds(),
		DebounceMs:   cfg.debounce.Milliseconds(),
		HeartbeatMs:  cfg.heartbeat.Milliseconds(),
		Broker:       cfg.broker,
		HTTPAddr:     cfg.httpAddr,
		Station:      cfg.station,
		Face:         cfg.face,
		Motor:        cfg.motor,
		LevelSource:  cfg.levelSrc,
		LevelEveryMs: cfg.levelEvery.Milliseconds(),
	})

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(cfg.broker, mqtt.SystemEvent{
		Timestamp: start,
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
		Retained:  true,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()
	publisher.OnReconnect(func() {
		if err := publisher.PublishSystem(mqtt.SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			log.Printf("failed to publish reconnected event: %v", err)
		}
	})

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	commands := make(chan web.Command)
	var hub *web.Hub

	// Start HTTP status server
	if cfg.httpAddr != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		hub = web.NewHub()
		go hub.Run(ctx)

		srv := web.New(cfg.httpAddr, tracker, hub, commands)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.httpAddr)
	}

	log.Printf("started: poll=%v face=%s motor=%s station=%s levels=%s every %v broker=%s heartbeat=%v",
		cfg.poll, cfg.face, cfg.motor, cfg.station, cfg.levelSrc, cfg.levelEvery, cfg.broker, cfg.heartbeat)

	ticker := time.NewTicker(cfg.poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loopDeps{
		pacer:      pacer,
		display:    display,
		level:      source.CurrentLevel,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		hub:        hub,
		levelEvery: cfg.levelEvery,
		heartbeat:  cfg.heartbeat,
		now:        time.Now,
	}, ticker.C, sigCh, commands)
}

// uptimeSince returns a millisecond counter starting at zero at start.
// It wraps after ~49.7 days, which the state machines tolerate.
func uptimeSince(start time.Time, now func() time.Time) logic.Uptime {
	return func() logic.Millis {
		return logic.Millis(now().Sub(start) / time.Millisecond)
	}
}

func onOff(v bool, on, off string) string {
	if v {
		return on
	}
	return off
}

// broadcastEvery bounds how often idle status is pushed to websocket clients.
const broadcastEvery = time.Second

// loopDeps is everything runLoop drives or reports to.
type loopDeps struct {
	pacer      *logic.Pacer
	display    *level.Display
	level      logic.LevelFunc
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	hub        *web.Hub // nil when HTTP is disabled
	levelEvery time.Duration
	heartbeat  time.Duration
	now        func() time.Time
}

// loopState is owned by runLoop.
type loopState struct {
	mode          status.Mode
	wasReady      bool
	fetchDue      bool
	lastFetch     time.Time
	lastHeartbeat time.Time
	lastBroadcast time.Time
}

func runLoop(d loopDeps, tick <-chan time.Time, sig <-chan os.Signal, commands <-chan web.Command) error {
	st := loopState{
		mode:          status.ModeRun,
		lastHeartbeat: d.now(),
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.refresh()
			event := mqtt.SystemEvent{
				Timestamp:  d.now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(d.tracker.Snapshot(), "SHUTDOWN", signalName),
			}
			if err := d.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case cmd := <-commands:
			t := d.now()
			events, err := d.apply(cmd, &st)
			cmd.Reply <- err
			d.emit(events, t)
			d.refresh()
			d.broadcast(&st, t, true)

		case <-tick:
			t := d.now()
			events := d.pacer.Advance(t)

			levelEvents, err := d.display.Run()
			if err != nil {
				log.Printf("level: %v", err)
			}
			events = append(events, levelEvents...)

			ready := d.display.Ready()
			if ready && !st.wasReady {
				st.fetchDue = true
			}
			st.wasReady = ready

			if ready && st.mode == status.ModeRun && (st.fetchDue || t.Sub(st.lastFetch) >= d.levelEvery) {
				st.fetchDue = false
				st.lastFetch = t
				events = append(events, d.fetchLevel(t)...)
			}

			d.emit(events, t)
			d.refresh()

			if d.heartbeat > 0 && t.Sub(st.lastHeartbeat) >= d.heartbeat {
				st.lastHeartbeat = t
				d.sendHeartbeat(t)
			}

			d.broadcast(&st, t, len(events) > 0)
		}
	}
}

// apply carries out an operator command inside the loop.
func (d loopDeps) apply(cmd web.Command, st *loopState) ([]logic.Event, error) {
	switch cmd.Kind {
	case web.CommandMode:
		if cmd.Mode != st.mode {
			log.Printf("mode: %s -> %s", st.mode, cmd.Mode)
		}
		st.mode = cmd.Mode
		d.tracker.SetMode(cmd.Mode)
		if cmd.Mode == status.ModeRun {
			st.fetchDue = true
		}
		return nil, nil

	case web.CommandLevel:
		if st.mode != status.ModeTest {
			return nil, web.ErrTestModeOnly
		}
		return d.setLevel(cmd.Level)
	}
	return nil, fmt.Errorf("unknown command %d", cmd.Kind)
}

// fetchLevel asks the collaborator for the current level and shows it.
func (d loopDeps) fetchLevel(t time.Time) []logic.Event {
	lv, ok := d.level()
	d.tracker.SetLevelFetch(status.LevelFetch{At: t, Level: lv, OK: ok})
	if !ok {
		log.Printf("level: no level available")
		return nil
	}
	events, _ := d.setLevel(lv)
	return events
}

func (d loopDeps) setLevel(lv float64) ([]logic.Event, error) {
	if err := d.display.SetLevel(lv); err != nil {
		return []logic.Event{{Type: logic.EventLevelRejected, Level: lv, Reason: err.Error()}}, err
	}
	return []logic.Event{{Type: logic.EventLevelSet, Level: lv, Position: d.display.Position(lv)}}, nil
}

// emit stamps, logs, publishes and records events.
func (d loopDeps) emit(events []logic.Event, t time.Time) {
	if len(events) == 0 {
		return
	}
	logic.Stamp(events, t)
	for _, event := range events {
		logEvent(event)
		if err := d.publisher.Publish(event); err != nil {
			log.Printf("publish error: %v", err)
			// Don't crash on publish failure
		}
	}
	d.tracker.Record(events)
}

func logEvent(e logic.Event) {
	switch e.Type {
	case logic.EventTideAccepted:
		log.Printf("pacer: %s tide at %s, %d steps (missed cycle: %t)",
			e.Tide.Kind, e.Tide.Time.UTC().Format(time.RFC3339), e.StepsNeeded, e.MissedCycle)
	case logic.EventClockPaused:
		log.Printf("pacer: paused for %v", e.Wait)
	case logic.EventClockResumed:
		log.Printf("pacer: resumed")
	case logic.EventPowerOn, logic.EventPowerOff:
		log.Printf("level: %s", e.Type)
	case logic.EventHomed:
		log.Printf("level: homed at %d", e.Position)
	case logic.EventHomingFailed, logic.EventLevelRejected:
		log.Printf("level: %s: %s", e.Type, e.Reason)
	case logic.EventLevelSet:
		log.Printf("level: %.2f ft -> position %d", e.Level, e.Position)
	default:
		log.Printf("event: %s", e.Type)
	}
}

// refresh copies loop-owned state into the tracker.
func (d loopDeps) refresh() {
	d.tracker.Update(d.pacer.Snapshot(), d.display.Snapshot())
	if d.mqttStatus == nil {
		return
	}
	buffered := 0
	if b, ok := d.mqttStatus.(interface{ Buffered() int }); ok {
		buffered = b.Buffered()
	}
	d.tracker.SetMQTT(d.mqttStatus.IsConnected(), buffered)
}

func (d loopDeps) sendHeartbeat(t time.Time) {
	snap := d.tracker.Snapshot()
	log.Printf("heartbeat: uptime=%v clock=%s level=%.2f ready=%t",
		snap.Uptime().Truncate(time.Second), snap.Pacer.State, snap.Display.Level, snap.Display.Ready)

	hbEvent := mqtt.SystemEvent{
		Timestamp:  t,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := d.publisher.PublishSystem(hbEvent); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func (d loopDeps) broadcast(st *loopState, t time.Time, changed bool) {
	if d.hub == nil || d.hub.Clients() == 0 {
		return
	}
	if !changed && t.Sub(st.lastBroadcast) < broadcastEvery {
		return
	}
	st.lastBroadcast = t
	d.hub.Broadcast(status.FormatJSON(d.tracker.Snapshot()))
}
