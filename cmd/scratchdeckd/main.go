package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("scratchdeckd v%s\n", version)
	fmt.Println("Turntable-style touch gesture daemon for audio transport control")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  scratchdeckd [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that reads circular drag gestures from Linux touch devices and")
	fmt.Println("  drives an audio transport: clockwise rotation speeds playback up or")
	fmt.Println("  scrubs forward, counterclockwise rotation steps backward. Commands go")
	fmt.Println("  to a remote player over WebSocket or to an in-process audio pipeline.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -touch-device string")
	fmt.Printf("        Linux input event device for the touch panel (default \"/dev/input/event4\")\n")
	fmt.Println()
	fmt.Println("  -pivot-x float / -pivot-y float")
	fmt.Println("        Platter center in device coordinates (default 512, 512)")
	fmt.Println()
	fmt.Println("  -transport-mode string")
	fmt.Println("        Transport sink: ws|local (default \"ws\")")
	fmt.Println()
	fmt.Println("  -transport-ws-url string")
	fmt.Printf("        Player websocket URL (default \"ws://127.0.0.1:9900\")\n")
	fmt.Println()
	fmt.Println("  -transport-ws-timeout-ms int")
	fmt.Printf("        Timeout for websocket responses in ms (default %d)\n", defaultReadTimeoutMS)
	fmt.Println()
	fmt.Println("  -transport-file string")
	fmt.Println("        Media file for local mode (mp3)")
	fmt.Println()
	fmt.Println("  -update-hz int")
	fmt.Printf("        Update loop frequency in Hz (default %d)\n", defaultUpdateHz)
	fmt.Println()
	fmt.Println("  -deadzone-rad float")
	fmt.Printf("        Minimum per-sample angular delta in radians (default %.2f)\n", defaultDeadzoneRad)
	fmt.Println()
	fmt.Println("  -max-rate float")
	fmt.Printf("        Playback rate multiplier clamp (default %.1f)\n", defaultMaxRate)
	fmt.Println()
	fmt.Println("  -rate-gain-per-rad float")
	fmt.Printf("        Rate gained per radian of clockwise rotation (default %.2f)\n", defaultRateGainPerRad)
	fmt.Println()
	fmt.Println("  -scrub-enabled bool")
	fmt.Println("        Enable the fast clockwise scrub profile (default true)")
	fmt.Println()
	fmt.Println("  -scrub-enter-rad-per-sec float")
	fmt.Printf("        Angular velocity to enter scrub in rad/s (default %.1f)\n", defaultScrubEnterRadPerS)
	fmt.Println()
	fmt.Println("  -scrub-exit-rad-per-sec float")
	fmt.Printf("        Angular velocity to arm scrub exit in rad/s (default %.1f)\n", defaultScrubExitRadPerS)
	fmt.Println()
	fmt.Println("  -scrub-exit-hold-ms int")
	fmt.Printf("        Continuous slow rotation needed to leave scrub in ms (default %d)\n", defaultScrubExitHoldMS)
	fmt.Println()
	fmt.Println("  -fwd-step-deg / -fwd-step-sec")
	fmt.Printf("        Forward scrub quantization (default %.0f deg -> %.0f s)\n", defaultFwdStepDeg, defaultFwdStepSec)
	fmt.Println()
	fmt.Println("  -back-step-deg / -back-step-sec")
	fmt.Printf("        Backward scrub quantization (default %.0f deg -> %.0f s)\n", defaultBackStepDeg, defaultBackStepSec)
	fmt.Println()
	fmt.Println("  -dir-switch-deg float")
	fmt.Printf("        Opposite rotation needed to release the direction lock (default %.0f deg)\n", defaultDirSwitchDeg)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default \"/tmp/scratchdeck.sock\")\n")
	fmt.Println()
	fmt.Println("  -state-ws-port int")
	fmt.Println("        State WebSocket listener port (default 3002)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start daemon with default settings")
	fmt.Println("  scratchdeckd")
	fmt.Println()
	fmt.Println("  # Custom touch panel and platter center")
	fmt.Println("  scratchdeckd -touch-device /dev/input/event7 -pivot-x 960 -pivot-y 540")
	fmt.Println()
	fmt.Println("  # Local playback for development (no remote player needed)")
	fmt.Println("  scratchdeckd -transport-mode local -transport-file ~/music/track.mp3")
	fmt.Println()
	fmt.Println("  # Config file with flag overrides")
	fmt.Println("  scratchdeckd -config /etc/scratchdeck.yaml -log-level debug")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to input devices (run as root or add user to 'input' group)")
	fmt.Println("  - While the player reports no loaded media, gestures still track but no")
	fmt.Println("    transport commands are issued")
	fmt.Println()
}

func main() {
	// Check for version/help flags early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	// Parse command-line flags. Every flag is an override on top of the
	// config file; flag.Visit tells us which were actually set.
	var (
		configPath = flag.String("config", "", "Path to YAML config file")

		touchDevice = flag.String("touch-device", "/dev/input/event4", "Linux input event device for the touch panel")
		pivotX      = flag.Float64("pivot-x", 512, "Platter center X in device coordinates")
		pivotY      = flag.Float64("pivot-y", 512, "Platter center Y in device coordinates")

		transportMode      = flag.String("transport-mode", "ws", "Transport sink: ws|local")
		transportWsURL     = flag.String("transport-ws-url", "ws://127.0.0.1:9900", "Player websocket URL")
		transportWsTimeout = flag.Int("transport-ws-timeout-ms", defaultReadTimeoutMS, "Timeout in milliseconds for reading websocket responses")
		transportFile      = flag.String("transport-file", "", "Media file for local mode (mp3)")
		updateHz           = flag.Int("update-hz", defaultUpdateHz, "Update loop frequency in Hz")

		deadzoneRad    = flag.Float64("deadzone-rad", defaultDeadzoneRad, "Minimum per-sample angular delta in radians")
		maxRate        = flag.Float64("max-rate", defaultMaxRate, "Playback rate multiplier clamp")
		rateGainPerRad = flag.Float64("rate-gain-per-rad", defaultRateGainPerRad, "Rate gained per radian of clockwise rotation")

		scrubEnabled      = flag.Bool("scrub-enabled", true, "Enable the fast clockwise scrub profile")
		scrubEnterRadPerS = flag.Float64("scrub-enter-rad-per-sec", defaultScrubEnterRadPerS, "Angular velocity to enter scrub in rad/s")
		scrubExitRadPerS  = flag.Float64("scrub-exit-rad-per-sec", defaultScrubExitRadPerS, "Angular velocity to arm scrub exit in rad/s")
		scrubExitHoldMS   = flag.Int("scrub-exit-hold-ms", defaultScrubExitHoldMS, "Continuous slow rotation needed to leave scrub in ms")

		fwdStepDeg  = flag.Float64("fwd-step-deg", defaultFwdStepDeg, "Forward scrub step size in degrees")
		fwdStepSec  = flag.Float64("fwd-step-sec", defaultFwdStepSec, "Forward scrub step size in seconds")
		backStepDeg = flag.Float64("back-step-deg", defaultBackStepDeg, "Backward scrub step size in degrees")
		backStepSec = flag.Float64("back-step-sec", defaultBackStepSec, "Backward scrub step size in seconds")

		dirSwitchDeg = flag.Float64("dir-switch-deg", defaultDirSwitchDeg, "Opposite rotation needed to release the direction lock in degrees")

		ipcSocketPath = flag.String("ipc-socket", "/tmp/scratchdeck.sock", "Unix domain socket path for IPC")
		stateWsPort   = flag.Int("state-ws-port", 3002, "State WebSocket listener port")
		logLevelStr   = flag.String("log-level", "info", "Log level: error, warn, info, debug")

		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Load config file (if given), then apply only the flags the user set.
	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}

	overrides := FlagOverrides{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "touch-device":
			overrides.TouchDevice = touchDevice
		case "pivot-x":
			overrides.PivotX = pivotX
		case "pivot-y":
			overrides.PivotY = pivotY
		case "transport-mode":
			overrides.TransportMode = transportMode
		case "transport-ws-url":
			overrides.TransportWsURL = transportWsURL
		case "transport-ws-timeout-ms":
			overrides.TransportTimeoutMS = transportWsTimeout
		case "transport-file":
			overrides.TransportFile = transportFile
		case "update-hz":
			overrides.UpdateHz = updateHz
		case "deadzone-rad":
			overrides.DeadzoneRad = deadzoneRad
		case "max-rate":
			overrides.MaxRate = maxRate
		case "rate-gain-per-rad":
			overrides.RateGainPerRad = rateGainPerRad
		case "scrub-enabled":
			overrides.ScrubEnabled = scrubEnabled
		case "scrub-enter-rad-per-sec":
			overrides.ScrubEnterRadPerS = scrubEnterRadPerS
		case "scrub-exit-rad-per-sec":
			overrides.ScrubExitRadPerS = scrubExitRadPerS
		case "scrub-exit-hold-ms":
			overrides.ScrubExitHoldMS = scrubExitHoldMS
		case "fwd-step-deg":
			overrides.FwdStepDeg = fwdStepDeg
		case "fwd-step-sec":
			overrides.FwdStepSec = fwdStepSec
		case "back-step-deg":
			overrides.BackStepDeg = backStepDeg
		case "back-step-sec":
			overrides.BackStepSec = backStepSec
		case "dir-switch-deg":
			overrides.DirSwitchDeg = dirSwitchDeg
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocketPath
		case "state-ws-port":
			overrides.StateWSPort = stateWsPort
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logger := setupLogger(logLevel)

	// Open touch devices
	var deviceFiles []*os.File
	for _, dev := range cfg.Touch.Devices {
		f, err := os.Open(dev)
		if err != nil {
			logger.Error("failed to open input device", "device", dev, "error", err, "tip", "run as root or add user to 'input' group")
			os.Exit(1)
		}
		defer f.Close()
		deviceFiles = append(deviceFiles, f)
	}

	// Initialize transport sink
	var sink TransportSink
	switch cfg.Transport.Mode {
	case "ws":
		client, err := NewPlayerWSClient(cfg.Transport.WsURL, logger, cfg.Transport.TimeoutMS)
		if err != nil {
			logger.Error("failed to connect to player", "error", err)
			os.Exit(1)
		}
		sink = client
	case "local":
		local, err := NewLocalSink(cfg.Transport.File, logger)
		if err != nil {
			logger.Error("failed to initialize local playback", "error", err)
			os.Exit(1)
		}
		sink = local
	}
	defer sink.Close()

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	// Initial deck state: pivot comes from config, rate starts neutral.
	state := &DeckState{
		Session: DragSession{Rate: 1.0},
		Pivot:   PivotState{X: cfg.Touch.PivotX, Y: cfg.Touch.PivotY, Known: true},
	}

	// Central event bus
	events := make(chan Event, 64)

	// State broadcast fan-out: reducer -> broadcaster -> WS hub
	broadcasts := make(chan StateBroadcast, 128)

	wsServer := NewServer(logger, events, ServerConfig{})
	go wsServer.Hub().Run(ctx)
	go RunBroadcaster(ctx, wsServer.Hub(), broadcasts, logger)

	mux := http.NewServeMux()
	wsServer.Register(mux, "/state")
	go func() {
		addr := fmt.Sprintf(":%d", cfg.StateWS.Port)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("state ws server error", "error", err)
		}
	}()

	// Start daemon brain
	go runDaemon(ctx, events, sink, cfg.ToGestureConfig(), state, cfg.Transport.UpdateHz, broadcasts, logger)

	// Start IPC server
	go func() {
		if err := runIPCServer(ctx, cfg.IPC.SocketPath, events, logger); err != nil {
			logger.Error("IPC server error", "error", err)
		}
	}()

	// Read loop for touch events. A single panel gets the plain blocking
	// reader; multiple panels share one epoll goroutine. Local mode may run
	// without touch hardware (IPC-driven only).
	rawEvents := make(chan inputEvent, 256)
	readErr := make(chan error, 1)
	switch {
	case len(deviceFiles) == 1:
		go readInputEvents(deviceFiles[0], rawEvents, readErr)
	case len(deviceFiles) > 1:
		go readInputEventsEpoll(deviceFiles, rawEvents, readErr)
	}

	logger.Debug("starting scratchdeckd", "version", version)
	logger.Debug("configuration",
		"touch_devices", cfg.Touch.Devices,
		"pivot_x", cfg.Touch.PivotX,
		"pivot_y", cfg.Touch.PivotY,
		"transport_mode", cfg.Transport.Mode,
		"transport_ws_url", cfg.Transport.WsURL,
		"transport_ws_timeout_ms", cfg.Transport.TimeoutMS,
		"update_hz", cfg.Transport.UpdateHz,
		"deadzone_rad", cfg.Gesture.DeadzoneRad,
		"max_rate", cfg.Gesture.MaxRate,
		"rate_gain_per_rad", cfg.Gesture.RateGainPerRad,
		"scrub_enabled", cfg.Gesture.Scrub.Enabled,
		"scrub_enter_rad_per_sec", cfg.Gesture.Scrub.EnterRadPerS,
		"scrub_exit_rad_per_sec", cfg.Gesture.Scrub.ExitRadPerS,
		"scrub_exit_hold_ms", cfg.Gesture.Scrub.ExitHoldMS,
		"fwd_step_deg", cfg.Gesture.FwdStepDeg,
		"fwd_step_sec", cfg.Gesture.FwdStepSec,
		"back_step_deg", cfg.Gesture.BackStepDeg,
		"back_step_sec", cfg.Gesture.BackStepSec,
		"dir_switch_deg", cfg.Gesture.DirSwitchDeg,
		"ipc_socket", cfg.IPC.SocketPath,
		"state_ws_port", cfg.StateWS.Port)
	logger.Info("listening",
		"touch_devices", cfg.Touch.Devices,
		"ipc", cfg.IPC.SocketPath,
		"transport", cfg.Transport.Mode,
		"state_ws_port", cfg.StateWS.Port,
		"update_rate_hz", cfg.Transport.UpdateHz)

	// ========================================================================
	// Main Event Loop - Input Coordination Only
	// ========================================================================
	// This loop only handles:
	//   - Shutdown signals
	//   - Input errors
	//   - Translating raw touch frames into gesture actions
	//
	// The daemon brain (runDaemon) handles all state updates and the sink.
	// ========================================================================

	var tracker touchTracker

	for {
		select {
		case <-sigc:
			logger.Info("shutting down")
			cancel()
			// Give goroutines a beat to release the socket and connections.
			time.Sleep(100 * time.Millisecond)
			return

		case err := <-readErr:
			logger.Error("input reader stopped", "error", err)
			cancel()
			return

		case ev := <-rawEvents:
			for _, action := range tracker.Update(ev) {
				select {
				case events <- action:
				default:
					logger.Warn("event queue full, dropping gesture action")
				}
			}
		}
	}
}
