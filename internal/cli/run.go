package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tickedf/internal/hw"
	"tickedf/internal/job"
	"tickedf/internal/sched"
	"tickedf/internal/telemetry"
)

func newRunCmd() *cobra.Command {
	var (
		flagFor time.Duration
		flagCSV string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo controller task set",
		Long: "Run registers the industrial-controller demo task set (control loop, sensor\n" +
			"acquisition, communication, monitoring, UI, watchdog service, diagnostics,\n" +
			"idle), arms the tick source, and serves telemetry until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := sched.Load(flagConfig)
			if flagCSV != "" {
				cfg.CSVPath = flagCSV
			}
			return runController(cmd.Context(), cfg, flagFor)
		},
	}

	cmd.Flags().DurationVar(&flagFor, "for", 0, "Stop after this duration (0 = run until interrupted)")
	cmd.Flags().StringVar(&flagCSV, "csv", "", "Write the scheduler event trace to this CSV file")

	return cmd
}

func runController(ctx context.Context, cfg sched.Config, runFor time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runFor)
		defer cancel()
	}

	tickPeriod := time.Duration(cfg.TickMicros) * time.Microsecond

	io := hw.NewIOState()
	wd := hw.NewSimWatchdog(time.Second)
	clock := sched.NewTickClock(256)
	reg := sched.NewRegistry(cfg.Capacity)

	s := sched.New(reg, clock, logger)
	estop := sched.NewEStopMonitor(s, io)
	supervisor := sched.NewWatchdogSupervisor(s, wd, sched.Ticks(cfg.StalenessFactor))

	if cfg.CSVPath != "" {
		if err := s.EnableCSVLogging(cfg.CSVPath); err != nil {
			return fmt.Errorf("open csv trace: %w", err)
		}
	}

	// The demo task set, periods and deadlines in ticks (100us tick by
	// default: the control loop runs at 1ms, diagnostics at 1s).
	safety := s.SafetyActive
	if _, err := reg.Register("control_loop", sched.PriorityCritical, 10, 9,
		job.ControlLoop(io, 512, safety), sched.Critical(), sched.Essential()); err != nil {
		return err
	}
	if _, err := reg.Register("sensor_acquisition", sched.PriorityHigh, 100, 80,
		job.SensorAcquisition(io, syntheticSensor()), sched.Critical()); err != nil {
		return err
	}
	if _, err := reg.Register("communication", sched.PriorityNormal, 500, 450,
		job.Communication(io, s), sched.Critical()); err != nil {
		return err
	}
	if _, err := reg.Register("system_monitor", sched.PriorityNormal, 1000, 900,
		job.SystemMonitor(io, s), sched.Critical()); err != nil {
		return err
	}
	uiID, err := reg.Register("user_interface", sched.PriorityLow, 2000, 1800,
		job.Heartbeat(io, 5, safety))
	if err != nil {
		return err
	}
	if _, err := reg.Register("watchdog_service", sched.PriorityHigh,
		sched.Ticks(cfg.WatchdogPeriod), sched.Ticks(cfg.WatchdogPeriod)*9/10,
		supervisor.Check, sched.Essential()); err != nil {
		return err
	}
	diagID, err := reg.Register("diagnostic", sched.PriorityLow, 10000, 9000,
		job.Diagnostic(s, logger))
	if err != nil {
		return err
	}

	shedder, err := sched.NewLoadShedder(s,
		uint8(cfg.ShedHighPct), uint8(cfg.ShedLowPct),
		sched.Ticks(cfg.ShedWindow), []sched.TaskID{uiID, diagID})
	if err != nil {
		return err
	}
	if _, err := reg.RegisterIdle("idle", shedder.Run); err != nil {
		return err
	}

	// Telemetry surface.
	api := telemetry.New(s, estop, cfg.EStopClearToken, cfg.TickMicros, logger)
	httpSrv := &http.Server{Addr: cfg.TelemetryAddr, Handler: api}
	go func() {
		logger.Info("telemetry listening", "addr", cfg.TelemetryAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("telemetry server", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("scheduler starting",
		"tick_us", cfg.TickMicros, "tasks", reg.Len(), "capacity", reg.Capacity())

	clock.Start(tickPeriod)
	defer clock.Stop()

	err = s.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	m := s.Metrics()
	logger.Info("scheduler stopped",
		"total_ticks", m.TotalTicks,
		"idle_ticks", m.IdleTicks,
		"cpu_utilization_pct", m.CPUUtilization,
		"max_response_ticks", m.MaxResponseTicks,
		"watchdog_services", wd.Services(),
		"dropped_events", m.DroppedEvents)
	return err
}

// syntheticSensor produces a slow triangle wave per channel so the demo
// control loop and filter have something plausible to chew on.
func syntheticSensor() func(ch int) uint16 {
	var n uint32
	return func(ch int) uint16 {
		n++
		phase := (n + uint32(ch)*64) % 512
		if phase > 256 {
			phase = 512 - phase
		}
		return uint16(384 + phase) // sweeps 384..640 around the 512 setpoint
	}
}
