package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aicubetechnology/qilbeeDB-sub001/internal/profiler"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/scheduler"
	"github.com/aicubetechnology/qilbeeDB-sub001/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with scheduled consolidation",
	Long: `Keep the engine open and run consolidation passes on the configured
schedule.

Each tick queues one pass per known agent onto a worker pool. Agents
already being consolidated are skipped, so a slow pass never stacks
up behind itself. The process runs until SIGINT or SIGTERM and shuts
down cleanly.

Examples:
  # Run with the configured schedule
  qilbeemem serve

  # Expose pprof while serving
  qilbeemem serve --pprof-addr :6060

  # Capture a CPU profile of a serving session
  qilbeemem serve --cpu-profile cpu.out`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	servePprofAddr  string
	serveCPUProfile string
	serveMemProfile string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePprofAddr, "pprof-addr", "", "address for the pprof HTTP server (e.g. :6060)")
	serveCmd.Flags().StringVar(&serveCPUProfile, "cpu-profile", "", "write a CPU profile to this file")
	serveCmd.Flags().StringVar(&serveMemProfile, "mem-profile", "", "write a heap profile to this file on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lg := newLogger(cfg)

	var prof *profiler.Profiler
	if servePprofAddr != "" || serveCPUProfile != "" || serveMemProfile != "" {
		prof, err = profiler.New(profiler.Config{
			CPUProfile: serveCPUProfile,
			MemProfile: serveMemProfile,
			HTTPAddr:   servePprofAddr,
		})
		if err != nil {
			return fmt.Errorf("starting profiler: %w", err)
		}
	}

	mem, err := openEngineWith(cfg)
	if err != nil {
		return err
	}
	defer mem.Close()

	var (
		pool  *worker.Pool
		sched *scheduler.Scheduler
	)
	if cfg.Consolidation.Auto {
		pool = worker.NewPool(worker.Config{
			Workers:   cfg.Consolidation.Workers,
			QueueSize: cfg.Consolidation.QueueSize,
		})
		pool.Start()

		sched, err = scheduler.New(scheduler.Options{
			Schedule: cfg.Consolidation.Schedule,
			Source:   mem,
			Pass:     mem.ScheduledConsolidate,
			Pool:     pool,
			Logger:   lg,
		})
		if err != nil {
			pool.Stop()
			return fmt.Errorf("starting scheduler: %w", err)
		}
		sched.Start()
	} else {
		lg.Warn("auto consolidation is disabled; serving storage only")
	}

	if !isQuiet() {
		fmt.Printf("qilbeemem serving (%d agents known)\n", len(mem.Agents()))
		if sched != nil {
			fmt.Printf("Next consolidation pass: %s\n", sched.Next().Format(dateTimeFormat))
		}
		if servePprofAddr != "" {
			fmt.Printf("pprof listening on %s\n", servePprofAddr)
		}
		fmt.Println("Press Ctrl+C to stop.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	lg.Info("shutting down")

	if sched != nil {
		sched.Stop()
	}
	if pool != nil {
		pool.Stop()
	}
	if prof != nil {
		if err := prof.Stop(); err != nil {
			lg.Warn("stopping profiler: %v", err)
		}
	}

	return nil
}
