package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shaunagostinho/coolmuscle-steer/internal/coolmuscle"
	"github.com/shaunagostinho/coolmuscle-steer/internal/server"
	"github.com/shaunagostinho/coolmuscle-steer/web"
)

func main() {
	configPath := flag.String("config", "/etc/steerd/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run against a simulated actuator")
	listenAddr := flag.String("listen", "", "Override monitor listen address (e.g. :8080)")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] steerd starting")

	cfg := server.LoadConfig(*configPath)
	if *demo {
		cfg.Actuator.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Monitor.ListenAddr = *listenAddr
	}

	ctlCfg, err := cfg.ControllerConfig()
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	if cfg.Actuator.Type == "demo" {
		sim := coolmuscle.NewSimulator()
		ctlCfg.Dial = sim.Dial
		log.Println("[main] using simulated actuator")
	}
	ctl, err := coolmuscle.New(ctlCfg)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	// Every caller of ctl holds mu; the controller itself is not
	// goroutine-safe.
	var mu sync.Mutex

	if !connectWithRetry(ctx, "actuator", ctl, cfg.Startup.ConnectTries) {
		return
	}
	defer shutdown(ctl, &mu)

	if err := startup(ctl, cfg.Startup.CenterOnStart); err != nil {
		log.Printf("[main] startup failed: %v", err)
		return
	}

	if !cfg.Monitor.Enabled {
		<-ctx.Done()
		return
	}
	srv := server.New(cfg, ctl, &mu, web.FS)
	go toggleTraceOnHangup(ctx, srv)
	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] monitor exited: %v", err)
	}
}

// toggleTraceOnHangup flips CSV tracing on every SIGHUP until ctx ends.
func toggleTraceOnHangup(ctx context.Context, srv *server.Server) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if _, err := srv.ToggleTrace(); err != nil {
				log.Printf("[main] %v", err)
			}
		}
	}
}

// startup homes the actuator, enables the servo and optionally centers it.
func startup(ctl *coolmuscle.Controller, center bool) error {
	if err := ctl.Init(); err != nil {
		return err
	}
	if err := ctl.On(); err != nil {
		return err
	}
	if center {
		if err := ctl.Set(0); err != nil {
			return err
		}
	}
	log.Printf("[main] actuator ready on %s", ctl.PortPath())
	return nil
}

func shutdown(ctl *coolmuscle.Controller, mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()
	if ctl.State() == coolmuscle.Enabled {
		if err := ctl.Off(); err != nil {
			log.Printf("[main] servo off failed: %v", err)
		}
	}
	if err := ctl.Close(); err != nil {
		log.Printf("[main] close failed: %v", err)
	}
}

// connectable is the part of the controller needed to open its port.
type connectable interface {
	Connect() error
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, retries up to maxAttempts
// then continues at max interval indefinitely. Returns false if ctx ends
// first.
func connectWithRetry(ctx context.Context, name string, c connectable, maxAttempts int) bool {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if err := c.Connect(); err != nil {
			attempt++
			if attempt <= maxAttempts {
				log.Printf("[%s] connect attempt %d/%d failed: %v (retry in %v)",
					name, attempt, maxAttempts, err, delay)
			} else {
				log.Printf("[%s] connect attempt %d failed: %v (retry in %v)",
					name, attempt, err, delay)
			}

			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}

			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		} else {
			log.Printf("[%s] connected successfully (attempt %d)", name, attempt+1)
			return true
		}
	}
}
