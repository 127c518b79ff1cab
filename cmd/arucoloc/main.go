package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayusman/arucoloc/internal/app"
	"github.com/ayusman/arucoloc/internal/config"
	"github.com/ayusman/arucoloc/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "configuration file (default ~/arucoloc/config/configuration.yaml)")
	headless := flag.Bool("headless", false, "run without the operator window")
	httpAddr := flag.String("http", "", "status server address, overrides http.addr")
	device := flag.String("device", "", "camera device index or URL, overrides camera.device")
	withTray := flag.Bool("tray", false, "show a system tray icon")
	flag.Parse()

	fmt.Println("arucoloc - ArUco marker localisation")

	path := *configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		path = p
		created, err := config.EnsureDefault(path)
		if err != nil {
			log.Fatalf("Failed to write default configuration: %v", err)
		}
		if created {
			log.Printf("Wrote default configuration to %s", path)
		}
	}

	settings, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *httpAddr != "" {
		settings.HTTP.Addr = *httpAddr
	}
	if *device != "" {
		settings.Camera.Device = *device
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Options{
		Settings: settings,
		Headless: *headless || settings.Defaults.Headless,
	})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	log.Printf("Run %s", a.RunID())

	if *withTray {
		t := tray.New()
		t.OnQuit(stop)
		go t.Watch(ctx, a.Machine(), 500*time.Millisecond)
		go t.Run()
		defer t.Quit()
	}

	s, runErr := a.Run(ctx)
	if err := a.Close(); err != nil {
		log.Printf("warning: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Localisation failed: %v", runErr)
	}

	if err := a.RunHook(context.Background(), s); err != nil {
		log.Fatalf("Shutdown hook failed: %v", err)
	}
}
