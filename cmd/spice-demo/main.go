// Command spice-demo connects to a SPICE server, logs the handful of
// display/cursor events it receives, and exits on SIGINT/SIGTERM.
// It exists to exercise the purespice engine end-to-end, not as a real
// viewer (spec.md §6's Non-goal: no rendering surface).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zbum/purespice-go/internal/config"
	"github.com/zbum/purespice-go/internal/logging"
	"github.com/zbum/purespice-go/internal/spiceapi"
	purespice "github.com/zbum/purespice-go"
)

func main() {
	confFile := "./conf/spice-demo.conf"
	if f := os.Getenv("SPICE_DEMO_CONF"); f != "" {
		confFile = f
	}
	cfg, err := config.Load(confFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error, using defaults: %v\n", err)
		cfg, _ = config.Load("")
	}

	log := logging.Current()
	log.Infof("spice-demo starting, host=%s port=%d", cfg.GetString("host", "localhost"), cfg.GetInt("port", 5900))

	ready := make(chan struct{}, 1)
	var demoCfg purespice.Config
	demoCfg.Host = cfg.GetString("host", "localhost")
	demoCfg.Port = cfg.GetInt("port", 5900)
	demoCfg.Password = cfg.GetString("password", "")
	demoCfg.Ready = func() { ready <- struct{}{} }

	demoCfg.Display.Enable = cfg.GetBool("display", true)
	demoCfg.Display.AutoConnect = cfg.GetBool("display", true)
	demoCfg.Display.SurfaceCreate = func(surfaceID uint32, format spiceapi.SurfaceFormat, width, height uint32) {
		log.Infof("surface %d created: %dx%d format=%v", surfaceID, width, height, format)
	}
	demoCfg.Display.SurfaceDestroy = func(surfaceID uint32) {
		log.Infof("surface %d destroyed", surfaceID)
	}
	demoCfg.Display.DrawFill = func(surfaceID uint32, x, y, w, h int32, color uint32) {
		log.Debugf("surface %d fill (%d,%d %dx%d) color=%#x", surfaceID, x, y, w, h, color)
	}
	demoCfg.Display.DrawBitmap = func(surfaceID uint32, rgba []byte, topDown bool, x, y int32, width, height, stride uint32) {
		log.Debugf("surface %d bitmap (%d,%d %dx%d)", surfaceID, x, y, width, height)
	}

	demoCfg.Cursor.Enable = cfg.GetBool("cursor", true)
	demoCfg.Cursor.AutoConnect = cfg.GetBool("cursor", true)
	demoCfg.Cursor.SetVisible = func(visible bool) {
		log.Debugf("cursor visible=%v", visible)
	}
	demoCfg.Cursor.Move = func(x, y int32) {
		log.Debugf("cursor move (%d,%d)", x, y)
	}

	sess, err := purespice.Connect(demoCfg)
	if err != nil {
		log.Errorf("connect: %v", err)
		os.Exit(1)
	}
	defer sess.Disconnect()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-ready:
			log.Infof("session ready")
		case <-time.After(10 * time.Second):
			log.Warnf("session not ready after 10s")
		}
	}()

	for {
		select {
		case <-sigCh:
			log.Infof("shutting down")
			return
		default:
		}
		status, err := sess.Process(500 * time.Millisecond)
		if err != nil {
			log.Errorf("process: %v", err)
			return
		}
		if status == spiceapi.StatusShutdown {
			log.Infof("session shut down by server")
			return
		}
	}
}
