package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/config"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/server"
	"github.com/ayusman/drishti/internal/tray"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the kiosk and its web dashboard",
	Long: `Start the kiosk pipeline and the HTTP server.
The kiosk idles until the camera sees motion, then runs one verification
session, records the result and notifies hooks. The dashboard and JSON API
are served on --addr.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Address to listen on (overrides config)")
	serveCmd.Flags().Bool("tray", false, "Show a system tray menu")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.L()
	defer log.Sync()

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	useTray, _ := cmd.Flags().GetBool("tray")

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	det, err := detector.NewServiceDetector(serviceConfig(cfg.Detector))
	if err != nil {
		return fmt.Errorf("face detector: %w", err)
	}
	ext, err := detector.NewServiceExtractor(serviceConfig(cfg.Extractor.ServiceConfig), cfg.Extractor.Dims)
	if err != nil {
		det.Close()
		return fmt.Errorf("embedding extractor: %w", err)
	}

	cam := capture.NewWebcam(capture.Config{
		DeviceID: cfg.Camera.DeviceID,
		FPS:      cfg.Camera.FPS,
		Width:    cfg.Camera.Width,
		Height:   cfg.Camera.Height,
	})

	kiosk, err := app.New(app.Config{
		Store:           st,
		Camera:          cam,
		Detector:        det,
		Extractor:       ext,
		Session:         sessionConfig(cfg),
		MotionThreshold: cfg.Motion.Threshold,
		IdleFPS:         cfg.Motion.IdleFPS,
		Cooldown:        cfg.Session.Cooldown,
		HookDir:         cfg.Hooks.Dir,
		HookTimeoutMs:   cfg.Hooks.TimeoutMs,
	})
	if err != nil {
		det.Close()
		ext.Close()
		return err
	}
	log.Info("gallery loaded", zap.Int("students", kiosk.Gallery().Len()))

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		log.Info("serving static files", zap.String("dir", staticDir))
	}
	srv := server.New(server.Config{StaticDir: staticDir, Store: st, Kiosk: kiosk})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return kiosk.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Server.Addr) })

	if useTray {
		runTray(gctx, stop, kiosk, dashboardURL(cfg.Server.Addr))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// runTray blocks on the tray's event loop until ctx ends or Quit is chosen.
func runTray(ctx context.Context, stop context.CancelFunc, kiosk *app.App, url string) {
	t := tray.New()
	t.SetEnabled(kiosk.IsEnabled())
	if last, ok := kiosk.LastResult(); ok {
		t.SetLastResult(last)
	}
	t.OnToggle(kiosk.SetEnabled)
	t.OnDashboard(func() { openBrowser(url) })
	t.OnQuit(stop)

	unsubscribe := kiosk.Subscribe(func(e app.Event) {
		switch {
		case e.Type == app.EventResult && e.Result != nil:
			t.SetLastResult(*e.Result)
		case e.Type == app.EventState && e.State != nil:
			t.SetEnabled(e.State.Enabled)
		}
	})
	defer unsubscribe()

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		logging.L().Warn("open browser", zap.String("url", url), zap.Error(err))
	}
}

// findWebDir searches for the dashboard's web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.drishti/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	webDir := filepath.Join(config.DataDir(), "web")
	if info, err := os.Stat(webDir); err == nil && info.IsDir() {
		return webDir
	}
	return ""
}
