package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shinow/qrscan/capture"
	"github.com/shinow/qrscan/detect"
	"github.com/shinow/qrscan/internal/configpaths"
	"github.com/shinow/qrscan/internal/log"
	"github.com/shinow/qrscan/internal/metrics"
	"github.com/shinow/qrscan/internal/server/api"
	"github.com/shinow/qrscan/internal/server/api/auth"
	"github.com/shinow/qrscan/internal/server/api/handler"
	"github.com/shinow/qrscan/internal/server/gateway"
	"github.com/shinow/qrscan/permission"
	"github.com/shinow/qrscan/qrgen"
	"github.com/shinow/qrscan/scanner"
	"github.com/shinow/qrscan/surface"
)

const (
	keyFileName        = "qrscan.key.txt"
	permissionFileName = "permissions.yaml"
)

// Version is stamped at build time.
var Version = "dev"

type Server struct {
	ApiServerConfig api.ServerConfig    `embed:"" prefix:"api."`
	HTTP            gateway.Config      `embed:"" prefix:"http."`
	Detect          detect.Options      `embed:"" prefix:"detect."`
	Generator       qrgen.Options       `embed:"" prefix:"generator."`
	Camera          capture.MediaConfig `embed:"" prefix:"camera."`
	Capture         capture.Options     `embed:"" prefix:"capture."`
	Surface         surface.Config      `embed:"" prefix:"surface."`
	Permission      permission.Config   `embed:"" prefix:"permission."`
	ReplayDir       string              `help:"Serve frames from this image directory instead of a camera" env:"QRSCAN_REPLAY_DIR"`
	KeyFile         string              `help:"API password file, generated on first start (defaults to the config dir)" env:"QRSCAN_KEY_FILE"`
	ShutdownTimeout time.Duration       `help:"Time allowed for open requests to finish on shutdown" default:"5s" env:"QRSCAN_SHUTDOWN_TIMEOUT"`
}

// Run is called by Kong when the server command is executed.
func (s *Server) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.StartServer(ctx, logger, rawLogger, os.Stdin, os.Stdout)
}

func (s *Server) loadPassword(logger *slog.Logger) error {
	keyFilePath := s.KeyFile
	if keyFilePath == "" {
		p, err := configpaths.InConfigDir(keyFileName)
		if err != nil {
			return fmt.Errorf("failed to resolve key file path: %w", err)
		}
		keyFilePath = p
	}
	pwd, created, err := auth.LoadOrCreatePassword(keyFilePath)
	if err != nil {
		return err
	}
	s.ApiServerConfig.Password = pwd
	s.HTTP.Password = pwd
	if created {
		logger.Info("Generated API server password", "path", keyFilePath)
		logger.Info("-------------------------------------")
		logger.Info("Your qrscan API server password is:")
		logger.Info("-------------------------------------")
		logger.Info(pwd)
		logger.Info("-------------------------------------")
		logger.Info("You can change this password at any time by editing the file")
	}
	return nil
}

func (s *Server) permissionPath() (string, error) {
	if s.Permission.File != "" {
		return s.Permission.File, nil
	}
	return configpaths.InConfigDir(permissionFileName)
}

// StartServer builds the scanner and serves the API until ctx ends. in and
// out back the terminal surface.
func (s *Server) StartServer(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger, in io.Reader, out io.Writer) error {
	if s.ApiServerConfig.Addr == "" {
		return fmt.Errorf("API server address must be set (default :3243)")
	}
	if err := s.loadPassword(logger); err != nil {
		return err
	}

	detector := detect.New(s.Detect)
	var camera scanner.Camera
	if s.ReplayDir != "" {
		logger.Info("Using replay camera", "dir", s.ReplayDir)
		camera = capture.NewReplay(s.ReplayDir, s.Capture, detector, logger.With("component", "capture"))
	} else {
		camera = capture.NewMedia(s.Camera, s.Capture, detector, logger.With("component", "capture"))
	}

	term := surface.NewTerminal(in, out, s.Surface, logger.With("component", "surface"))
	resolver, err := surface.NewResolver(s.Surface.Mode, term)
	if err != nil {
		return err
	}
	var prompter permission.Prompter
	if s.Surface.Mode != "none" {
		prompter = permission.LinePrompter{In: term, Out: out}
	}
	permPath, err := s.permissionPath()
	if err != nil {
		return fmt.Errorf("failed to resolve permission file path: %w", err)
	}
	authority := permission.NewStore(permPath, s.Permission, prompter, logger.With("component", "permission"))

	var feedback scanner.Feedback
	if s.Surface.Bell {
		feedback = surface.Bell{Out: out}
	}

	recorder := metrics.New()
	ctl := scanner.New(scanner.Options{
		Authority: authority,
		Camera:    camera,
		Surfaces:  resolver,
		Feedback:  feedback,
		Detector:  detector,
		Decoder:   detector.Decoder(),
		Generator: qrgen.New(s.Generator),
		Observer:  recorder,
		Logger:    logger.With("component", "scanner"),
	})
	defer ctl.Shutdown()

	apiSrv, err := api.New(s.ApiServerConfig, logger, rawLogger)
	if err != nil {
		return err
	}
	handler.Register(apiSrv.Router(), ctl, Version)

	if err := apiSrv.Start(); err != nil {
		logger.Error("failed to start API server", "error", err)
		return err
	}
	defer apiSrv.Close()

	var gw *gateway.Gateway
	if s.HTTP.Addr != "" {
		gw = gateway.New(s.HTTP, apiSrv.Router(), recorder.Registry(), logger)
		if err := gw.Start(); err != nil {
			logger.Error("failed to start HTTP gateway", "error", err)
			return err
		}
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	if gw != nil {
		sctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		if err := gw.Close(sctx); err != nil {
			logger.Warn("HTTP gateway shutdown", "error", err)
		}
	}
	return nil
}
