package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shinow/qrscan/apiclient"
	"github.com/shinow/qrscan/internal/configpaths"
)

// ClientOptions are shared by every command that talks to a running server.
type ClientOptions struct {
	Addr     string        `help:"API server address" default:"localhost:3243" env:"QRSCAN_ADDR"`
	Password string        `help:"API password (defaults to the local key file when present)" env:"QRSCAN_PASSWORD"`
	Timeout  time.Duration `help:"Reply timeout for non-interactive requests" default:"5s" env:"QRSCAN_CLIENT_TIMEOUT"`
}

func (o ClientOptions) client(logger *slog.Logger) *apiclient.Client {
	pwd := o.Password
	if pwd == "" {
		if p, err := configpaths.InConfigDir(keyFileName); err == nil {
			if data, err := os.ReadFile(p); err == nil {
				pwd = strings.TrimSpace(string(data))
				logger.Debug("using local key file", "path", p)
			}
		}
	}
	return apiclient.NewWithConfig(o.Addr, &apiclient.Config{
		DialTimeout:  3 * time.Second,
		ReadTimeout:  o.Timeout,
		WriteTimeout: 5 * time.Second,
		Password:     pwd,
	})
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type Ping struct {
	ClientOptions `embed:""`
}

func (p *Ping) Run(logger *slog.Logger) error {
	resp, err := p.client(logger).Ping()
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, resp)
}

type Generate struct {
	ClientOptions `embed:""`
	Code          string `arg:"" help:"Text to encode"`
	Output        string `short:"o" help:"Write the image to this file instead of printing the response"`
}

func (g *Generate) Run(logger *slog.Logger) error {
	resp, err := g.client(logger).Generate(g.Code)
	if err != nil {
		return err
	}
	if g.Output == "" {
		return printJSON(os.Stdout, resp)
	}
	if err := os.WriteFile(g.Output, resp.Image, 0o644); err != nil {
		return err
	}
	logger.Info("image written", "file", g.Output, "format", resp.Format, "width", resp.Width, "height", resp.Height)
	return nil
}

// Scan groups the scan subcommands.
type Scan struct {
	Bytes ScanBytes `cmd:"" help:"Upload a local image and scan it"`
	Path  ScanPath  `cmd:"" help:"Scan an image file on the server host"`
	Photo ScanPhoto `cmd:"" help:"Pick a photo on the server and scan it"`
	Live  ScanLive  `cmd:"" help:"Scan with the server's camera until a code is found"`
	Close ScanClose `cmd:"" help:"Close the running live scan"`
}

type ScanBytes struct {
	ClientOptions `embed:""`
	File          string `arg:"" help:"Image file to upload ('-' reads stdin)"`
}

func (s *ScanBytes) Run(logger *slog.Logger) error {
	var data []byte
	var err error
	if s.File == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(s.File)
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("image is empty")
	}
	resp, err := s.client(logger).ScanBytes(data)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, resp)
}

type ScanPath struct {
	ClientOptions `embed:""`
	Path          string `arg:"" help:"Path or file:// URI on the server host"`
}

func (s *ScanPath) Run(logger *slog.Logger) error {
	resp, err := s.client(logger).ScanPath(s.Path)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, resp)
}

type ScanPhoto struct {
	ClientOptions `embed:""`
}

func (s *ScanPhoto) Run(logger *slog.Logger) error {
	ctx, stop := interruptible()
	defer stop()
	resp, err := s.client(logger).ScanPhotoCtx(ctx)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, resp)
}

type ScanLive struct {
	ClientOptions `embed:""`
	Width         int           `help:"Preview width" default:"0"`
	Height        int           `help:"Preview height" default:"0"`
	Wait          time.Duration `help:"Give up after this long (0 waits until interrupted)" default:"0s"`
}

func (s *ScanLive) Run(logger *slog.Logger) error {
	ctx, stop := interruptible()
	defer stop()
	if s.Wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Wait)
		defer cancel()
	}
	resp, err := s.client(logger).ScanLiveCtx(ctx, s.Width, s.Height)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, resp)
}

type ScanClose struct {
	ClientOptions `embed:""`
}

func (s *ScanClose) Run(logger *slog.Logger) error {
	resp, err := s.client(logger).Close()
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, resp)
}

type Session struct {
	ClientOptions `embed:""`
}

func (s *Session) Run(logger *slog.Logger) error {
	resp, err := s.client(logger).Session()
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, resp)
}
