// Package permission keeps the host's answers to camera and photo library
// consent prompts.
//
// Decisions come from two places. A fixed policy in the configuration wins
// when set; otherwise the answer recorded in a YAML file is used, and a
// capability with no recorded answer is not determined yet. The file is read
// on every Status call so edits made while the server runs take effect on the
// next request.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/shinow/qrscan/scanner"
)

const PolicyPrompt = "prompt"

var ErrNoPrompter = errors.New("no consent prompt available")

// Config fixes decisions per capability. "prompt" defers to the recorded
// answer and asks when there is none.
type Config struct {
	File         string `help:"File recording answered consent prompts (defaults to permissions.yaml in the config dir)" env:"QRSCAN_PERMISSION_FILE"`
	Camera       string `help:"Camera access policy" enum:"prompt,granted,denied,restricted" default:"prompt" env:"QRSCAN_PERMISSION_CAMERA"`
	PhotoLibrary string `help:"Photo library access policy" enum:"prompt,granted,denied,restricted" default:"prompt" env:"QRSCAN_PERMISSION_PHOTO_LIBRARY"`
}

// Prompter asks the user for consent.
type Prompter interface {
	Ask(ctx context.Context, c scanner.Capability) (bool, error)
}

// Store implements scanner.Authority.
type Store struct {
	path     string
	cfg      Config
	prompter Prompter
	logger   *slog.Logger

	// serializes writers; readers tolerate a concurrent rename
	mu sync.Mutex
}

type record struct {
	Decisions map[string]string `yaml:"decisions"`
	Updated   time.Time         `yaml:"updated,omitempty"`
}

// NewStore returns a Store backed by path. prompter may be nil, in which
// case undetermined capabilities cannot be granted.
func NewStore(path string, cfg Config, prompter Prompter, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, cfg: cfg, prompter: prompter, logger: logger}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) policy(c scanner.Capability) string {
	switch c {
	case scanner.CapabilityCamera:
		return s.cfg.Camera
	case scanner.CapabilityPhotoLibrary:
		return s.cfg.PhotoLibrary
	}
	return ""
}

func (s *Store) load() (record, error) {
	rec := record{Decisions: map[string]string{}}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("read permissions: %w", err)
	}
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parse permissions %s: %w", s.path, err)
	}
	if rec.Decisions == nil {
		rec.Decisions = map[string]string{}
	}
	return rec, nil
}

func (s *Store) save(rec record) error {
	rec.Updated = time.Now().UTC()
	data, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create permissions dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write permissions: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Status reports the decision for c without prompting.
func (s *Store) Status(ctx context.Context, c scanner.Capability) (scanner.Decision, error) {
	if err := ctx.Err(); err != nil {
		return scanner.DecisionNotDetermined, err
	}
	if p := s.policy(c); p != "" && p != PolicyPrompt {
		return scanner.ParseDecision(p)
	}
	rec, err := s.load()
	if err != nil {
		return scanner.DecisionNotDetermined, err
	}
	return scanner.ParseDecision(rec.Decisions[c.String()])
}

// Request prompts for c and records the answer. A capability that is
// already decided is answered from that decision without prompting.
func (s *Store) Request(ctx context.Context, c scanner.Capability) (bool, error) {
	d, err := s.Status(ctx, c)
	if err != nil {
		return false, err
	}
	if d != scanner.DecisionNotDetermined {
		return d == scanner.DecisionGranted, nil
	}
	if s.prompter == nil {
		return false, ErrNoPrompter
	}
	granted, err := s.prompter.Ask(ctx, c)
	if err != nil {
		return false, err
	}
	answer := scanner.DecisionDenied
	if granted {
		answer = scanner.DecisionGranted
	}
	if err := s.Set(c, answer); err != nil {
		// the answer still applies to this request
		s.logger.Warn("failed to record permission", "capability", c, "error", err)
	}
	s.logger.Info("permission answered", "capability", c, "decision", answer)
	return granted, nil
}

// Set records d for c. NotDetermined clears the record.
func (s *Store) Set(c scanner.Capability, d scanner.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.load()
	if err != nil {
		return err
	}
	if d == scanner.DecisionNotDetermined {
		delete(rec.Decisions, c.String())
	} else {
		rec.Decisions[c.String()] = d.String()
	}
	return s.save(rec)
}

// Decisions returns the effective decision of every capability.
func (s *Store) Decisions(ctx context.Context) (map[scanner.Capability]scanner.Decision, error) {
	out := map[scanner.Capability]scanner.Decision{}
	for _, c := range []scanner.Capability{scanner.CapabilityCamera, scanner.CapabilityPhotoLibrary} {
		d, err := s.Status(ctx, c)
		if err != nil {
			return nil, err
		}
		out[c] = d
	}
	return out, nil
}
