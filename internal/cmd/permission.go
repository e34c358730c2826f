package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/shinow/qrscan/permission"
	"github.com/shinow/qrscan/scanner"
)

// Permission manages the recorded consent answers of the local server.
type Permission struct {
	List  PermissionList  `cmd:"" help:"Show the effective decision of every capability"`
	Set   PermissionSet   `cmd:"" help:"Record a decision"`
	Reset PermissionReset `cmd:"" help:"Forget a decision so the server asks again"`
}

type PermissionFile struct {
	File string `help:"Permission file (defaults to permissions.yaml in the config dir)" env:"QRSCAN_PERMISSION_FILE"`
}

func (p PermissionFile) store(logger *slog.Logger) (*permission.Store, error) {
	s := Server{Permission: permission.Config{File: p.File}}
	path, err := s.permissionPath()
	if err != nil {
		return nil, err
	}
	cfg := permission.Config{Camera: permission.PolicyPrompt, PhotoLibrary: permission.PolicyPrompt}
	return permission.NewStore(path, cfg, nil, logger), nil
}

func parseCapability(s string) (scanner.Capability, error) {
	switch s {
	case "camera":
		return scanner.CapabilityCamera, nil
	case "photo-library":
		return scanner.CapabilityPhotoLibrary, nil
	}
	return 0, fmt.Errorf("unknown capability %q", s)
}

type PermissionList struct {
	PermissionFile `embed:""`
}

func (c *PermissionList) Run(logger *slog.Logger) error {
	st, err := c.store(logger)
	if err != nil {
		return err
	}
	all, err := st.Decisions(context.Background())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CAPABILITY\tDECISION")
	for _, capability := range []scanner.Capability{scanner.CapabilityCamera, scanner.CapabilityPhotoLibrary} {
		fmt.Fprintf(w, "%s\t%s\n", capability, all[capability])
	}
	fmt.Fprintf(w, "\n(file: %s)\n", st.Path())
	return w.Flush()
}

type PermissionSet struct {
	PermissionFile `embed:""`
	Capability     string `arg:"" enum:"camera,photo-library" help:"Capability to set"`
	Decision       string `arg:"" enum:"granted,denied,restricted" help:"Decision to record"`
}

func (c *PermissionSet) Run(logger *slog.Logger) error {
	capability, err := parseCapability(c.Capability)
	if err != nil {
		return err
	}
	d, err := scanner.ParseDecision(c.Decision)
	if err != nil {
		return err
	}
	st, err := c.store(logger)
	if err != nil {
		return err
	}
	return st.Set(capability, d)
}

type PermissionReset struct {
	PermissionFile `embed:""`
	Capability     string `arg:"" enum:"camera,photo-library" help:"Capability to reset"`
}

func (c *PermissionReset) Run(logger *slog.Logger) error {
	capability, err := parseCapability(c.Capability)
	if err != nil {
		return err
	}
	st, err := c.store(logger)
	if err != nil {
		return err
	}
	return st.Set(capability, scanner.DecisionNotDetermined)
}
