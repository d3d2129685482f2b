// Package osreport fingerprints the local operating system and lists its
// installed packages for the OS-Report template items.
package osreport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/kidoz/zabbix-vuln-matrix/internal/push"
)

// ErrUnknownOS is returned when no probe recognises the system.
var ErrUnknownOS = errors.New("operating system not detected")

// ErrNoPackageManager is returned when the detected family has no package
// listing.
var ErrNoPackageManager = errors.New("package listing not supported for this OS")

// Report item arguments.
const (
	WhatOS       = "os"
	WhatVersion  = "version"
	WhatPackages = "package"
)

// Detection is one probe's verdict. Higher Weight wins.
type Detection struct {
	Family  string
	Version string
	Weight  int
}

// System is the local machine as the probes see it: a root filesystem and
// a command runner.
type System struct {
	FS     fs.FS
	Runner push.Runner
}

func (s System) readFile(name string) string {
	b, err := fs.ReadFile(s.FS, name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (s System) run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := s.Runner.Run(ctx, name, args...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Probe recognises one OS family.
type Probe interface {
	Detect(ctx context.Context, sys System) (Detection, bool)
	// Packages lists installed packages as "name version arch" lines.
	Packages(ctx context.Context, sys System) ([]string, error)
}

// Probes is the default chain, least specific first.
var Probes = []Probe{nixProbe{}, linuxProbe{}, debianProbe{}, rpmProbe{}}

// Reporter answers the OS-Report items.
type Reporter struct {
	sys    System
	probes []Probe
}

// NewReporter creates a reporter over sys using the default probes.
func NewReporter(sys System) *Reporter {
	return &Reporter{sys: sys, probes: Probes}
}

// Detect runs every probe and keeps the highest weight. Ties keep the
// earlier probe.
func (r *Reporter) Detect(ctx context.Context) (Detection, Probe, error) {
	var (
		best  Detection
		probe Probe
	)
	for _, p := range r.probes {
		d, ok := p.Detect(ctx, r.sys)
		if ok && d.Weight > best.Weight {
			best, probe = d, p
		}
	}
	if probe == nil {
		return Detection{}, nil, ErrUnknownOS
	}
	return best, probe, nil
}

// Report returns the value of one item: os, version or package.
func (r *Reporter) Report(ctx context.Context, what string) (string, error) {
	d, probe, err := r.Detect(ctx)
	if err != nil {
		return "", err
	}
	switch what {
	case WhatOS:
		return d.Family, nil
	case WhatVersion:
		return d.Version, nil
	case WhatPackages:
		pkgs, err := probe.Packages(ctx, r.sys)
		if err != nil {
			return "", err
		}
		return strings.Join(pkgs, "\n"), nil
	}
	return "", fmt.Errorf("unknown report %q, want os, version or package", what)
}

func nonEmptyLines(s string) []string {
	var out []string
	for line := range strings.Lines(s) {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
