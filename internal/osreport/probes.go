package osreport

import (
	"context"
	"regexp"
	"slices"
	"strings"
)

// nixProbe falls back to uname.
type nixProbe struct{}

func (nixProbe) Detect(ctx context.Context, sys System) (Detection, bool) {
	family, err := sys.run(ctx, "uname", "-s")
	if err != nil || family == "" {
		return Detection{}, false
	}
	version, err := sys.run(ctx, "uname", "-r")
	if err != nil || version == "" {
		return Detection{}, false
	}
	return Detection{Family: family, Version: version, Weight: 10}, true
}

func (nixProbe) Packages(context.Context, System) ([]string, error) {
	return nil, ErrNoPackageManager
}

var (
	osReleaseID      = regexp.MustCompile(`(?m)^ID=(.*)$`)
	osReleaseVersion = regexp.MustCompile(`(?m)^VERSION_ID=(.*)$`)
)

// linuxProbe reads /etc/os-release.
type linuxProbe struct{ nixProbe }

func (linuxProbe) Detect(_ context.Context, sys System) (Detection, bool) {
	release := sys.readFile("etc/os-release")
	id := osReleaseID.FindStringSubmatch(release)
	ver := osReleaseVersion.FindStringSubmatch(release)
	if id == nil || ver == nil {
		return Detection{}, false
	}
	return Detection{
		Family:  strings.Trim(strings.ToLower(strings.TrimSpace(id[1])), `"`),
		Version: strings.Trim(strings.ToLower(strings.TrimSpace(ver[1])), `"`),
		Weight:  50,
	}, true
}

var debianCodenames = map[string]string{
	"forky":    "14",
	"trixie":   "13",
	"bookworm": "12",
	"bullseye": "11",
	"buster":   "10",
	"stretch":  "9",
	"jessie":   "8",
	"wheezy":   "7",
	"squeeze":  "6",
	"lenny":    "5",
	"etch":     "4",
	"sarge":    "3.1",
	"woody":    "3.0",
	"potato":   "2.2",
	"slink":    "2.1",
	"hamm":     "2.0",
}

var (
	debianFamilies    = []string{"debian", "ubuntu", "kali"}
	numericVersion    = regexp.MustCompile(`^[\d.]+$`)
	debianCodename    = regexp.MustCompile(`^(\w+)/\w+`)
	lsbDistribID      = regexp.MustCompile(`(?m)^DISTRIB_ID="?([^"\n]*)"?$`)
	lsbDistribRelease = regexp.MustCompile(`(?m)^DISTRIB_RELEASE="?([^"\n]*)"?$`)
)

// debianProbe recognises Debian and its derivatives.
type debianProbe struct{ linuxProbe }

func (p debianProbe) Detect(ctx context.Context, sys System) (Detection, bool) {
	if d, ok := p.linuxProbe.Detect(ctx, sys); ok && slices.Contains(debianFamilies, d.Family) {
		d.Weight = 60
		return d, true
	}

	if v := sys.readFile("etc/debian_version"); v != "" {
		if numericVersion.MatchString(v) {
			return Detection{Family: "debian", Version: v, Weight: 60}, true
		}
		if m := debianCodename.FindStringSubmatch(v); m != nil {
			if ver, ok := debianCodenames[strings.ToLower(m[1])]; ok {
				return Detection{Family: "debian", Version: ver, Weight: 60}, true
			}
		}
	}

	lsb := sys.readFile("etc/lsb-release")
	id := lsbDistribID.FindStringSubmatch(lsb)
	ver := lsbDistribRelease.FindStringSubmatch(lsb)
	if id != nil && ver != nil {
		return Detection{Family: strings.ToLower(id[1]), Version: strings.ToLower(ver[1]), Weight: 60}, true
	}
	return Detection{}, false
}

// Packages keeps installed and held packages only.
func (debianProbe) Packages(ctx context.Context, sys System) ([]string, error) {
	out, err := sys.run(ctx, "dpkg-query", "-W", "-f=${Status} ${Package} ${Version} ${Architecture}\n")
	if err != nil {
		return nil, err
	}
	var pkgs []string
	for _, line := range nonEmptyLines(out) {
		f := strings.Fields(line)
		if len(f) < 6 || (f[0] != "install" && f[0] != "hold") || f[1] != "ok" {
			continue
		}
		pkgs = append(pkgs, strings.Join(f[3:6], " "))
	}
	return pkgs, nil
}

var (
	rpmFamilies   = []string{"redhat", "centos", "oraclelinux", "suse", "fedora", "ol", "rhel", "opensuse", "sles"}
	centosRelease = regexp.MustCompile(`\s+\(?(\d+)\.`)
	redhatRelease = regexp.MustCompile(`\s+(\d+)\.`)
	suseRelease   = regexp.MustCompile(`VERSION = (\d+)`)
)

// rpmProbe recognises RPM based distributions.
type rpmProbe struct{ linuxProbe }

func (p rpmProbe) Detect(ctx context.Context, sys System) (Detection, bool) {
	if d, ok := p.linuxProbe.Detect(ctx, sys); ok && slices.Contains(rpmFamilies, d.Family) {
		d.Weight = 60
		return d, true
	}
	if m := centosRelease.FindStringSubmatch(sys.readFile("etc/centos-release")); m != nil {
		return Detection{Family: "centos", Version: m[1], Weight: 70}, true
	}
	if m := redhatRelease.FindStringSubmatch(sys.readFile("etc/redhat-release")); m != nil {
		return Detection{Family: "rhel", Version: m[1], Weight: 60}, true
	}
	if m := suseRelease.FindStringSubmatch(sys.readFile("etc/SuSE-release")); m != nil {
		return Detection{Family: "opensuse", Version: m[1], Weight: 70}, true
	}
	return Detection{}, false
}

// Packages lists every package but drops kernels other than the running one.
func (rpmProbe) Packages(ctx context.Context, sys System) ([]string, error) {
	out, err := sys.run(ctx, "rpm", "-qa")
	if err != nil {
		return nil, err
	}
	running, err := sys.run(ctx, "uname", "-r")
	if err != nil {
		return nil, err
	}

	var pkgs, kernels []string
	for _, line := range nonEmptyLines(out) {
		switch {
		case !strings.HasPrefix(line, "kernel-"):
			pkgs = append(pkgs, line)
		case running != "" && strings.Contains(line, running):
			kernels = append(kernels, line)
		}
	}
	return append(pkgs, kernels...), nil
}
