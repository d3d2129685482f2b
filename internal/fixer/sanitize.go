package fixer

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

var (
	sshUserRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9._-]*$`)
	// fqdnRe validates a hostname: starts and ends with alphanumeric, allows
	// dots and hyphens in between. Label lengths are checked in isValidFQDN.
	fqdnRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]{0,251}[a-zA-Z0-9])?$`)
)

// maxFixLen bounds the command taken from trigger comments.
const maxFixLen = 4096

// ValidateHostTarget validates that the given string is a valid IP address or
// FQDN. Interfaces may use either, depending on useip.
func ValidateHostTarget(target string) error {
	if target == "" {
		return fmt.Errorf("host target is empty")
	}
	if net.ParseIP(target) != nil {
		return nil
	}
	if isValidFQDN(target) {
		return nil
	}
	return fmt.Errorf("invalid host target (not a valid IP or hostname): %q", target)
}

func isValidFQDN(s string) bool {
	if len(s) > 253 {
		return false
	}
	if !fqdnRe.MatchString(s) {
		return false
	}
	for label := range strings.SplitSeq(s, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
	}
	return true
}

// ValidateSSHUser validates that an SSH username contains only safe characters.
func ValidateSSHUser(user string) error {
	if user == "" {
		return fmt.Errorf("SSH user is empty")
	}
	if len(user) > 64 {
		return fmt.Errorf("SSH user too long: %d chars", len(user))
	}
	if !sshUserRe.MatchString(user) {
		return fmt.Errorf("invalid SSH user: %q", user)
	}
	return nil
}

// ValidateFixCommand rejects commands that cannot be passed as a single
// system.run parameter or ssh argument.
func ValidateFixCommand(cmd string) error {
	if strings.TrimSpace(cmd) == "" {
		return fmt.Errorf("fix command is empty")
	}
	if len(cmd) > maxFixLen {
		return fmt.Errorf("fix command too long: %d chars", len(cmd))
	}
	if strings.ContainsAny(cmd, "\x00\r\n") {
		return fmt.Errorf("fix command spans several lines: %q", cmd)
	}
	return nil
}
