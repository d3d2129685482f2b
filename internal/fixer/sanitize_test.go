package fixer

import (
	"strings"
	"testing"
)

func TestValidateHostTarget(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{"valid IPv4", "192.168.1.1", false},
		{"valid IPv6", "2001:db8::1", false},
		{"loopback IPv6", "::1", false},
		{"valid FQDN", "web.example.com", false},
		{"valid short hostname", "myhost", false},
		{"valid subdomain", "db-01.prod.example.com", false},
		{"injection attempt IP", "192.168.1.1; rm -rf /", true},
		{"injection attempt hostname", "host;rm -rf /", true},
		{"empty", "", true},
		{"consecutive dots", "host..example.com", true},
		{"starts with dot", ".example.com", true},
		{"starts with hyphen", "-example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHostTarget(tt.target)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHostTarget(%q) error = %v, wantErr %v", tt.target, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSSHUser(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		wantErr bool
	}{
		{"root", "root", false},
		{"zabbix_user", "zabbix_user", false},
		{"user-name", "user-name", false},
		{"_service", "_service", false},
		{"injection attempt", "root; whoami", true},
		{"digit start", "1user", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSSHUser(tt.user)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSSHUser(%q) error = %v, wantErr %v", tt.user, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFixCommand(t *testing.T) {
	tests := []struct {
		name    string
		cmd     string
		wantErr bool
	}{
		{"yum", "yum update openssl bash", false},
		{"apt chain", "apt-get update && apt-get install --only-upgrade openssl", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"multi-line", "yum update\nrm -rf /", true},
		{"carriage return", "yum update\r", true},
		{"too long", strings.Repeat("a", maxFixLen+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFixCommand(tt.cmd)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFixCommand(%q) error = %v, wantErr %v", tt.cmd, err, tt.wantErr)
			}
		})
	}
}
