package fixer

import "errors"

// Outcomes that end a fix request without touching any host. The dispatcher
// exits 0 for these.
var (
	ErrUntrusted      = errors.New("acknowledging user is not trusted")
	ErrManuallyClosed = errors.New("problem was closed manually")
	ErrUnknownEntity  = errors.New("trigger host is not a vulners virtual host")
)

// Entity is the virtual host a trigger fired on.
type Entity string

const (
	EntityHosts    Entity = "hosts"
	EntityPackages Entity = "packages"
)

// Request is one action invocation: ztc fix {HOST.HOST} {TRIGGER.ID} {EVENT.ID}.
type Request struct {
	TriggeredHost string
	TriggerID     string
	EventID       string
}

// Target is a host the fix runs on.
type Target struct {
	Name    string // visible name
	Address string
	Port    string
}

// FixResults contains the results of a fix operation
type FixResults struct {
	Entity     Entity
	Actor      string
	Command    string
	Successful int
	Failed     int
	Hosts      []HostFixResult
}

// HostFixResult contains the result of fixing a single host
type HostFixResult struct {
	Name    string
	Address string
	Success bool
	Output  string
	Error   string
}
