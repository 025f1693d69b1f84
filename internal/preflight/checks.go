// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-flexgraph/internal/keypattern"
)

// DefaultPingTimeout bounds the store reachability check.
const DefaultPingTimeout = 2 * time.Second

// Each open stream holds a socket; the rest covers the store pool, the
// listener, log files and the config watcher.
const (
	baseDescriptors      = 64
	descriptorsPerStream = 1
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Pinger is the part of the store the checks use.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options selects what RunAll checks. Empty fields skip their check.
type Options struct {
	Store       Pinger
	StoreName   string // shown in messages, e.g. "redis localhost:6379"
	PingTimeout time.Duration

	KeyPattern string
	ConfigDir  string
	ListenAddr string

	// ExpectedStreams sizes the file descriptor check.
	ExpectedStreams int
}

// RunAll executes all preflight checks.
func RunAll(ctx context.Context, opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkKeyPattern(opts.KeyPattern))
	if opts.Store != nil {
		add(checkStore(ctx, opts.Store, opts.StoreName, opts.PingTimeout))
	}
	if opts.ConfigDir != "" {
		add(checkConfigDir(opts.ConfigDir))
	}
	if opts.ListenAddr != "" {
		add(checkListenAddr(opts.ListenAddr))
	}
	add(checkFileDescriptors(opts.ExpectedStreams))

	return result
}

// checkKeyPattern verifies the pattern has a series wildcard.
func checkKeyPattern(pattern string) Check {
	p, err := keypattern.Parse(pattern)
	if err != nil {
		return Check{
			Name:    "key_pattern",
			Passed:  false,
			Message: err.Error(),
		}
	}
	return Check{
		Name:    "key_pattern",
		Passed:  true,
		Message: fmt.Sprintf("%s (prefix %q)", p, p.Prefix()),
	}
}

// checkStore verifies the store answers a ping.
func checkStore(ctx context.Context, s Pinger, name string, timeout time.Duration) Check {
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	if name == "" {
		name = "store"
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := s.Ping(ctx); err != nil {
		return Check{
			Name:    "store",
			Passed:  false,
			Message: fmt.Sprintf("%s unreachable: %v", name, err),
		}
	}
	return Check{
		Name:    "store",
		Passed:  true,
		Message: fmt.Sprintf("%s reachable (%s)", name, time.Since(start).Round(time.Millisecond)),
	}
}

// checkConfigDir warns when the display config dir is missing; every file in
// it is optional.
func checkConfigDir(dir string) Check {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return Check{
			Name:    "config_dir",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s not found, using defaults", dir),
		}
	case err != nil:
		return Check{
			Name:    "config_dir",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s: %v", dir, err),
		}
	case !info.IsDir():
		return Check{
			Name:    "config_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s is not a directory", dir),
		}
	}
	return Check{
		Name:    "config_dir",
		Passed:  true,
		Message: dir,
	}
}

// checkListenAddr verifies the HTTP listener address can be bound.
func checkListenAddr(addr string) Check {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{
			Name:    "listen_addr",
			Passed:  false,
			Message: fmt.Sprintf("cannot listen on %s: %v", addr, err),
		}
	}
	ln.Close()
	return Check{
		Name:    "listen_addr",
		Passed:  true,
		Message: fmt.Sprintf("%s available", addr),
	}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
// A shortfall only warns.
func checkFileDescriptors(streams int) Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	required := baseDescriptors + streams*descriptorsPerStream
	actual := int(min(limit.Cur, uint64(1<<31-1)))

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   true,
		Warning:  actual < required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d streams)", actual, required, streams),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "key_pattern":
		return "use a glob with a wildcard for the series, e.g. -pattern 'price_data:*:*'"
	case "store":
		return "start redis (redis-server) or run with -store memory -demo"
	case "config_dir":
		return "point -config-dir at a directory or remove the file in its place"
	case "listen_addr":
		return "choose a free port with -port"
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	default:
		return "see documentation"
	}
}
