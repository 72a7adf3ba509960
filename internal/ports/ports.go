// pattern: Imperative Shell

package ports

import (
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	dialTimeout  = 100 * time.Millisecond
	pollInterval = 100 * time.Millisecond
)

// IsAvailable reports whether a port can be bound for a new listener.
// Both loopback IPv4 and IPv6 must bind cleanly; a port usable on only
// one family is treated as unusable.
func IsAvailable(port int) bool {
	ln4, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}

	ln6, err := net.Listen("tcp", fmt.Sprintf("[::1]:%d", port))
	if err != nil {
		ln4.Close()
		return false
	}

	ln4.Close()
	ln6.Close()
	return true
}

// IsListening reports whether something accepts connections on the port,
// on either loopback family. IPv4 is tried first.
func IsListening(port int) bool {
	for _, addr := range []string{
		fmt.Sprintf("127.0.0.1:%d", port),
		fmt.Sprintf("[::1]:%d", port),
	} {
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err == nil {
			conn.Close()
			return true
		}
	}
	return false
}

// WaitForPort polls until something is listening on the port or the
// timeout elapses.
func WaitForPort(port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if IsListening(port) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("timeout waiting for port %d to start listening", port)
}

// WaitForPortFree polls until the port can be bound again or the timeout
// elapses.
func WaitForPortFree(port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if IsAvailable(port) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("timeout waiting for port %d to become free", port)
}

// FindAvailable scans the inclusive range and returns the first port that
// binds cleanly on both loopback families.
func FindAvailable(minPort, maxPort int) (int, error) {
	for port := minPort; port <= maxPort; port++ {
		if IsAvailable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available ports in range %d-%d", minPort, maxPort)
}

// ListenerPID returns the PID of the process listening on the port, or 0
// when no owner can be determined. Best effort only: the lsof query can
// miss processes owned by other users, so a zero result must never be
// treated as "port free".
func ListenerPID(port int) int {
	cmd := exec.Command("lsof", "-i", fmt.Sprintf(":%d", port), "-sTCP:LISTEN", "-t")
	output, err := cmd.Output()
	if err != nil {
		return 0
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0
	}
	return pid
}
