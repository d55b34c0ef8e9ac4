package daemon

import (
	"fmt"
	"net"
	"os"
)

// Bind removes any stale socket file at path (left behind by a daemon that
// crashed without cleanup — the file-lock invariant already guarantees no
// live daemon owns it) and binds a new Unix domain socket listener there.
func Bind(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon: removing stale socket %s: %w", path, err)
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("daemon: binding socket %s: %w", path, err)
	}
	return l, nil
}
