// Package facade implements the session facades of §4.6: HostFacade and
// ClientFacade each own exactly one pkg/host.Server or pkg/client.Peer and
// expose polling observable streams (roster, hosted/receivable file
// snapshots) plus an event-driven text stream, stamping outbound
// FileInfo.sender_ip from an externally observed group IP.
package facade

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/wiresync/p2pcore/pkg/config"
)

var (
	ErrNotActive    = errors.New("facade: host not started")
	ErrNotConnected = errors.New("facade: client not connected")
)

// GroupIPSource is the external collaborator named in spec §6: whatever
// discovers this process's reachable IPv4 address within the current
// group (hotspot, LAN, or otherwise). The facades hold the most recently
// observed value and use it to stamp outbound FileInfo.sender_ip.
type GroupIPSource interface {
	// CurrentIP returns the observed address, or "" if none has been
	// observed yet.
	CurrentIP() string
}

// StaticIPSource is a GroupIPSource that always returns a fixed address;
// useful for tests and for simple deployments where the group IP is known
// upfront rather than discovered.
type StaticIPSource string

func (s StaticIPSource) CurrentIP() string { return string(s) }

func pollInterval() time.Duration {
	return config.Load().FacadePollInterval
}

// poll emits the current snapshot from get() on every tick, plus once
// immediately, onto out, until ctx is canceled. Emission is by
// DeepEqual-inequality with the last emitted value, satisfying "at least
// once per observed change" without requiring the caller to diff itself.
func poll[T any](ctx context.Context, get func() T, out chan<- T) {
	ticker := time.NewTicker(pollInterval())
	defer ticker.Stop()
	defer close(out)

	var last T
	first := true

	emit := func() {
		cur := get()
		if first || !reflect.DeepEqual(cur, last) {
			select {
			case out <- cur:
			case <-ctx.Done():
				return
			}
			last = cur
			first = false
		}
	}

	emit()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emit()
		}
	}
}
