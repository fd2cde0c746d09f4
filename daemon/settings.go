package daemon

import (
	"fmt"

	"github.com/flowgrind/flowgrind/internal/fgmath"
)

// Role identifies which side of a flow a daemon is playing.
type Role int

const (
	RoleDestination Role = iota
	RoleSource
)

// ExtraSockopt is one opaque additional setsockopt request, applied after
// the named options in Settings.
type ExtraSockopt struct {
	Level int
	Name  int
	Value []byte
}

// TrafgenOptions carries the distribution parameters for the three
// stochastic generators of a flow (request size, response size, gap).
type TrafgenOptions struct {
	RequestSize  fgmath.Spec
	ResponseSize fgmath.Spec
	InterGap     fgmath.Spec
}

// Settings is the immutable-after-admission configuration of one flow
// endpoint, shared by both AddSource and AddDestination.
type Settings struct {
	BindAddress string

	// WriteDelay/WriteDuration and ReadDelay/ReadDuration bound each
	// direction; a zero duration means "open-ended" (no stop time), except
	// that a zero WriteDuration with a positive ReadDuration starts the
	// write side already finished (see admitStartFlows).
	WriteDelay    float64
	WriteDuration float64
	ReadDelay     float64
	ReadDuration  float64

	ReportingInterval float64

	RequestedSendBuffer int
	RequestedReadBuffer int
	MaxBlockSize        int

	DumpTraffic bool
	DebugSocket bool
	RouteRecord bool
	Pushy       bool
	Shutdown    bool
	FlowControl bool
	ByteCounting bool

	WriteRate float64

	RandomSeed uint64

	RequestSize  fgmath.Spec
	ResponseSize fgmath.Spec
	InterGap     fgmath.Spec

	Cork              bool
	NoNagle           bool
	CongestionControl string
	DSCP              int
	MTUDiscovery      bool
	ELCN              bool
	LCD               bool
	MTCP              bool
	ExtraSockopts     []ExtraSockopt

	// Source-only fields; ignored for RoleDestination.
	DestinationHost string
	DestinationPort int
	LateConnect     bool
}

// Validate checks settings for internal consistency, independent of role.
// Both AddSource and AddDestination call this once at admission so the
// check is never duplicated between the two roles.
func (s Settings) Validate() error {
	if s.MaxBlockSize < 24 {
		return fmt.Errorf("daemon: maximum block size %d is smaller than the header (24 bytes)", s.MaxBlockSize)
	}
	if s.WriteDuration < 0 || s.ReadDuration < 0 {
		return fmt.Errorf("daemon: direction duration must not be negative")
	}
	if s.WriteDelay < 0 || s.ReadDelay < 0 {
		return fmt.Errorf("daemon: direction delay must not be negative")
	}
	if s.ReportingInterval < 0 {
		return fmt.Errorf("daemon: reporting interval must not be negative")
	}
	if s.WriteRate < 0 {
		return fmt.Errorf("daemon: write rate must not be negative")
	}
	if len(s.ExtraSockopts) > 10 {
		return fmt.Errorf("daemon: at most 10 extra socket options are supported, got %d", len(s.ExtraSockopts))
	}
	for _, o := range s.ExtraSockopts {
		if len(o.Value) > 100 {
			return fmt.Errorf("daemon: extra socket option value exceeds 100 bytes")
		}
	}
	return nil
}
