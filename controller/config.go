// Package controller implements the top-level Controller (component
// L): the transport state machine, message-thread dispatch, and the
// glue between every other component (endpoints, framer, extras,
// congestion, reassembler, pacer). Configuration is a single typed
// struct rather than string lookups, matching spec §9 REDESIGN FLAGS
// ("replace GetString/GetInt/GetBoolean look-ups with a typed config
// struct") and the teacher's AdaptationConfig/DefaultAdaptationConfig
// pattern (av/adaptation.go).
package controller

import (
	"github.com/opd-ai/vvoip/congestion"
	"github.com/opd-ai/vvoip/endpoint"
	"github.com/opd-ai/vvoip/pacer"
)

// DataSaving selects the peer's data-saving preference (spec §6).
type DataSaving int

// DataSaving values (spec §6).
const (
	DataSavingNever DataSaving = iota
	DataSavingMobile
	DataSavingAlways
)

// Config holds every recognized transport option (spec §6
// Configuration). There is one DefaultConfig per tunable set, matching
// the teacher's per-subsystem Default*Config convention.
type Config struct {
	// InitTimeout bounds WAIT_INIT_ACK before the connection fails
	// (default 30s).
	InitTimeout float64
	// RecvTimeout is how long without any packet from the peer, while
	// on a relay, before the connection fails (spec §4.2).
	RecvTimeout float64
	// ReconnectingTimeout is how long without any packet from the peer
	// before the state machine drops from ESTABLISHED to RECONNECTING
	// (default 2.0s).
	ReconnectingTimeout float64
	// EstablishedDelayIfNoStreamData is the delay after INIT_ACK
	// before transitioning to ESTABLISHED absent any stream data
	// (default 1.5s).
	EstablishedDelayIfNoStreamData float64
	// EstablishedDelayOnFirstStreamData is the delay after the first
	// stream-data packet arrives pre-ESTABLISHED (default 0.5s).
	EstablishedDelayOnFirstStreamData float64

	DataSaving DataSaving

	EnableAEC           bool
	EnableNS            bool
	EnableAGC           bool
	EnableVolumeControl bool

	EnableCallUpgrade  bool
	EnableVideoSend    bool
	EnableVideoReceive bool

	LogPacketStats   bool
	LogFilePath      string
	StatsDumpFilePath string

	UseUDP bool
	UseTCP bool

	// ProxyServer is the "host:port" of the SOCKS5 proxy in use, if
	// any (spec §6 persistent state's "proxy.server"). Empty means no
	// proxy, and the UDP availability probe never treats a no-pong
	// round as proxy incapability.
	ProxyServer string
	// StateFilePath is where persisted proxy/UDP capability state is
	// saved and loaded (spec §6 persistent state). Empty disables
	// persistence.
	StateFilePath string

	Selection  endpoint.SelectionConfig
	Pacer      pacer.Config
	Congestion congestion.BitrateConfig
}

// DefaultConfig returns the values named in spec §4.2 and §6.
func DefaultConfig() Config {
	return Config{
		InitTimeout:                       30.0,
		RecvTimeout:                       10.0,
		ReconnectingTimeout:               2.0,
		EstablishedDelayIfNoStreamData:    1.5,
		EstablishedDelayOnFirstStreamData: 0.5,
		DataSaving:                        DataSavingNever,
		EnableAEC:                         true,
		EnableNS:                          true,
		EnableAGC:                         true,
		EnableVolumeControl:               true,
		UseUDP:                            true,
		UseTCP:                            true,
		Selection:                         endpoint.DefaultSelectionConfig(),
		Pacer:                             pacer.DefaultConfig(),
		Congestion:                        congestion.DefaultBitrateConfig(),
	}
}
