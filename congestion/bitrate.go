package congestion

import (
	"github.com/sirupsen/logrus"
)

// ExtraECLevel is the redundancy level applied to outgoing audio
// packets under shitty-internet mode (spec §4.3): the count of
// redundant prior frames appended per packet.
type ExtraECLevel uint8

// Valid extra-EC levels (spec §4.3).
const (
	ExtraEC0 ExtraECLevel = 0
	ExtraEC2 ExtraECLevel = 2
	ExtraEC3 ExtraECLevel = 3
	ExtraEC4 ExtraECLevel = 4
)

// BitrateConfig holds the AIMD step sizes and loss thresholds for the
// audio-bitrate update loop (spec §4.3, §6), named directly after the
// teacher's AdaptationConfig (av/adaptation.go).
type BitrateConfig struct {
	MinAudioBitrate uint32
	MaxBitrate      uint32
	StepIncr        uint32
	StepDecr        uint32

	// PacketLossToEnableExtraEC is the lower bound of the "shitty
	// internet" loss window (default 0.02); the upper bound is fixed
	// at 0.05 by spec §4.3.
	PacketLossToEnableExtraEC float64
}

// DefaultBitrateConfig returns the values named in spec §4.3/§6.
func DefaultBitrateConfig() BitrateConfig {
	return BitrateConfig{
		MinAudioBitrate:           8000,
		MaxBitrate:                64000,
		StepIncr:                 1000,
		StepDecr:                 1000,
		PacketLossToEnableExtraEC: 0.02,
	}
}

const shittyInternetUpperLossBound = 0.05

// BitrateAdapter consumes Controller's bandwidth-action hints to move
// the encoder bitrate within [min, max] and to decide shitty-internet
// mode / extra-EC level, mirroring the teacher's BitrateAdapter
// (av/adaptation.go) AIMD shape but driven by congestion.Action
// instead of an independent quality assessment.
type BitrateAdapter struct {
	config BitrateConfig

	bitrate        uint32
	extraEC        bool
	extraECLevel   ExtraECLevel
	is2GOrEDGE     bool

	bitrateCb func(uint32)
	extraECCb func(bool, ExtraECLevel)
}

// NewBitrateAdapter returns a BitrateAdapter starting at
// initialBitrate, clamped into the configured range.
func NewBitrateAdapter(config BitrateConfig, initialBitrate uint32) *BitrateAdapter {
	if initialBitrate < config.MinAudioBitrate {
		initialBitrate = config.MinAudioBitrate
	}
	if initialBitrate > config.MaxBitrate {
		initialBitrate = config.MaxBitrate
	}
	return &BitrateAdapter{config: config, bitrate: initialBitrate}
}

// SetCallbacks registers bitrate-change and extra-EC-change
// notification callbacks (teacher pattern: BitrateAdapter.SetCallbacks
// in av/adaptation.go).
func (a *BitrateAdapter) SetCallbacks(bitrateCb func(uint32), extraECCb func(bool, ExtraECLevel)) {
	a.bitrateCb = bitrateCb
	a.extraECCb = extraECCb
}

// Apply consumes one congestion Action, every 300ms per spec §4.3,
// moving the bitrate by the configured step and clamping to range.
func (a *BitrateAdapter) Apply(action Action) {
	old := a.bitrate
	switch action {
	case ActionIncrease:
		a.bitrate += a.config.StepIncr
		if a.bitrate > a.config.MaxBitrate {
			a.bitrate = a.config.MaxBitrate
		}
	case ActionDecrease:
		if a.bitrate > a.config.StepDecr {
			a.bitrate -= a.config.StepDecr
		} else {
			a.bitrate = 0
		}
		if a.bitrate < a.config.MinAudioBitrate {
			a.bitrate = a.config.MinAudioBitrate
		}
	}

	if a.bitrate != old && a.bitrateCb != nil {
		a.bitrateCb(a.bitrate)
	}
}

// Bitrate returns the current encoder bitrate in bits/sec.
func (a *BitrateAdapter) Bitrate() uint32 { return a.bitrate }

// SetNetworkIs2GOrEDGE records whether the active network is a 2G/EDGE
// link, which disables shitty-internet mode regardless of loss (spec
// §4.3: "the network is not 2G/EDGE").
func (a *BitrateAdapter) SetNetworkIs2GOrEDGE(v bool) { a.is2GOrEDGE = v }

// UpdateLoss assesses the current send-loss ratio against the
// shitty-internet window (0.02, 0.05) and enables/disables extra-EC
// accordingly, auto-disabling once loss recovers (spec §4.3).
func (a *BitrateAdapter) UpdateLoss(lossRatio float64) {
	logger := logrus.WithFields(logrus.Fields{
		"function":    "BitrateAdapter.UpdateLoss",
		"package":     "congestion",
		"loss_ratio":  lossRatio,
		"was_enabled": a.extraEC,
	})

	shouldEnable := !a.is2GOrEDGE &&
		lossRatio > a.config.PacketLossToEnableExtraEC &&
		lossRatio < shittyInternetUpperLossBound

	if shouldEnable == a.extraEC {
		return
	}

	a.extraEC = shouldEnable
	if shouldEnable {
		a.extraECLevel = pickExtraECLevel(lossRatio)
		logger.WithField("level", a.extraECLevel).Info("enabling shitty-internet extra-EC")
	} else {
		a.extraECLevel = ExtraEC0
		logger.Info("disabling shitty-internet extra-EC")
	}

	if a.extraECCb != nil {
		a.extraECCb(a.extraEC, a.extraECLevel)
	}
}

func pickExtraECLevel(lossRatio float64) ExtraECLevel {
	switch {
	case lossRatio > 0.04:
		return ExtraEC4
	case lossRatio > 0.03:
		return ExtraEC3
	default:
		return ExtraEC2
	}
}

// ExtraEC reports whether shitty-internet mode is currently active and
// at what redundancy level.
func (a *BitrateAdapter) ExtraEC() (enabled bool, level ExtraECLevel) {
	return a.extraEC, a.extraECLevel
}
