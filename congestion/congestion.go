// Package congestion implements the RTT/loss-driven congestion
// controller (component I): an in-flight byte tracker feeding a
// bandwidth control action hint, modeled on the teacher's AIMD
// bitrate adapter (av/adaptation.go) but tracking raw packet
// in-flight/RTT/loss state instead of jitter-buffer statistics, per
// spec §4.3.
package congestion

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vvoip/clock"
)

// Action is the bandwidth control hint the congestion controller
// emits after each RTT assessment (spec §4.3).
type Action int

const (
	// ActionNone signals no change is warranted.
	ActionNone Action = iota
	// ActionIncrease signals the sender may raise its bitrate.
	ActionIncrease
	// ActionDecrease signals the sender should lower its bitrate.
	ActionDecrease
)

func (a Action) String() string {
	switch a {
	case ActionIncrease:
		return "increase"
	case ActionDecrease:
		return "decrease"
	default:
		return "none"
	}
}

const (
	inflightRingSize = 100
	rttHistorySize   = 100

	minCwnd = 1024
	maxCwnd = 102400

	// stateTransitionTime is the cooldown after a bitrate action
	// before a DECREASE may fire again (spec §4.3: "10 s cooldown");
	// INCREASE is not gated by it.
	stateTransitionTime = 10.0
)

type inflightSlot struct {
	seq    uint32
	sendAt float64
	size   int
	used   bool
}

// Controller tracks in-flight stream-data packets, their RTT, and
// loss, exposing GetBandwidthControlAction per spec §4.3.
type Controller struct {
	clock clock.Clock

	ring     [inflightRingSize]inflightSlot
	ringHead int

	inflight int
	cwnd     int

	rttHistory      []float64
	inflightHistory []int

	lossCount int

	lastActionAt float64
	haveAction   bool
}

// NewController returns a Controller with the starting congestion
// window named in spec §4.3 (1024 bytes).
func NewController(c clock.Clock) *Controller {
	return &Controller{
		clock: c,
		cwnd:  minCwnd,
	}
}

// PacketSent records a newly sent stream-data packet. If the ring slot
// it occupies held a not-yet-acked packet, that prior packet is
// declared lost by eviction (spec §3 CongestionPacket, §4.3).
func (c *Controller) PacketSent(seq uint32, size int) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Controller.PacketSent",
		"package":  "congestion",
		"seq":      seq,
		"size":     size,
	})

	slot := &c.ring[c.ringHead]
	if slot.used {
		logger.Debug("evicting unacked slot, counting as loss")
		c.inflight -= slot.size
		c.lossCount++
	}

	*slot = inflightSlot{seq: seq, sendAt: c.clock.Now(), size: size, used: true}
	c.inflight += size
	c.ringHead = (c.ringHead + 1) % inflightRingSize
}

func (c *Controller) findSlot(seq uint32) *inflightSlot {
	for i := range c.ring {
		if c.ring[i].used && c.ring[i].seq == seq {
			return &c.ring[i]
		}
	}
	return nil
}

// PacketAcknowledged records an ack for a previously sent packet,
// removing it from in-flight accounting and folding its RTT sample
// into history. Acking an unknown or already-cleared sequence is a
// no-op (idempotent, spec §8).
func (c *Controller) PacketAcknowledged(seq uint32) {
	slot := c.findSlot(seq)
	if slot == nil {
		return
	}
	rtt := c.clock.Now() - slot.sendAt
	c.inflight -= slot.size
	*slot = inflightSlot{}

	c.rttHistory = append(c.rttHistory, rtt)
	if len(c.rttHistory) > rttHistorySize {
		c.rttHistory = c.rttHistory[1:]
	}
}

// PacketLost explicitly declares a packet lost (e.g. a duplicate-ack
// style signal distinct from ring eviction), incrementing the loss
// counter and releasing its in-flight bytes (spec §4.3).
func (c *Controller) PacketLost(seq uint32) {
	slot := c.findSlot(seq)
	if slot == nil {
		return
	}
	c.inflight -= slot.size
	*slot = inflightSlot{}
	c.lossCount++
}

// Tick snapshots in-flight bytes into history; call once per second
// (spec §4.3).
func (c *Controller) Tick() {
	c.inflightHistory = append(c.inflightHistory, c.inflight)
	if len(c.inflightHistory) > 30 {
		c.inflightHistory = c.inflightHistory[1:]
	}
}

// Inflight returns the current in-flight byte count.
func (c *Controller) Inflight() int { return c.inflight }

// LossCount returns the cumulative number of packets declared lost.
func (c *Controller) LossCount() int { return c.lossCount }

// Cwnd returns the current congestion window in bytes.
func (c *Controller) Cwnd() int { return c.cwnd }

func (c *Controller) avgMinRTT() (avg, min float64, ok bool) {
	if len(c.rttHistory) == 0 {
		return 0, 0, false
	}
	min = c.rttHistory[0]
	var sum float64
	for _, r := range c.rttHistory {
		sum += r
		if r < min {
			min = r
		}
	}
	return sum / float64(len(c.rttHistory)), min, true
}

// GetBandwidthControlAction assesses RTT and in-flight pressure and
// returns the bitrate hint (spec §4.3):
//   - DECREASE when avg_rtt > min_rtt*1.5 and the cooldown has
//     elapsed since the last action;
//   - INCREASE when avg_rtt < min_rtt*1.2 and inflight/cwnd > 0.75;
//   - NONE otherwise.
//
// A returned action other than NONE also updates cwnd and starts the
// cooldown.
func (c *Controller) GetBandwidthControlAction() Action {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Controller.GetBandwidthControlAction",
		"package":  "congestion",
	})

	avg, min, ok := c.avgMinRTT()
	if !ok {
		return ActionNone
	}

	now := c.clock.Now()
	cooledDown := !c.haveAction || now-c.lastActionAt >= stateTransitionTime

	switch {
	case avg > min*1.5 && cooledDown:
		c.applyDecrease(now)
		logger.WithFields(logrus.Fields{"avg_rtt": avg, "min_rtt": min}).Debug("decrease action")
		return ActionDecrease
	case avg < min*1.2 && c.cwnd > 0 && float64(c.inflight)/float64(c.cwnd) > 0.75:
		c.applyIncrease(now)
		logger.WithFields(logrus.Fields{"avg_rtt": avg, "min_rtt": min}).Debug("increase action")
		return ActionIncrease
	default:
		return ActionNone
	}
}

func (c *Controller) applyDecrease(now float64) {
	c.cwnd /= 2
	if c.cwnd < minCwnd {
		c.cwnd = minCwnd
	}
	c.lastActionAt = now
	c.haveAction = true
}

func (c *Controller) applyIncrease(now float64) {
	c.cwnd += c.cwnd / 8
	if c.cwnd > maxCwnd {
		c.cwnd = maxCwnd
	}
	c.lastActionAt = now
	c.haveAction = true
}

// SendLossRatio returns the cumulative lossCount divided by totalSent,
// the caller's own count of packets sent, for the shitty-internet-mode
// decision in §4.3. It returns 0 when totalSent is not positive. It is
// a coarse estimate, matching the teacher's packetsLost/packetsSent
// ratio style in av/adaptation.go.
func (c *Controller) SendLossRatio(totalSent int) float64 {
	if totalSent <= 0 {
		return 0
	}
	return float64(c.lossCount) / float64(totalSent)
}
