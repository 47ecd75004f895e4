package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robotalks/clock.go/pkg/clockd/msgs"
)

func TestFormatStatus(t *testing.T) {
	testCases := []struct {
		name   string
		status msgs.ClockStatus
		text   string
	}{
		{
			name:   "no time",
			status: msgs.ClockStatus{State: "waiting-dns", Server: "pool.ntp.org"},
			text:   "state=waiting-dns server=pool.ntp.org time=none",
		},
		{
			name: "synced",
			status: msgs.ClockStatus{
				State:            "idle",
				Server:           "pool.ntp.org",
				Addr:             "192.0.2.1",
				HasTime:          true,
				UnixSeconds:      1700000000,
				RateMicros:       1000010,
				StepMicros:       1000015,
				PhaseErrorMicros: 5000,
				Samples:          3,
			},
			text: "state=idle server=pool.ntp.org(192.0.2.1) time=2023-11-14T22:13:20Z" +
				" rate=1000010us/s step=1000015us phase=5000us samples=3",
		},
		{
			name: "verified",
			status: msgs.ClockStatus{
				State:             "idle",
				Server:            "pool.ntp.org",
				HasTime:           true,
				UnixSeconds:       1700000000,
				RateMicros:        1000000,
				StepMicros:        1000000,
				Samples:           1,
				ProbeOffsetMicros: -1500,
				ProbeRttMicros:    20000,
			},
			text: "state=idle server=pool.ntp.org time=2023-11-14T22:13:20Z" +
				" rate=1000000us/s step=1000000us phase=0us samples=1 verified=-1.5ms",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.text, FormatStatus(&tc.status))
		})
	}
}
