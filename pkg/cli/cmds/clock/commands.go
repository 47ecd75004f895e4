// Package clock provides shell commands of clock devices.
package clock

import (
	"fmt"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/clock.go/pkg/cli/sh"
	"github.com/robotalks/clock.go/pkg/clockd/msgs"
)

// FormatStatus formats ClockStatus for humans.
func FormatStatus(s *msgs.ClockStatus) string {
	text := fmt.Sprintf("state=%s server=%s", s.State, s.Server)
	if s.Addr != "" {
		text += "(" + s.Addr + ")"
	}
	if !s.HasTime {
		return text + " time=none"
	}
	text += fmt.Sprintf(" time=%s rate=%dus/s step=%dus phase=%dus samples=%d",
		s.Time().UTC().Format(time.RFC3339), s.RateMicros, s.StepMicros,
		s.PhaseErrorMicros, s.Samples)
	if s.ProbeRttMicros != 0 {
		text += fmt.Sprintf(" verified=%v", s.ProbeOffset())
	}
	return text
}

var (
	// StatusCmd exposes ClockStatusQuery command.
	StatusCmd = ishell.Cmd{
		Name:    "clock.status",
		Aliases: []string{"cs"},
		Help:    "show sync status",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if sh.ShellFrom(c).OutputJSON {
				sh.DoCommand(c, &msgs.ClockStatusQuery{})
				return
			}
			reply, err := sh.Request(c, &msgs.ClockStatusQuery{})
			if err != nil {
				return
			}
			if r, ok := reply.(*msgs.ClockStatusReply); ok && r.Status != nil {
				c.Println(FormatStatus(r.Status))
			}
		}),
	}

	// ResyncCmd exposes ClockResync command.
	ResyncCmd = ishell.Cmd{
		Name:    "clock.resync",
		Aliases: []string{"cr"},
		Help:    "request a sample now",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, &msgs.ClockResync{})
		}),
	}

	// BindCmd exposes ClockBind command.
	BindCmd = ishell.Cmd{
		Name:    "clock.bind",
		Aliases: []string{"cb"},
		Help:    "SERVER",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("server expected"))
				return
			}
			sh.DoCommand(c, &msgs.ClockBind{Server: c.Args[0]})
		}),
	}
)

func init() {
	sh.AddCmds(
		&StatusCmd,
		&ResyncCmd,
		&BindCmd,
	)
}
