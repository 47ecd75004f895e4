package ntp

// State is the state of Client.
type State int

// States of Client.
const (
	StateStartup State = iota
	StateWaitingOnDNS
	StateWaitingOnReply
	StateIdle
	StateDNSFailed
	StateReplyInvalid
	StateFailed
)

var stateNames = []string{
	"startup",
	"waiting-dns",
	"waiting-reply",
	"idle",
	"dns-failed",
	"reply-invalid",
	"failed",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// StateNotifier is called when the state of Client changed.
type StateNotifier interface {
	StateChanged(State)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(State)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(state State) {
	f(state)
}
