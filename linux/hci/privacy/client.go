package privacy

import "fmt"

// Client is a component whose controller activity must stop while the manager changes
// privacy-sensitive controller state. OnPause and OnResume run on the manager's handler
// and must not block; the client answers with AckPause / AckResume once it is done.
type Client interface {
	OnPause()
	OnResume()
}

type clientState uint8

const (
	resumed clientState = iota
	waitingForPause
	paused
	waitingForResume
)

func (s clientState) String() string {
	switch s {
	case resumed:
		return "resumed"
	case waitingForPause:
		return "waiting-for-pause"
	case paused:
		return "paused"
	case waitingForResume:
		return "waiting-for-resume"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

type clientEvent uint8

const (
	pauseRequested clientEvent = iota
	pauseAcked
	resumeRequested
	resumeAcked
)

func (e clientEvent) String() string {
	switch e {
	case pauseRequested:
		return "pause-requested"
	case pauseAcked:
		return "pause-acked"
	case resumeRequested:
		return "resume-requested"
	case resumeAcked:
		return "resume-acked"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

type transition struct {
	from  clientState
	event clientEvent
}

type outcome struct {
	to     clientState
	notify func(Client)
}

func notifyPause(c Client)  { c.OnPause() }
func notifyResume(c Client) { c.OnResume() }

// transitions lists every state change. Pairs not present leave the state untouched.
var transitions = map[transition]outcome{
	{resumed, pauseRequested}:          {waitingForPause, notifyPause},
	{waitingForResume, pauseRequested}: {waitingForPause, notifyPause},

	{resumed, pauseAcked}:          {paused, nil},
	{waitingForPause, pauseAcked}:  {paused, nil},
	{waitingForResume, pauseAcked}: {paused, nil},

	{paused, resumeRequested}: {waitingForResume, notifyResume},

	{waitingForResume, resumeAcked}: {resumed, nil},
}

// step applies e to s and returns the new state and the notification to deliver, if any.
func step(s clientState, e clientEvent) (clientState, func(Client)) {
	o, ok := transitions[transition{s, e}]
	if !ok {
		return s, nil
	}
	return o.to, o.notify
}

type registration struct {
	client Client
	state  clientState
}
