package main

import (
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rigado/blehci"
	"github.com/rigado/blehci/linux/hci/privacy"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// addressManager is the part of privacy.Manager the status client uses.
type addressManager interface {
	AckPause(privacy.Client) error
	AckResume(privacy.Client) error
	GetCurrentAddress() (blehci.AddressWithType, error)
	NextRotation() (time.Time, bool, error)
}

// Status is one JSON line written by the status client.
type Status struct {
	Time         time.Time               `json:"time"`
	Event        string                  `json:"event"`
	Policy       privacy.Policy          `json:"policy"`
	Address      *blehci.AddressWithType `json:"address,omitempty"`
	NextRotation *time.Time              `json:"nextRotation,omitempty"`
}

// statusClient is a privacy client that acknowledges every pause and resume at once and
// reports each transition as a JSON line.
type statusClient struct {
	m      addressManager
	policy privacy.Policy
	now    func() time.Time
	events chan string
	logger blehci.Logger
}

func newStatusClient(m addressManager, policy privacy.Policy) *statusClient {
	return &statusClient{
		m:      m,
		policy: policy,
		now:    time.Now,
		events: make(chan string, 16),
		logger: blehci.ComponentLogger("status"),
	}
}

func (s *statusClient) OnPause() {
	if err := s.m.AckPause(s); err != nil {
		s.logger.Warnf("can't ack pause: %v", err)
	}
	s.post("paused")
}

func (s *statusClient) OnResume() {
	if err := s.m.AckResume(s); err != nil {
		s.logger.Warnf("can't ack resume: %v", err)
	}
	s.post("resumed")
}

// post runs on the manager's handler and must not block.
func (s *statusClient) post(event string) {
	select {
	case s.events <- event:
	default:
		s.logger.Warnf("status backlog full, dropped %q", event)
	}
}

func (s *statusClient) status(event string) Status {
	st := Status{Time: s.now(), Event: event, Policy: s.policy}
	if a, err := s.m.GetCurrentAddress(); err == nil {
		st.Address = &a
	}
	if t, ok, err := s.m.NextRotation(); err == nil && ok {
		st.NextRotation = &t
	}
	return st
}

func (s *statusClient) write(w io.Writer, event string) error {
	b, err := json.Marshal(s.status(event))
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// run writes a status line for every event until done is closed.
func (s *statusClient) run(done <-chan struct{}, w io.Writer) error {
	for {
		select {
		case <-done:
			return nil
		case e := <-s.events:
			if err := s.write(w, e); err != nil {
				return err
			}
		}
	}
}
