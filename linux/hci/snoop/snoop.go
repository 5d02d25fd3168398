// Package snoop records HCI traffic to pcap files readable by Wireshark.
//
// Records use LINKTYPE_BLUETOOTH_HCI_H4_WITH_PHDR: a 4-byte big-endian direction
// pseudo-header followed by the H4 packet type and the packet itself.
package snoop

import (
	"encoding/binary"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
	"github.com/rigado/blehci"
)

// LinkTypeH4WithPhdr is LINKTYPE_BLUETOOTH_HCI_H4_WITH_PHDR.
const LinkTypeH4WithPhdr = layers.LinkType(201)

const (
	snapLen    = 65535
	phdrLength = 4
)

// Direction of a captured frame relative to the host.
type Direction uint32

const (
	Outgoing Direction = 0
	Incoming Direction = 1
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// Sink receives every frame crossing the transport. Capture must be safe for concurrent use.
type Sink interface {
	Capture(dir Direction, packetType uint8, b []byte)
	Close() error
}

// Discard returns a Sink that drops everything.
func Discard() Sink {
	return discard{}
}

type discard struct{}

func (discard) Capture(Direction, uint8, []byte) {}
func (discard) Close() error                     { return nil }

type pcapSink struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	c      io.Closer
	now    func() time.Time
	logger blehci.Logger
	failed bool
}

// NewFile creates (or truncates) path and writes a pcap header to it.
func NewFile(path string) (Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "can't open capture file")
	}

	s, err := newSink(f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// New writes a pcap stream to w. Close does not close w.
func New(w io.Writer) (Sink, error) {
	return newSink(w, nil)
}

func newSink(w io.Writer, c io.Closer) (*pcapSink, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, LinkTypeH4WithPhdr); err != nil {
		return nil, errors.Wrap(err, "can't write capture header")
	}

	return &pcapSink{
		w:      pw,
		c:      c,
		now:    time.Now,
		logger: blehci.ComponentLogger("snoop"),
	}, nil
}

func (s *pcapSink) Capture(dir Direction, packetType uint8, b []byte) {
	rec := make([]byte, phdrLength+1+len(b))
	binary.BigEndian.PutUint32(rec, uint32(dir))
	rec[phdrLength] = packetType
	copy(rec[phdrLength+1:], b)

	ci := gopacket.CaptureInfo{
		Timestamp:     s.now(),
		CaptureLength: len(rec),
		Length:        len(rec),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return
	}
	if err := s.w.WritePacket(ci, rec); err != nil && !s.failed {
		// capture is diagnostic only, keep the link running
		s.failed = true
		s.logger.Warnf("capture write failed, further errors suppressed: %v", err)
	}
}

func (s *pcapSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w = nil
	if s.c == nil {
		return nil
	}
	c := s.c
	s.c = nil
	return errors.Wrap(c.Close(), "can't close capture file")
}
