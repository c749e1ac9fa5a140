// Package sim joins a central and a peripheral LLCP engine back to back.
//
// A Link plays the radio and scheduler of both controllers: every call to
// Event runs one connection event, carrying each control PDU to the peer
// and acknowledging it. It also plays a minimal host on each side that
// drains notifications and answers LTK and connection parameter requests.
package sim

import (
	"crypto/rand"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/XC-/llcp"
	"github.com/XC-/llcp/internal/pdu"
)

// Handle is the connection handle used on both sides.
const Handle = 0x0001

// maxPDUs bounds the PDUs one side sends in a single event.
const maxPDUs = 8

// RecordKind tells what a Record describes.
type RecordKind uint8

const (
	RecordPDU RecordKind = iota
	RecordData
	RecordNtf
)

// Record is one line of the link trace.
type Record struct {
	Counter uint16
	Kind    RecordKind
	// Side sent the PDU, or received the notification.
	Side llcp.Role
	Raw  []byte
	Ntf  llcp.Notification
}

func (r Record) String() string {
	switch r.Kind {
	case RecordNtf:
		return fmt.Sprintf("%5d %-10s ntf %s", r.Counter, r.Side, &r.Ntf)
	case RecordData:
		return fmt.Sprintf("%5d %-10s data [ % X ]", r.Counter, r.Side, r.Raw)
	}
	p, err := pdu.Parse(r.Raw)
	if err != nil {
		return fmt.Sprintf("%5d %-10s pdu [ % X ] (%v)", r.Counter, r.Side, r.Raw, err)
	}
	return fmt.Sprintf("%5d %-10s %s [ % X ]", r.Counter, r.Side, p.Opcode(), r.Raw)
}

// Side is one end of the link and its host.
type Side struct {
	Ctl  *llcp.Controller
	Conn *llcp.Conn

	// LTK is handed out on an LTK request. Nil refuses the request.
	LTK *[16]byte
	// RejectParams refuses connection parameter requests of the peer.
	RejectParams bool

	// Notifications holds every notification the host received.
	Notifications []llcp.Notification
}

// Count returns how many notifications of kind the host received.
func (s *Side) Count(kind llcp.NtfKind) int {
	n := 0
	for _, ntf := range s.Notifications {
		if ntf.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the last notification of kind.
func (s *Side) Last(kind llcp.NtfKind) (llcp.Notification, bool) {
	for i := len(s.Notifications) - 1; i >= 0; i-- {
		if s.Notifications[i].Kind == kind {
			return s.Notifications[i], true
		}
	}
	return llcp.Notification{}, false
}

// Link is a simulated connection between two controllers.
type Link struct {
	ID         uuid.UUID
	Central    *Side
	Peripheral *Side

	// OnRecord, if set, sees every trace record as it happens.
	OnRecord func(Record)

	counter uint16
	log     *logrus.Entry
}

// New connects a central configured by central to a peripheral
// configured by peripheral. Both log to log.
func New(central, peripheral llcp.Config, log *logrus.Logger) (*Link, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, errors.Wrap(err, "session id")
	}
	l := &Link{ID: id, log: log.WithField("session", id.String())}
	if l.Central, err = newSide(central, llcp.Central, log); err != nil {
		return nil, errors.Wrap(err, "central")
	}
	if l.Peripheral, err = newSide(peripheral, llcp.Peripheral, log); err != nil {
		return nil, errors.Wrap(err, "peripheral")
	}
	return l, nil
}

func newSide(cfg llcp.Config, role llcp.Role, log *logrus.Logger) (*Side, error) {
	ctl, err := llcp.New(llcp.WithConfig(cfg), llcp.WithLogger(log))
	if err != nil {
		return nil, err
	}
	c, err := ctl.Connect(Handle, role)
	if err != nil {
		return nil, err
	}
	return &Side{Ctl: ctl, Conn: c}, nil
}

func newSessionID() (uuid.UUID, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(b[:])
}

// LoadConfigs reads a TOML file with a [central] and a [peripheral] table,
// each in the llcp.Config schema. A missing table means the defaults.
func LoadConfigs(path string) (central, peripheral llcp.Config, err error) {
	var file struct {
		Central    toml.Primitive `toml:"central"`
		Peripheral toml.Primitive `toml:"peripheral"`
	}
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return central, peripheral, errors.Wrap(err, "load sim config")
	}
	if central, err = llcp.DecodeConfig(md, file.Central); err != nil {
		return central, peripheral, errors.Wrap(err, "[central]")
	}
	if peripheral, err = llcp.DecodeConfig(md, file.Peripheral); err != nil {
		return central, peripheral, errors.Wrap(err, "[peripheral]")
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return central, peripheral, errors.Errorf("load sim config: unknown key %q", keys[0].String())
	}
	return central, peripheral, nil
}

// Counter returns the counter of the next event.
func (l *Link) Counter() uint16 { return l.counter }

// Event runs one connection event on both sides.
func (l *Link) Event() {
	n := l.counter
	l.Central.Conn.OnEventPrepare(n)
	l.Peripheral.Conn.OnEventPrepare(n)
	for i := 0; i < maxPDUs; i++ {
		sent := l.carry(l.Central, l.Peripheral)
		if l.carry(l.Peripheral, l.Central) {
			sent = true
		}
		if !sent {
			break
		}
	}
	l.Central.Conn.OnEventDone()
	l.Peripheral.Conn.OnEventDone()
	l.host(l.Central)
	l.host(l.Peripheral)
	l.counter++
}

// carry moves one PDU from one side to the other. It reports whether
// anything was sent.
func (l *Link) carry(from, to *Side) bool {
	tx := from.Conn.TxDequeue()
	if tx == nil {
		return false
	}
	kind := RecordPDU
	if !tx.Ctrl {
		kind = RecordData
	}
	l.record(Record{Counter: l.counter, Kind: kind, Side: from.Conn.Role(), Raw: tx.Raw})
	if tx.Ctrl {
		to.Conn.OnRx(tx.Raw)
	}
	from.Conn.OnTxAck(tx)
	return true
}

// host drains the notifications of s and answers the requests among
// them. The engine acts on the answers in the next event.
func (l *Link) host(s *Side) {
	for {
		n := s.Ctl.Notification()
		if n == nil {
			return
		}
		ntf := *n
		s.Ctl.ReleaseNotification(n)
		s.Notifications = append(s.Notifications, ntf)
		l.record(Record{Counter: l.counter, Kind: RecordNtf, Side: s.Conn.Role(), Ntf: ntf})

		var err error
		switch ntf.Kind {
		case llcp.NtfLTKRequest:
			if s.LTK != nil {
				err = s.Conn.LTKReqReply(*s.LTK)
			} else {
				err = s.Conn.LTKReqNegReply()
			}
		case llcp.NtfConnParamReq:
			if s.RejectParams {
				err = s.Conn.ConnParamNegReply(llcp.ErrUnacceptConnParam)
			} else {
				err = s.Conn.ConnParamReply(ntf.Params)
			}
		}
		if err != nil {
			l.log.WithError(err).Warnf("%s host: reply to %s", s.Conn.Role(), ntf.Kind)
		}
	}
}

func (l *Link) record(r Record) {
	l.log.Debug(r.String())
	if l.OnRecord != nil {
		l.OnRecord(r)
	}
}

// Run runs n events.
func (l *Link) Run(n int) {
	for i := 0; i < n; i++ {
		l.Event()
	}
}

// Idle reports whether neither side has a procedure or a PDU pending.
func (l *Link) Idle() bool {
	for _, s := range []*Side{l.Central, l.Peripheral} {
		if !s.Conn.Idle() || s.Conn.TxPeek() || s.Ctl.PendingNotifications() > 0 {
			return false
		}
	}
	return true
}

// Terminated reports whether either side has ended the connection.
func (l *Link) Terminated() bool {
	return l.Central.Conn.Terminated() || l.Peripheral.Conn.Terminated()
}

// RunUntilIdle runs at least one event and stops once the link is idle.
// It fails if the link is still busy after max events.
func (l *Link) RunUntilIdle(max int) (int, error) {
	for i := 1; i <= max; i++ {
		l.Event()
		if l.Idle() {
			return i, nil
		}
	}
	return max, errors.Errorf("link %s: still busy after %d events", l.ID, max)
}
