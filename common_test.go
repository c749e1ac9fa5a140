package llcp

import (
	"testing"

	"github.com/XC-/llcp/internal/pdu"
)

func TestFeatureExchangeCentralLocal(t *testing.T) {
	ctl, c := newTestConn(t, Central)
	peer := FeatLEPing | FeatEncryption | 1<<63

	if err := c.FeatureExchange(); err != nil {
		t.Fatalf("feature exchange: %v", err)
	}
	c.OnEventPrepare(1)
	ltRxAck(t, c, &pdu.Features{Op: pdu.FeatureReq, Features: DefaultFeatures})
	ltTx(c, &pdu.Features{Op: pdu.FeatureRsp, Features: peer})
	c.OnEventDone()

	n := utRx(t, ctl, NtfFeatureExchange, Success)
	if want := peer & featValidMask; n.Features != want {
		t.Errorf("features: got 0x%X want 0x%X", n.Features, want)
	}
	utRxEmpty(t, ctl)
	if f, ok := c.Features(); !ok || f != peer&featValidMask {
		t.Errorf("cached features: got 0x%X, %v", f, ok)
	}
	checkFree(t, ctl)
}

func TestFeatureExchangePeripheralLocal(t *testing.T) {
	ctl, c := newTestConn(t, Peripheral)
	if err := c.FeatureExchange(); err != nil {
		t.Fatalf("feature exchange: %v", err)
	}
	c.OnEventPrepare(1)
	ltRxAck(t, c, &pdu.Features{Op: pdu.PeripheralFeatureReq, Features: DefaultFeatures})
	ltTx(c, &pdu.Unknown{UnknownType: pdu.PeripheralFeatureReq})
	c.OnEventDone()

	utRx(t, ctl, NtfFeatureExchange, ErrUnsuppRemoteFeature)
	if err := c.FeatureExchange(); err != ErrUnsuppRemoteFeature {
		t.Errorf("second exchange: got %v want %v", err, ErrUnsuppRemoteFeature)
	}
	checkFree(t, ctl)
}

func TestFeatureExchangeRemote(t *testing.T) {
	for _, tt := range []struct {
		role Role
		req  pdu.Opcode
	}{
		{Peripheral, pdu.FeatureReq},
		{Central, pdu.PeripheralFeatureReq},
	} {
		ctl, c := newTestConn(t, tt.role)
		c.OnEventPrepare(1)
		ltTx(c, &pdu.Features{Op: tt.req, Features: FeatLEPing})
		ltRxAck(t, c, &pdu.Features{Op: pdu.FeatureRsp, Features: DefaultFeatures})
		c.OnEventDone()
		utRxEmpty(t, ctl)
		if f, ok := c.Features(); !ok || f != FeatLEPing {
			t.Errorf("%s: cached features: got 0x%X, %v", tt.role, f, ok)
		}
		checkFree(t, ctl)
	}
}

func TestFeatureExchangeCentralUnknownIsFatal(t *testing.T) {
	ctl, c := newTestConn(t, Central)
	c.FeatureExchange()
	c.OnEventPrepare(1)
	ltRxAck(t, c, &pdu.Features{Op: pdu.FeatureReq, Features: DefaultFeatures})
	ltTx(c, &pdu.Unknown{UnknownType: pdu.FeatureReq})
	utRx(t, ctl, NtfTerminated, ErrLMPPDUNotAllowed)
	utRxEmpty(t, ctl)
	if !c.Terminated() {
		t.Errorf("terminated: got false want true")
	}
	checkFree(t, ctl)
}

func TestVersionExchange(t *testing.T) {
	ctl, c := newTestConn(t, Central)
	local := &pdu.Version{VersNr: 0x0C, CompID: 0x05F1, SubVersNr: 0xFFFF}
	peer := &pdu.Version{VersNr: 0x0D, CompID: 0x0059, SubVersNr: 0x1234}

	c.VersionExchange()
	c.OnEventPrepare(1)
	ltRxAck(t, c, local)
	ltTx(c, peer)
	c.OnEventDone()
	n := utRx(t, ctl, NtfVersionExchange, Success)
	if n.Version != (VersionInfo{0x0D, 0x0059, 0x1234}) {
		t.Errorf("version: got %+v", n.Version)
	}
	core, err := n.Version.Core()
	if err != nil || core.String() != "5.4.0" {
		t.Errorf("core: got %v, %v want 5.4.0", core, err)
	}

	// Asked again: answered from the cache without a PDU.
	c.VersionExchange()
	c.OnEventPrepare(2)
	ltRxEmpty(t, c)
	utRx(t, ctl, NtfVersionExchange, Success)

	// The peer asking afterwards is not answered again.
	ltTx(c, peer)
	ltRxEmpty(t, c)
	c.OnEventDone()
	utRxEmpty(t, ctl)
	checkFree(t, ctl)
}

func TestVersionExchangeRemote(t *testing.T) {
	ctl, c := newTestConn(t, Peripheral)
	c.OnEventPrepare(1)
	ltTx(c, &pdu.Version{VersNr: 0x09, CompID: 0x000F, SubVersNr: 1})
	ltRxAck(t, c, &pdu.Version{VersNr: 0x0C, CompID: 0x05F1, SubVersNr: 0xFFFF})
	c.OnEventDone()
	utRxEmpty(t, ctl)
	if v, ok := c.RemoteVersion(); !ok || v.VersNr != 0x09 {
		t.Errorf("remote version: got %+v, %v", v, ok)
	}
	checkFree(t, ctl)
}

func TestLEPing(t *testing.T) {
	ctl, c := newTestConn(t, Central)
	c.LEPing()
	c.OnEventPrepare(1)
	ltRxAck(t, c, &pdu.Empty{Op: pdu.PingReq})
	ltTx(c, &pdu.Empty{Op: pdu.PingRsp})
	c.OnEventDone()
	utRxEmpty(t, ctl)

	c.LEPing()
	c.OnEventPrepare(2)
	ltRxAck(t, c, &pdu.Empty{Op: pdu.PingReq})
	ltTx(c, &pdu.Unknown{UnknownType: pdu.PingReq})
	c.OnEventDone()
	utRxEmpty(t, ctl)
	if err := c.LEPing(); err != ErrUnsuppRemoteFeature {
		t.Errorf("ping after unknown rsp: got %v want %v", err, ErrUnsuppRemoteFeature)
	}
	checkFree(t, ctl)
}

func TestLEPingRemote(t *testing.T) {
	ctl, c := newTestConn(t, Peripheral)
	ltTx(c, &pdu.Empty{Op: pdu.PingReq})
	ltRxAck(t, c, &pdu.Empty{Op: pdu.PingRsp})
	utRxEmpty(t, ctl)
	checkFree(t, ctl)
}

func TestMinUsedChannels(t *testing.T) {
	ctl, p := newTestConn(t, Peripheral)
	if err := p.SendMinUsedChannels(PHY1M, 4); err != nil {
		t.Fatalf("min used channels: %v", err)
	}
	p.OnEventPrepare(1)
	ltRxAck(t, p, &pdu.MinUsedChans{PHYs: PHY1M, MinUsedChannels: 4})
	utRxEmpty(t, ctl)
	checkFree(t, ctl)

	ctl, c := newTestConn(t, Central)
	if err := c.SendMinUsedChannels(PHY1M, 4); err != ErrCmdDisallowed {
		t.Errorf("central sending: got %v want %v", err, ErrCmdDisallowed)
	}
	ltTx(c, &pdu.MinUsedChans{PHYs: PHY2M, MinUsedChannels: 8})
	ltRxEmpty(t, c)
	if phys, n := c.MinUsedChannels(); phys != PHY2M || n != 8 {
		t.Errorf("stored: got 0x%X/%d want 0x2/8", phys, n)
	}
	checkFree(t, ctl)
}

func TestMalformedPDU(t *testing.T) {
	for _, tt := range []struct {
		name string
		b    []byte
		op   pdu.Opcode
	}{
		{"short feature req", []byte{0x08, 1, 2, 3}, pdu.FeatureReq},
		{"long ping req", []byte{0x12, 0}, pdu.PingReq},
		{"unknown opcode", []byte{0x7F}, pdu.Opcode(0x7F)},
		{"empty", nil, pdu.OpcodeNone},
	} {
		ctl, c := newTestConn(t, Peripheral)
		c.OnEventPrepare(1)
		c.OnRx(tt.b)
		ltRxAck(t, c, &pdu.Unknown{UnknownType: tt.op})
		ltRxEmpty(t, c)
		c.OnEventDone()
		utRxEmpty(t, ctl)
		if c.Terminated() {
			t.Errorf("%s: connection terminated", tt.name)
		}
		checkFree(t, ctl)
	}
}

func TestRoleInvalidRequestGetsUnknownRsp(t *testing.T) {
	ctl, c := newTestConn(t, Central)
	ltTx(c, &pdu.Features{Op: pdu.FeatureReq, Features: 0})
	ltRxAck(t, c, &pdu.Unknown{UnknownType: pdu.FeatureReq})
	utRxEmpty(t, ctl)

	ltTx(c, &pdu.ChannelMap{ChM: DefaultChannelMap, Instant: 10})
	ltRxAck(t, c, &pdu.Unknown{UnknownType: pdu.ChannelMapInd})
	utRxEmpty(t, ctl)
	checkFree(t, ctl)
}

func TestStrayResponseIsFatal(t *testing.T) {
	ctl, c := newTestConn(t, Central)
	ltTx(c, &pdu.Empty{Op: pdu.PingRsp})
	utRx(t, ctl, NtfTerminated, ErrLMPPDUNotAllowed)
	utRxEmpty(t, ctl)

	// Nothing further reaches the host once terminated.
	ltTx(c, &pdu.Empty{Op: pdu.PingRsp})
	utRxEmpty(t, ctl)
	if err := c.LEPing(); err != ErrCmdDisallowed {
		t.Errorf("ping after fatal: got %v want %v", err, ErrCmdDisallowed)
	}
	checkFree(t, ctl)
}

func TestStrayRejectIgnored(t *testing.T) {
	ctl, c := newTestConn(t, Peripheral)
	ltTx(c, &pdu.RejectExt{RejectOpcode: pdu.PHYReq, ErrorCode: 0x23})
	ltTx(c, &pdu.Unknown{UnknownType: pdu.PingReq})
	ltRxEmpty(t, c)
	utRxEmpty(t, ctl)
	if c.Terminated() {
		t.Errorf("terminated on stray reject")
	}
}

func TestPeerTerminate(t *testing.T) {
	ctl, c := newTestConn(t, Central)
	c.FeatureExchange()
	c.VersionExchange()
	c.LEPing()
	c.OnEventPrepare(1)
	ltRx(t, c, &pdu.Features{Op: pdu.FeatureReq, Features: DefaultFeatures})
	// A remote procedure in flight as well.
	ltTx(c, &pdu.Features{Op: pdu.PeripheralFeatureReq, Features: 0})

	ltTx(c, &pdu.Terminate{ErrorCode: uint8(ErrRemoteUserTerm)})
	c.OnEventDone()
	utRxEmpty(t, ctl)
	if l, r := ctl.FreeContexts(); l != ctl.Config().LocalContexts || r != ctl.Config().RemoteContexts {
		t.Errorf("free contexts: got %d/%d", l, r)
	}
	if reason, ok := c.TerminateReason(); !ok || reason != ErrRemoteUserTerm {
		t.Errorf("terminate reason: got %v, %v", reason, ok)
	}
	if err := ctl.Disconnect(testHandle); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	checkFree(t, ctl)
}

func TestLocalTerminate(t *testing.T) {
	ctl, c := newTestConn(t, Peripheral)
	c.FeatureExchange()
	c.LEPing()
	if err := c.Terminate(ErrRemoteUserTerm); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if err := c.Terminate(ErrRemoteUserTerm); err != ErrCmdDisallowed {
		t.Errorf("second terminate: got %v want %v", err, ErrCmdDisallowed)
	}
	c.OnEventPrepare(1)
	ltRxAck(t, c, &pdu.Terminate{ErrorCode: uint8(ErrRemoteUserTerm)})
	ltRxEmpty(t, c)
	c.OnEventDone()
	utRx(t, ctl, NtfTerminated, ErrLocalHostTerm)
	utRxEmpty(t, ctl)
	if !c.Terminated() {
		t.Errorf("terminated: got false want true")
	}
	if _, ok := c.TerminateReason(); ok {
		t.Errorf("terminate reason reported for a local termination")
	}
	checkFree(t, ctl)
}

func TestAckAfterTerminateReleasesNode(t *testing.T) {
	ctl, c := newTestConn(t, Central)
	c.FeatureExchange()
	c.OnEventPrepare(1)
	n := ltRx(t, c, &pdu.Features{Op: pdu.FeatureReq, Features: DefaultFeatures})
	ltTx(c, &pdu.Terminate{ErrorCode: uint8(ErrRemoteUserTerm)})

	// Another connection takes a context before the ack.
	other, _ := ctl.Connect(2, Central)
	other.LEPing()
	c.OnTxAck(n)
	if got := ctl.FreeTxNodes(); got != ctl.Config().TxBuffers {
		t.Errorf("free tx nodes: got %d want %d", got, ctl.Config().TxBuffers)
	}
	other.OnEventPrepare(1)
	ltRx(t, other, &pdu.Empty{Op: pdu.PingReq})
}

func TestBufferExhaustion(t *testing.T) {
	ctl, c := newTestConn(t, Central, WithTxBuffers(1), WithNtfBuffers(1))
	c.FeatureExchange()
	c.VersionExchange()

	// Hold the only tx buffer with a remote response.
	ltTx(c, &pdu.Features{Op: pdu.PeripheralFeatureReq, Features: 0})
	c.OnEventPrepare(1)
	if got := c.txq.Len(); got != 1 {
		t.Fatalf("queued: got %d want 1", got)
	}
	rsp := ltRx(t, c, &pdu.Features{Op: pdu.FeatureRsp, Features: DefaultFeatures})
	c.OnTxAck(rsp)

	// Released: the local feature exchange takes the buffer.
	ltRxAck(t, c, &pdu.Features{Op: pdu.FeatureReq, Features: DefaultFeatures})
	ltTx(c, &pdu.Features{Op: pdu.FeatureRsp, Features: 0})
	c.OnEventDone()
	c.OnEventPrepare(2)
	ltRxAck(t, c, &pdu.Version{VersNr: 0x0C, CompID: 0x05F1, SubVersNr: 0xFFFF})

	// The version notification waits for the single ntf buffer.
	ltTx(c, &pdu.Version{VersNr: 0x0C, CompID: 1, SubVersNr: 1})
	c.OnEventDone()
	n := ctl.Notification()
	if n == nil || n.Kind != NtfFeatureExchange {
		t.Fatalf("first ntf: got %v", n)
	}
	if ctl.Notification() != nil {
		t.Fatalf("second ntf delivered without a buffer")
	}
	ctl.ReleaseNotification(n)
	utRx(t, ctl, NtfVersionExchange, Success)
	utRxEmpty(t, ctl)
	checkFree(t, ctl)
}

func TestContextExhaustion(t *testing.T) {
	_, c := newTestConn(t, Central, WithContexts(1, 1))
	if err := c.LEPing(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := c.VersionExchange(); err != ErrMemCapacityExceeded {
		t.Errorf("second procedure: got %v want %v", err, ErrMemCapacityExceeded)
	}
	c.OnEventPrepare(1)
	ltRxAck(t, c, &pdu.Empty{Op: pdu.PingReq})
	ltTx(c, &pdu.Empty{Op: pdu.PingRsp})
	if err := c.VersionExchange(); err != nil {
		t.Errorf("after completion: got %v want nil", err)
	}
}

func TestUnknownConnection(t *testing.T) {
	ctl, _ := newTestConn(t, Central)
	if _, err := ctl.Conn(9); err != ErrUnknownConnID {
		t.Errorf("lookup: got %v want %v", err, ErrUnknownConnID)
	}
	if err := ctl.Disconnect(9); err != ErrUnknownConnID {
		t.Errorf("disconnect: got %v want %v", err, ErrUnknownConnID)
	}
	if _, err := ctl.Connect(testHandle, Central); err == nil {
		t.Errorf("duplicate connect: got nil error")
	}
}
