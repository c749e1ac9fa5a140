package llcp

import (
	"testing"

	"github.com/XC-/llcp/internal/pdu"
)

var testParams = ConnParams{IntervalMin: 24, IntervalMax: 40, Latency: 0, Timeout: 500}

func paramPDU(op pdu.Opcode, p ConnParams, ref uint16) *pdu.ConnParam {
	return &pdu.ConnParam{Op: op, ConnParamBody: pdu.ConnParamBody{
		IntervalMin:             p.IntervalMin,
		IntervalMax:             p.IntervalMax,
		Latency:                 p.Latency,
		Timeout:                 p.Timeout,
		ReferenceConnEventCount: ref,
		Offsets:                 [6]uint16{0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF},
	}}
}

func checkParams(t *testing.T, got ConnParams, interval, latency, timeout uint16) {
	t.Helper()
	if got.Interval != interval || got.Latency != latency || got.Timeout != timeout {
		t.Errorf("params: got %d/%d/%d want %d/%d/%d",
			got.Interval, got.Latency, got.Timeout, interval, latency, timeout)
	}
}

func TestConnParamReqCentral(t *testing.T) {
	ctl, c := newTestConn(t, Central)
	if err := c.ConnUpdate(testParams); err != nil {
		t.Fatalf("conn update: %v", err)
	}
	c.OnEventPrepare(1)
	ltRxAck(t, c, paramPDU(pdu.ConnParamReq, testParams, 1))
	ltTx(c, paramPDU(pdu.ConnParamRsp, ConnParams{IntervalMin: 30, IntervalMax: 30, Timeout: 500}, 1))
	ltRxAck(t, c, &pdu.ConnUpdate{WinSize: 1, Interval: 30, Timeout: 500, Instant: 7})
	c.OnEventDone()

	quietEvents(t, c, 2, 6)
	checkParams(t, c.Params(), 40, 0, 400)
	event(c, 7)
	n := utRx(t, ctl, NtfConnUpdate, Success)
	checkParams(t, n.Params, 30, 0, 500)
	checkParams(t, c.Params(), 30, 0, 500)
	checkFree(t, ctl)
}

func TestConnParamReqCentralFallback(t *testing.T) {
	ctl, c := newTestConn(t, Central)
	c.ConnUpdate(testParams)
	c.OnEventPrepare(1)
	ltRxAck(t, c, paramPDU(pdu.ConnParamReq, testParams, 1))
	ltTx(c, &pdu.Unknown{UnknownType: pdu.ConnParamReq})
	ltRxAck(t, c, &pdu.ConnUpdate{WinSize: 1, Interval: 40, Timeout: 500, Instant: 7})
	c.OnEventDone()
	quietEvents(t, c, 2, 6)
	event(c, 7)
	utRx(t, ctl, NtfConnUpdate, Success)

	// The peer is now known to lack the request: the update goes direct.
	p := ConnParams{IntervalMin: 80, IntervalMax: 80, Timeout: 500}
	c.ConnUpdate(p)
	c.OnEventPrepare(8)
	ltRxAck(t, c, &pdu.ConnUpdate{WinSize: 1, Interval: 80, Timeout: 500, Instant: 14})
	c.OnEventDone()
	quietEvents(t, c, 9, 13)
	event(c, 14)
	n := utRx(t, ctl, NtfConnUpdate, Success)
	checkParams(t, n.Params, 80, 0, 500)
	checkFree(t, ctl)
}

func TestConnUpdateCentralWithoutRequest(t *testing.T) {
	ctl, c := newTestConn(t, Central, WithFeatures(DefaultFeatures&^FeatConnParamReq))
	c.ConnUpdate(testParams)
	c.OnEventPrepare(1)
	ltRxAck(t, c, &pdu.ConnUpdate{WinSize: 1, Interval: 40, Timeout: 500, Instant: 7})
	c.OnEventDone()
	quietEvents(t, c, 2, 6)
	event(c, 7)
	utRx(t, ctl, NtfConnUpdate, Success)
	checkFree(t, ctl)
}

func TestConnParamReqPeripheral(t *testing.T) {
	ctl, c := newTestConn(t, Peripheral)
	c.ConnUpdate(testParams)
	c.OnEventPrepare(1)
	ltRxAck(t, c, paramPDU(pdu.ConnParamReq, testParams, 1))
	ltTx(c, &pdu.ConnUpdate{WinSize: 1, Interval: 24, Latency: 0, Timeout: 500, Instant: 6})
	c.OnEventDone()
	quietEvents(t, c, 2, 5)
	event(c, 6)
	n := utRx(t, ctl, NtfConnUpdate, Success)
	checkParams(t, n.Params, 24, 0, 500)
	checkFree(t, ctl)
}

func TestConnParamReqPeripheralRefused(t *testing.T) {
	for _, tt := range []struct {
		name string
		rsp  pdu.PDU
		want ErrorCode
	}{
		{"unknown rsp", &pdu.Unknown{UnknownType: pdu.ConnParamReq}, ErrUnsuppRemoteFeature},
		{"reject ext", &pdu.RejectExt{RejectOpcode: pdu.ConnParamReq, ErrorCode: uint8(ErrUnacceptConnParam)}, ErrUnacceptConnParam},
		{"reject", &pdu.Reject{ErrorCode: uint8(ErrUnacceptConnParam)}, ErrUnacceptConnParam},
	} {
		ctl, c := newTestConn(t, Peripheral)
		c.ConnUpdate(testParams)
		c.OnEventPrepare(1)
		ltRxAck(t, c, paramPDU(pdu.ConnParamReq, testParams, 1))
		ltTx(c, tt.rsp)
		c.OnEventDone()
		utRx(t, ctl, NtfConnUpdate, tt.want)
		utRxEmpty(t, ctl)
		checkParams(t, c.Params(), 40, 0, 400)
		checkFree(t, ctl)
	}
}

func TestConnParamReqRemote(t *testing.T) {
	t.Run("central", func(t *testing.T) {
		ctl, c := newTestConn(t, Central)
		c.OnEventPrepare(1)
		ltTx(c, paramPDU(pdu.ConnParamReq, testParams, 1))
		n := utRx(t, ctl, NtfConnParamReq, Success)
		if n.Params != testParams {
			t.Errorf("ntf params: got %+v want %+v", n.Params, testParams)
		}
		ltRxEmpty(t, c)

		p := testParams
		p.Interval = 32
		if err := c.ConnParamReply(p); err != nil {
			t.Fatalf("reply: %v", err)
		}
		c.OnEventDone()
		c.OnEventPrepare(2)
		ltRxAck(t, c, &pdu.ConnUpdate{WinSize: 1, Interval: 32, Timeout: 500, Instant: 8})
		c.OnEventDone()
		quietEvents(t, c, 3, 7)
		event(c, 8)
		m := utRx(t, ctl, NtfConnUpdate, Success)
		checkParams(t, m.Params, 32, 0, 500)
		checkFree(t, ctl)
	})
	t.Run("peripheral", func(t *testing.T) {
		ctl, c := newTestConn(t, Peripheral)
		c.OnEventPrepare(1)
		ltTx(c, paramPDU(pdu.ConnParamReq, testParams, 1))
		utRx(t, ctl, NtfConnParamReq, Success)
		c.ConnParamReply(testParams)
		c.OnEventDone()
		c.OnEventPrepare(2)
		ltRxAck(t, c, paramPDU(pdu.ConnParamRsp, testParams, 2))
		ltTx(c, &pdu.ConnUpdate{WinSize: 1, Interval: 40, Timeout: 500, Instant: 8})
		c.OnEventDone()
		quietEvents(t, c, 3, 7)
		event(c, 8)
		utRx(t, ctl, NtfConnUpdate, Success)
		checkFree(t, ctl)
	})
}

func TestConnParamReqNegReply(t *testing.T) {
	for _, tt := range []struct {
		name   string
		reason ErrorCode
		want   ErrorCode
	}{
		{"with reason", ErrUnsuppLLParamVal, ErrUnsuppLLParamVal},
		{"without reason", Success, ErrUnacceptConnParam},
	} {
		ctl, c := newTestConn(t, Peripheral)
		if err := c.ConnParamNegReply(tt.reason); err != ErrCmdDisallowed {
			t.Errorf("%s: reply with nothing pending: got %v want %v", tt.name, err, ErrCmdDisallowed)
		}
		c.OnEventPrepare(1)
		ltTx(c, paramPDU(pdu.ConnParamReq, testParams, 1))
		utRx(t, ctl, NtfConnParamReq, Success)
		c.ConnParamNegReply(tt.reason)
		c.OnEventDone()
		c.OnEventPrepare(2)
		ltRxAck(t, c, &pdu.RejectExt{RejectOpcode: pdu.ConnParamReq, ErrorCode: uint8(tt.want)})
		c.OnEventDone()
		utRxEmpty(t, ctl)
		checkFree(t, ctl)
	}
}

func TestConnParamReqInvalidFromPeer(t *testing.T) {
	ctl, c := newTestConn(t, Central)
	c.setPeerFeatures(DefaultFeatures &^ FeatExtRejectInd)
	c.OnEventPrepare(1)
	bad := ConnParams{IntervalMin: 40, IntervalMax: 24, Timeout: 500}
	ltTx(c, paramPDU(pdu.ConnParamReq, bad, 1))
	ltRxAck(t, c, &pdu.Reject{ErrorCode: uint8(ErrInvalidLLParam)})
	c.OnEventDone()
	utRxEmpty(t, ctl)
	checkFree(t, ctl)
}

func TestConnUpdateRemoteInstantPassed(t *testing.T) {
	ctl, c := newTestConn(t, Peripheral)
	c.OnEventPrepare(20)
	ltTx(c, &pdu.ConnUpdate{WinSize: 1, Interval: 40, Timeout: 500, Instant: 19})
	utRx(t, ctl, NtfTerminated, ErrInstantPassed)
	checkFree(t, ctl)
}

func TestConnUpdateParams(t *testing.T) {
	_, c := newTestConn(t, Peripheral)
	for _, tt := range []struct {
		name string
		p    ConnParams
	}{
		{"interval below range", ConnParams{IntervalMin: 5, IntervalMax: 40, Timeout: 500}},
		{"min above max", ConnParams{IntervalMin: 50, IntervalMax: 40, Timeout: 500}},
		{"latency", ConnParams{IntervalMin: 24, IntervalMax: 40, Latency: 500, Timeout: 500}},
		{"timeout too short for latency", ConnParams{IntervalMin: 24, IntervalMax: 400, Latency: 4, Timeout: 100}},
	} {
		if err := c.ConnUpdate(tt.p); err != ErrInvalidParam {
			t.Errorf("%s: got %v want %v", tt.name, err, ErrInvalidParam)
		}
	}

	c.clearFeature(FeatConnParamReq)
	if err := c.ConnUpdate(testParams); err != ErrUnsuppRemoteFeature {
		t.Errorf("peripheral without peer support: got %v want %v", err, ErrUnsuppRemoteFeature)
	}
}

func TestConnParamReqCollision(t *testing.T) {
	ctl, c := newTestConn(t, Central)
	c.ConnUpdate(testParams)
	c.OnEventPrepare(1)
	ltRxAck(t, c, paramPDU(pdu.ConnParamReq, testParams, 1))
	ltTx(c, paramPDU(pdu.ConnParamReq, testParams, 1))
	ltRxAck(t, c, &pdu.RejectExt{RejectOpcode: pdu.ConnParamReq, ErrorCode: uint8(ErrLLProcCollision)})
	utRxEmpty(t, ctl)

	// The local request carries on.
	ltTx(c, paramPDU(pdu.ConnParamRsp, testParams, 1))
	ltRxAck(t, c, &pdu.ConnUpdate{WinSize: 1, Interval: 24, Timeout: 500, Instant: 7})
	c.OnEventDone()
	quietEvents(t, c, 2, 6)
	event(c, 7)
	utRx(t, ctl, NtfConnUpdate, Success)
	checkFree(t, ctl)
}
