package llcp

import (
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/XC-/llcp/internal/pdu"
)

// fakeCrypto hands out fixed random bytes and uses the real cipher.
type fakeCrypto struct {
	rand []byte
}

func (f *fakeCrypto) Rand(b []byte) error {
	n := copy(b, f.rand)
	f.rand = f.rand[n:]
	return nil
}

func (f *fakeCrypto) Encrypt(key, clear [16]byte) ([16]byte, error) {
	return stdCrypto{}.Encrypt(key, clear)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

const testHandle = 0x0001

func newTestConn(t *testing.T, role Role, opts ...Option) (*Controller, *Conn) {
	t.Helper()
	ctl, err := New(append([]Option{WithLogger(quietLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	c, err := ctl.Connect(testHandle, role)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return ctl, c
}

// ltTx plays the lower tester sending p to the connection.
func ltTx(c *Conn, p pdu.PDU) { c.OnRx(pdu.Encode(p)) }

// ltRx plays the lower tester receiving the next PDU, which must equal
// want. The node is returned unacknowledged.
func ltRx(t *testing.T, c *Conn, want pdu.PDU) *TxNode {
	t.Helper()
	n := c.TxDequeue()
	if n == nil {
		t.Fatalf("tx: got nothing want %s", want.Opcode())
	}
	if b := pdu.Encode(want); !bytes.Equal(n.Raw, b) {
		t.Fatalf("tx: got [ % X ] want [ % X ]", n.Raw, b)
	}
	return n
}

// ltRxAck receives the next PDU and acknowledges it.
func ltRxAck(t *testing.T, c *Conn, want pdu.PDU) {
	t.Helper()
	c.OnTxAck(ltRx(t, c, want))
}

func ltRxEmpty(t *testing.T, c *Conn) {
	t.Helper()
	if n := c.TxDequeue(); n != nil {
		t.Fatalf("tx: got %s want nothing", n)
	}
}

// utRx plays the upper tester taking the next notification, which must be
// of kind with status. The buffer is released before returning.
func utRx(t *testing.T, ctl *Controller, kind NtfKind, status ErrorCode) Notification {
	t.Helper()
	n := ctl.Notification()
	if n == nil {
		t.Fatalf("ntf: got nothing want %s", kind)
	}
	got := *n
	ctl.ReleaseNotification(n)
	if got.Kind != kind || got.Status != status {
		t.Fatalf("ntf: got %s (%v) want %s (%v)", got.Kind, got.Status, kind, status)
	}
	return got
}

func utRxEmpty(t *testing.T, ctl *Controller) {
	t.Helper()
	if n := ctl.Notification(); n != nil {
		t.Fatalf("ntf: got %s want nothing", n)
	}
}

// checkFree verifies that every context and buffer went back to its pool.
func checkFree(t *testing.T, ctl *Controller) {
	t.Helper()
	cfg := ctl.Config()
	if l, r := ctl.FreeContexts(); l != cfg.LocalContexts || r != cfg.RemoteContexts {
		t.Errorf("free contexts: got %d/%d want %d/%d", l, r, cfg.LocalContexts, cfg.RemoteContexts)
	}
	if got := ctl.FreeTxNodes(); got != cfg.TxBuffers {
		t.Errorf("free tx nodes: got %d want %d", got, cfg.TxBuffers)
	}
	if got := ctl.FreeNtfNodes(); got != cfg.NtfBuffers {
		t.Errorf("free ntf nodes: got %d want %d", got, cfg.NtfBuffers)
	}
}

// event runs one connection event with nothing exchanged.
func event(c *Conn, counter uint16) {
	c.OnEventPrepare(counter)
	c.OnEventDone()
}
