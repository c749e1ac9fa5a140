package llcp

import (
	"fmt"

	"github.com/XC-/llcp/internal/pdu"
	"github.com/XC-/llcp/internal/pool"
)

// TxNode is one outbound PDU. Control nodes come from the controller's
// shared pool and return to it when the radio acknowledges them.
type TxNode struct {
	// Raw is the encoded PDU: opcode followed by payload for control
	// nodes, the payload for data nodes.
	Raw []byte
	// Ctrl reports whether Raw is an LL control PDU.
	Ctrl bool

	op    pdu.Opcode
	conn  uint16
	slot  pool.Handle
	owner ctxRef
}

// Opcode returns the control opcode of a control node.
func (n *TxNode) Opcode() pdu.Opcode { return n.op }

func (n *TxNode) String() string {
	if !n.Ctrl {
		return fmt.Sprintf("data [ % X ]", n.Raw)
	}
	return fmt.Sprintf("%s [ % X ]", n.op, n.Raw)
}

// NtfKind tells which procedure outcome a Notification carries.
type NtfKind uint8

const (
	NtfFeatureExchange NtfKind = iota + 1
	NtfVersionExchange
	NtfPHYUpdate
	NtfDataLength
	NtfEncChange
	NtfEncKeyRefresh
	NtfLTKRequest
	NtfConnParamReq
	NtfConnUpdate
	NtfCTE
	NtfPeriodicSync
	NtfTerminated
)

var ntfName = map[NtfKind]string{
	NtfFeatureExchange: "feature exchange",
	NtfVersionExchange: "version exchange",
	NtfPHYUpdate:       "phy update",
	NtfDataLength:      "data length change",
	NtfEncChange:       "encryption change",
	NtfEncKeyRefresh:   "encryption key refresh",
	NtfLTKRequest:      "ltk request",
	NtfConnParamReq:    "connection parameter request",
	NtfConnUpdate:      "connection update",
	NtfCTE:             "cte response",
	NtfPeriodicSync:    "periodic sync transfer",
	NtfTerminated:      "terminated",
}

func (k NtfKind) String() string { return ntfName[k] }

// DataLength is the octet and time quadruple negotiated by the data
// length update procedure.
type DataLength struct {
	MaxTxOctets uint16
	MaxTxTime   uint16
	MaxRxOctets uint16
	MaxRxTime   uint16
}

// ConnParams are the connection timing parameters, in HCI units.
type ConnParams struct {
	IntervalMin uint16
	IntervalMax uint16
	Interval    uint16
	Latency     uint16
	Timeout     uint16
}

// PeriodicSyncInfo is the content of an LL_PERIODIC_SYNC_IND.
type PeriodicSyncInfo = pdu.PeriodicSync

// Notification is one procedure outcome delivered to the host. Only the
// fields that belong to Kind are set. The host must hand every
// notification back with Controller.ReleaseNotification, and must not
// keep it afterwards.
type Notification struct {
	Handle uint16
	Kind   NtfKind
	Status ErrorCode

	Features uint64
	Version  VersionInfo
	TxPHY    uint8
	RxPHY    uint8
	Length   DataLength
	Params   ConnParams
	Rand     [8]byte
	EDIV     uint16
	Sync     PeriodicSyncInfo

	slot pool.Handle
}

func (n *Notification) String() string {
	if n.Status != Success {
		return fmt.Sprintf("%s: %v", n.Kind, n.Status)
	}
	switch n.Kind {
	case NtfFeatureExchange:
		return fmt.Sprintf("%s: features 0x%016X", n.Kind, n.Features)
	case NtfVersionExchange:
		return fmt.Sprintf("%s: vers 0x%02X comp 0x%04X sub 0x%04X", n.Kind, n.Version.VersNr, n.Version.CompID, n.Version.SubVersNr)
	case NtfPHYUpdate:
		return fmt.Sprintf("%s: tx 0x%02X rx 0x%02X", n.Kind, n.TxPHY, n.RxPHY)
	case NtfDataLength:
		return fmt.Sprintf("%s: %+v", n.Kind, n.Length)
	case NtfConnParamReq, NtfConnUpdate:
		return fmt.Sprintf("%s: %+v", n.Kind, n.Params)
	case NtfLTKRequest:
		return fmt.Sprintf("%s: rand % X ediv 0x%04X", n.Kind, n.Rand, n.EDIV)
	case NtfPeriodicSync:
		return fmt.Sprintf("%s: id %d sid %d", n.Kind, n.Sync.ID, n.Sync.SID())
	}
	return n.Kind.String()
}
