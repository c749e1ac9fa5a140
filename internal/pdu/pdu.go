// Package pdu encodes and decodes LL control PDUs.
//
// A control PDU on the wire is one opcode byte followed by a fixed-length
// payload. Multi-octet fields are little-endian.
package pdu

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

var (
	ErrEmpty         = errors.New("empty control pdu")
	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrInvalidLength = errors.New("invalid length")
)

// PDU is a typed control PDU payload.
type PDU interface {
	Opcode() Opcode
	Len() int
	Marshal([]byte)
}

type unmarshaler interface {
	PDU
	Unmarshal([]byte) error
}

// Encode returns the wire form of p: opcode followed by payload.
func Encode(p PDU) []byte {
	b := make([]byte, 1+p.Len())
	b[0] = byte(p.Opcode())
	p.Marshal(b[1:])
	return b
}

// Parse decodes one control PDU. The returned error wraps ErrEmpty,
// ErrUnknownOpcode or ErrInvalidLength.
func Parse(b []byte) (PDU, error) {
	if len(b) == 0 {
		return nil, ErrEmpty
	}
	op := Opcode(b[0])
	f, ok := factory[op]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownOpcode, "0x%02X", b[0])
	}
	p := f()
	if len(b)-1 != p.Len() {
		return nil, errors.Wrapf(ErrInvalidLength, "%s: got %d want %d", op, len(b)-1, p.Len())
	}
	if err := p.Unmarshal(b[1:]); err != nil {
		return nil, errors.Wrapf(err, "%s", op)
	}
	return p, nil
}

var factory = map[Opcode]func() unmarshaler{
	ConnUpdateInd:        func() unmarshaler { return &ConnUpdate{} },
	ChannelMapInd:        func() unmarshaler { return &ChannelMap{} },
	TerminateInd:         func() unmarshaler { return &Terminate{} },
	EncReq:               func() unmarshaler { return &EncRequest{} },
	EncRsp:               func() unmarshaler { return &EncResponse{} },
	StartEncReq:          func() unmarshaler { return &Empty{Op: StartEncReq} },
	StartEncRsp:          func() unmarshaler { return &Empty{Op: StartEncRsp} },
	UnknownRsp:           func() unmarshaler { return &Unknown{} },
	FeatureReq:           func() unmarshaler { return &Features{Op: FeatureReq} },
	FeatureRsp:           func() unmarshaler { return &Features{Op: FeatureRsp} },
	PauseEncReq:          func() unmarshaler { return &Empty{Op: PauseEncReq} },
	PauseEncRsp:          func() unmarshaler { return &Empty{Op: PauseEncRsp} },
	VersionInd:           func() unmarshaler { return &Version{} },
	RejectInd:            func() unmarshaler { return &Reject{} },
	PeripheralFeatureReq: func() unmarshaler { return &Features{Op: PeripheralFeatureReq} },
	ConnParamReq:         func() unmarshaler { return &ConnParam{Op: ConnParamReq} },
	ConnParamRsp:         func() unmarshaler { return &ConnParam{Op: ConnParamRsp} },
	RejectExtInd:         func() unmarshaler { return &RejectExt{} },
	PingReq:              func() unmarshaler { return &Empty{Op: PingReq} },
	PingRsp:              func() unmarshaler { return &Empty{Op: PingRsp} },
	LengthReq:            func() unmarshaler { return &Length{Op: LengthReq} },
	LengthRsp:            func() unmarshaler { return &Length{Op: LengthRsp} },
	PHYReq:               func() unmarshaler { return &PHYs{Op: PHYReq} },
	PHYRsp:               func() unmarshaler { return &PHYs{Op: PHYRsp} },
	PHYUpdateInd:         func() unmarshaler { return &PHYUpdate{} },
	MinUsedChanInd:       func() unmarshaler { return &MinUsedChans{} },
	CTEReq:               func() unmarshaler { return &CTERequest{} },
	CTERsp:               func() unmarshaler { return &Empty{Op: CTERsp} },
	PeriodicSyncInd:      func() unmarshaler { return &PeriodicSync{} },
}

type order struct{ binary.ByteOrder }

var o = order{binary.LittleEndian}

func (o order) PutUint8(b []byte, v uint8) { b[0] = v }

// readFixed fills a fixed-layout struct from b.
func readFixed(b []byte, v interface{}) error {
	return binary.Read(bytes.NewReader(b), binary.LittleEndian, v)
}

// writeFixed encodes a fixed-layout struct into b.
func writeFixed(b []byte, v interface{}) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	copy(b, buf.Bytes())
}

// Empty carries an opcode with no payload.
type Empty struct{ Op Opcode }

func (p Empty) Opcode() Opcode           { return p.Op }
func (p Empty) Len() int                 { return 0 }
func (p Empty) Marshal(b []byte)         {}
func (p *Empty) Unmarshal(b []byte) error { return nil }

// ConnUpdate is LL_CONNECTION_UPDATE_IND.
type ConnUpdate struct {
	WinSize   uint8
	WinOffset uint16
	Interval  uint16
	Latency   uint16
	Timeout   uint16
	Instant   uint16
}

func (p ConnUpdate) Opcode() Opcode { return ConnUpdateInd }
func (p ConnUpdate) Len() int       { return 11 }
func (p ConnUpdate) Marshal(b []byte) {
	o.PutUint8(b, p.WinSize)
	o.PutUint16(b[1:], p.WinOffset)
	o.PutUint16(b[3:], p.Interval)
	o.PutUint16(b[5:], p.Latency)
	o.PutUint16(b[7:], p.Timeout)
	o.PutUint16(b[9:], p.Instant)
}
func (p *ConnUpdate) Unmarshal(b []byte) error { return readFixed(b, p) }

// ChannelMap is LL_CHANNEL_MAP_IND.
type ChannelMap struct {
	ChM     [5]byte
	Instant uint16
}

func (p ChannelMap) Opcode() Opcode { return ChannelMapInd }
func (p ChannelMap) Len() int       { return 7 }
func (p ChannelMap) Marshal(b []byte) {
	copy(b, p.ChM[:])
	o.PutUint16(b[5:], p.Instant)
}
func (p *ChannelMap) Unmarshal(b []byte) error { return readFixed(b, p) }

// Terminate is LL_TERMINATE_IND.
type Terminate struct{ ErrorCode uint8 }

func (p Terminate) Opcode() Opcode            { return TerminateInd }
func (p Terminate) Len() int                  { return 1 }
func (p Terminate) Marshal(b []byte)          { o.PutUint8(b, p.ErrorCode) }
func (p *Terminate) Unmarshal(b []byte) error { p.ErrorCode = b[0]; return nil }

// EncRequest is LL_ENC_REQ. Byte arrays hold their values little-endian,
// exactly as on the wire.
type EncRequest struct {
	Rand [8]byte
	EDIV uint16
	SKDm [8]byte
	IVm  [4]byte
}

func (p EncRequest) Opcode() Opcode { return EncReq }
func (p EncRequest) Len() int       { return 22 }
func (p EncRequest) Marshal(b []byte) {
	copy(b, p.Rand[:])
	o.PutUint16(b[8:], p.EDIV)
	copy(b[10:], p.SKDm[:])
	copy(b[18:], p.IVm[:])
}
func (p *EncRequest) Unmarshal(b []byte) error { return readFixed(b, p) }

// EncResponse is LL_ENC_RSP.
type EncResponse struct {
	SKDs [8]byte
	IVs  [4]byte
}

func (p EncResponse) Opcode() Opcode { return EncRsp }
func (p EncResponse) Len() int       { return 12 }
func (p EncResponse) Marshal(b []byte) {
	copy(b, p.SKDs[:])
	copy(b[8:], p.IVs[:])
}
func (p *EncResponse) Unmarshal(b []byte) error { return readFixed(b, p) }

// Unknown is LL_UNKNOWN_RSP.
type Unknown struct{ UnknownType Opcode }

func (p Unknown) Opcode() Opcode            { return UnknownRsp }
func (p Unknown) Len() int                  { return 1 }
func (p Unknown) Marshal(b []byte)          { o.PutUint8(b, uint8(p.UnknownType)) }
func (p *Unknown) Unmarshal(b []byte) error { p.UnknownType = Opcode(b[0]); return nil }

// Features is LL_FEATURE_REQ, LL_FEATURE_RSP or LL_PERIPHERAL_FEATURE_REQ.
type Features struct {
	Op       Opcode
	Features uint64
}

func (p Features) Opcode() Opcode             { return p.Op }
func (p Features) Len() int                   { return 8 }
func (p Features) Marshal(b []byte)           { o.PutUint64(b, p.Features) }
func (p *Features) Unmarshal(b []byte) error { p.Features = o.Uint64(b); return nil }

// Version is LL_VERSION_IND.
type Version struct {
	VersNr    uint8
	CompID    uint16
	SubVersNr uint16
}

func (p Version) Opcode() Opcode { return VersionInd }
func (p Version) Len() int       { return 5 }
func (p Version) Marshal(b []byte) {
	o.PutUint8(b, p.VersNr)
	o.PutUint16(b[1:], p.CompID)
	o.PutUint16(b[3:], p.SubVersNr)
}
func (p *Version) Unmarshal(b []byte) error { return readFixed(b, p) }

// Reject is LL_REJECT_IND.
type Reject struct{ ErrorCode uint8 }

func (p Reject) Opcode() Opcode            { return RejectInd }
func (p Reject) Len() int                  { return 1 }
func (p Reject) Marshal(b []byte)          { o.PutUint8(b, p.ErrorCode) }
func (p *Reject) Unmarshal(b []byte) error { p.ErrorCode = b[0]; return nil }

// RejectExt is LL_REJECT_EXT_IND.
type RejectExt struct {
	RejectOpcode Opcode
	ErrorCode    uint8
}

func (p RejectExt) Opcode() Opcode { return RejectExtInd }
func (p RejectExt) Len() int       { return 2 }
func (p RejectExt) Marshal(b []byte) {
	o.PutUint8(b, uint8(p.RejectOpcode))
	o.PutUint8(b[1:], p.ErrorCode)
}
func (p *RejectExt) Unmarshal(b []byte) error {
	p.RejectOpcode, p.ErrorCode = Opcode(b[0]), b[1]
	return nil
}

// ConnParam is LL_CONNECTION_PARAM_REQ or LL_CONNECTION_PARAM_RSP.
type ConnParam struct {
	Op Opcode
	ConnParamBody
}

// ConnParamBody is the wire layout shared by both connection parameter PDUs.
type ConnParamBody struct {
	IntervalMin             uint16
	IntervalMax             uint16
	Latency                 uint16
	Timeout                 uint16
	PreferredPeriodicity    uint8
	ReferenceConnEventCount uint16
	Offsets                 [6]uint16
}

func (p ConnParam) Opcode() Opcode             { return p.Op }
func (p ConnParam) Len() int                   { return 23 }
func (p ConnParam) Marshal(b []byte)           { writeFixed(b, &p.ConnParamBody) }
func (p *ConnParam) Unmarshal(b []byte) error { return readFixed(b, &p.ConnParamBody) }

// Length is LL_LENGTH_REQ or LL_LENGTH_RSP.
type Length struct {
	Op          Opcode
	MaxRxOctets uint16
	MaxRxTime   uint16
	MaxTxOctets uint16
	MaxTxTime   uint16
}

func (p Length) Opcode() Opcode { return p.Op }
func (p Length) Len() int       { return 8 }
func (p Length) Marshal(b []byte) {
	o.PutUint16(b, p.MaxRxOctets)
	o.PutUint16(b[2:], p.MaxRxTime)
	o.PutUint16(b[4:], p.MaxTxOctets)
	o.PutUint16(b[6:], p.MaxTxTime)
}
func (p *Length) Unmarshal(b []byte) error {
	p.MaxRxOctets = o.Uint16(b)
	p.MaxRxTime = o.Uint16(b[2:])
	p.MaxTxOctets = o.Uint16(b[4:])
	p.MaxTxTime = o.Uint16(b[6:])
	return nil
}

// PHYs is LL_PHY_REQ or LL_PHY_RSP.
type PHYs struct {
	Op     Opcode
	TxPHYs uint8
	RxPHYs uint8
}

func (p PHYs) Opcode() Opcode { return p.Op }
func (p PHYs) Len() int       { return 2 }
func (p PHYs) Marshal(b []byte) {
	o.PutUint8(b, p.TxPHYs)
	o.PutUint8(b[1:], p.RxPHYs)
}
func (p *PHYs) Unmarshal(b []byte) error {
	p.TxPHYs, p.RxPHYs = b[0], b[1]
	return nil
}

// PHYUpdate is LL_PHY_UPDATE_IND. A zero PHY field means no change in that
// direction.
type PHYUpdate struct {
	CToP    uint8
	PToC    uint8
	Instant uint16
}

func (p PHYUpdate) Opcode() Opcode { return PHYUpdateInd }
func (p PHYUpdate) Len() int       { return 4 }
func (p PHYUpdate) Marshal(b []byte) {
	o.PutUint8(b, p.CToP)
	o.PutUint8(b[1:], p.PToC)
	o.PutUint16(b[2:], p.Instant)
}
func (p *PHYUpdate) Unmarshal(b []byte) error { return readFixed(b, p) }

// MinUsedChans is LL_MIN_USED_CHANNELS_IND.
type MinUsedChans struct {
	PHYs            uint8
	MinUsedChannels uint8
}

func (p MinUsedChans) Opcode() Opcode { return MinUsedChanInd }
func (p MinUsedChans) Len() int       { return 2 }
func (p MinUsedChans) Marshal(b []byte) {
	o.PutUint8(b, p.PHYs)
	o.PutUint8(b[1:], p.MinUsedChannels)
}
func (p *MinUsedChans) Unmarshal(b []byte) error {
	p.PHYs, p.MinUsedChannels = b[0], b[1]
	return nil
}

// CTERequest is LL_CTE_REQ. MinLen occupies bits 0-4 and Type bits 6-7.
type CTERequest struct {
	MinLen uint8
	Type   uint8
}

func (p CTERequest) Opcode() Opcode   { return CTEReq }
func (p CTERequest) Len() int         { return 1 }
func (p CTERequest) Marshal(b []byte) { b[0] = p.MinLen&0x1F | (p.Type&0x03)<<6 }
func (p *CTERequest) Unmarshal(b []byte) error {
	p.MinLen, p.Type = b[0]&0x1F, b[0]>>6
	return nil
}

// PeriodicSync is LL_PERIODIC_SYNC_IND.
type PeriodicSync struct {
	ID                 uint16
	SyncInfo           [18]byte
	ConnEventCount     uint16
	LastPAEventCounter uint16
	SIDATypeSCA        uint8
	PHY                uint8
	AdvA               [6]byte
	SyncConnEventCount uint16
}

func (p PeriodicSync) Opcode() Opcode             { return PeriodicSyncInd }
func (p PeriodicSync) Len() int                   { return 34 }
func (p PeriodicSync) Marshal(b []byte)           { writeFixed(b, &p) }
func (p *PeriodicSync) Unmarshal(b []byte) error { return readFixed(b, p) }

// SID returns the advertising set identifier.
func (p PeriodicSync) SID() uint8 { return p.SIDATypeSCA & 0x0F }

// AType returns the advertiser address type.
func (p PeriodicSync) AType() uint8 { return p.SIDATypeSCA >> 4 & 0x01 }

// SCA returns the sleep clock accuracy field.
func (p PeriodicSync) SCA() uint8 { return p.SIDATypeSCA >> 5 }
