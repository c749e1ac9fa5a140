package llcp

// This file includes constants from the Bluetooth Core Specification,
// Vol 6, Part B.

// Role is the link layer role of a connection. It is fixed for the
// lifetime of the connection.
type Role uint8

const (
	Central Role = iota
	Peripheral
)

func (r Role) String() string {
	if r == Central {
		return "central"
	}
	return "peripheral"
}

// LL feature set bits.
const (
	FeatEncryption        uint64 = 1 << 0
	FeatConnParamReq      uint64 = 1 << 1
	FeatExtRejectInd      uint64 = 1 << 2
	FeatPeripheralFeatReq uint64 = 1 << 3
	FeatLEPing            uint64 = 1 << 4
	FeatDataLength        uint64 = 1 << 5
	FeatPHY2M             uint64 = 1 << 8
	FeatPHYCoded          uint64 = 1 << 11
	FeatMinUsedChannels   uint64 = 1 << 16
	FeatCTERequest        uint64 = 1 << 17
	FeatCTEResponse       uint64 = 1 << 18
	FeatPASTSender        uint64 = 1 << 24
	FeatPASTRecipient     uint64 = 1 << 25
	featValidMask         uint64 = 1<<40 - 1

	DefaultFeatures = FeatEncryption | FeatConnParamReq | FeatExtRejectInd | FeatPeripheralFeatReq | FeatLEPing | FeatDataLength | FeatPHY2M | FeatPHYCoded | FeatMinUsedChannels | FeatCTERequest | FeatCTEResponse | FeatPASTSender | FeatPASTRecipient
)

// PHY bit masks as carried in LL_PHY_REQ and LL_PHY_RSP.
const (
	PHY1M    uint8 = 0x01
	PHY2M    uint8 = 0x02
	PHYCoded uint8 = 0x04
	phyAll         = PHY1M | PHY2M | PHYCoded
)

// Data length limits.
const (
	DefaultOctets uint16 = 27
	DefaultTime   uint16 = 328
	MaxOctets     uint16 = 251
	MaxTime       uint16 = 2120
	MaxTimeCoded  uint16 = 17040
)

// CTE types as carried in LL_CTE_REQ, and the matching bits of the
// response enable mask.
const (
	CTETypeAoA    uint8 = 0
	CTETypeAoD1us uint8 = 1
	CTETypeAoD2us uint8 = 2
	CTEMinLen     uint8 = 2
	CTEMaxLen     uint8 = 20
	CTEMaskAoA    uint8 = 1 << CTETypeAoA
	CTEMaskAoD1us uint8 = 1 << CTETypeAoD1us
	CTEMaskAoD2us uint8 = 1 << CTETypeAoD2us
)

const (
	defaultInstantDelta uint16 = 6
	instantMaxDelta     uint16 = 0x7FFF
)

// Connection parameter ranges, in their HCI units.
const (
	connIntervalMin = 0x0006
	connIntervalMax = 0x0C80
	connLatencyMax  = 0x01F3
	connTimeoutMin  = 0x000A
	connTimeoutMax  = 0x0C80
)

// DefaultChannelMap enables all 37 data channels.
var DefaultChannelMap = [5]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x1F}

// versNr maps LL VersNr values to core specification releases.
var versNr = map[uint8]string{
	0x06: "4.0.0",
	0x07: "4.1.0",
	0x08: "4.2.0",
	0x09: "5.0.0",
	0x0A: "5.1.0",
	0x0B: "5.2.0",
	0x0C: "5.3.0",
	0x0D: "5.4.0",
	0x0E: "6.0.0",
}
