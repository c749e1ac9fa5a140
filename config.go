package llcp

import (
	"github.com/BurntSushi/toml"
	"github.com/blang/semver"
	"github.com/pkg/errors"
)

// Config holds controller-wide settings.
type Config struct {
	TxBuffers      int    `toml:"tx_buffers"`
	NtfBuffers     int    `toml:"ntf_buffers"`
	LocalContexts  int    `toml:"local_contexts"`
	RemoteContexts int    `toml:"remote_contexts"`
	Features       uint64 `toml:"features"`
	CoreVersion    string `toml:"core_version"`
	CompanyID      uint16 `toml:"company_id"`
	SubVersion     uint16 `toml:"sub_version"`
	MaxTxOctets    uint16 `toml:"max_tx_octets"`
	MaxTxTime      uint16 `toml:"max_tx_time"`
	MaxRxOctets    uint16 `toml:"max_rx_octets"`
	MaxRxTime      uint16 `toml:"max_rx_time"`
	PreferredTxPHY uint8  `toml:"preferred_tx_phys"`
	PreferredRxPHY uint8  `toml:"preferred_rx_phys"`
	InstantDelta   uint16 `toml:"instant_delta"`
	LogLevel       string `toml:"log_level"`
}

// DefaultConfig returns the controller defaults.
func DefaultConfig() Config {
	return Config{
		TxBuffers:      4,
		NtfBuffers:     4,
		LocalContexts:  6,
		RemoteContexts: 4,
		Features:       DefaultFeatures,
		CoreVersion:    "5.3.0",
		CompanyID:      0x05F1,
		SubVersion:     0xFFFF,
		MaxTxOctets:    MaxOctets,
		MaxTxTime:      MaxTime,
		MaxRxOctets:    MaxOctets,
		MaxRxTime:      MaxTime,
		PreferredTxPHY: PHY1M | PHY2M,
		PreferredRxPHY: PHY1M | PHY2M,
		InstantDelta:   defaultInstantDelta,
		LogLevel:       "warn",
	}
}

// LoadConfig reads a TOML file and overlays it on DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrap(err, "load llcp config")
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return Config{}, errors.Errorf("load llcp config: unknown key %q", keys[0].String())
	}
	return cfg, cfg.Validate()
}

// DecodeConfig overlays a TOML table that was captured as a primitive,
// for files that carry more than one configuration.
func DecodeConfig(md toml.MetaData, prim toml.Primitive) (Config, error) {
	cfg := DefaultConfig()
	if err := md.PrimitiveDecode(prim, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode llcp config")
	}
	return cfg, cfg.Validate()
}

// Validate checks that the configuration describes a usable controller.
func (c Config) Validate() error {
	switch {
	case c.TxBuffers < 1:
		return errors.Errorf("tx_buffers: %d, need at least 1", c.TxBuffers)
	case c.NtfBuffers < 1:
		return errors.Errorf("ntf_buffers: %d, need at least 1", c.NtfBuffers)
	case c.LocalContexts < 1 || c.RemoteContexts < 1:
		return errors.Errorf("contexts: local %d remote %d, need at least 1 each", c.LocalContexts, c.RemoteContexts)
	case c.MaxTxOctets < DefaultOctets || c.MaxTxOctets > MaxOctets:
		return errors.Errorf("max_tx_octets: %d out of range", c.MaxTxOctets)
	case c.MaxRxOctets < DefaultOctets || c.MaxRxOctets > MaxOctets:
		return errors.Errorf("max_rx_octets: %d out of range", c.MaxRxOctets)
	case c.MaxTxTime < DefaultTime || c.MaxRxTime < DefaultTime:
		return errors.Errorf("max time below %d", DefaultTime)
	case c.PreferredTxPHY&^phyAll != 0 || c.PreferredRxPHY&^phyAll != 0:
		return errors.New("preferred phys: reserved bits set")
	case c.InstantDelta == 0 || c.InstantDelta >= instantMaxDelta:
		return errors.Errorf("instant_delta: %d out of range", c.InstantDelta)
	}
	_, err := c.versNr()
	return err
}

// versNr maps CoreVersion to the VersNr byte sent in LL_VERSION_IND.
func (c Config) versNr() (uint8, error) {
	v, err := semver.ParseTolerant(c.CoreVersion)
	if err != nil {
		return 0, errors.Wrapf(err, "core_version %q", c.CoreVersion)
	}
	for nr, s := range versNr {
		rel := semver.MustParse(s)
		if rel.Major == v.Major && rel.Minor == v.Minor {
			return nr, nil
		}
	}
	return 0, errors.Errorf("core_version %q: no LL version number", c.CoreVersion)
}

// VersionInfo is the content of an LL_VERSION_IND.
type VersionInfo struct {
	VersNr    uint8
	CompID    uint16
	SubVersNr uint16
}

// Core returns the core specification release named by VersNr.
func (v VersionInfo) Core() (semver.Version, error) {
	s, ok := versNr[v.VersNr]
	if !ok {
		return semver.Version{}, errors.Errorf("unknown VersNr 0x%02X", v.VersNr)
	}
	return semver.Parse(s)
}

// An Option configures a Controller.
type Option func(*Controller) error

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Controller) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		c.cfg = cfg
		return nil
	}
}

// WithTxBuffers sets the number of shared control PDU Tx buffers.
func WithTxBuffers(n int) Option {
	return func(c *Controller) error { c.cfg.TxBuffers = n; return nil }
}

// WithNtfBuffers sets the number of host notification buffers.
func WithNtfBuffers(n int) Option {
	return func(c *Controller) error { c.cfg.NtfBuffers = n; return nil }
}

// WithContexts sets the number of local and remote procedure contexts.
func WithContexts(local, remote int) Option {
	return func(c *Controller) error {
		c.cfg.LocalContexts, c.cfg.RemoteContexts = local, remote
		return nil
	}
}

// WithFeatures sets the local LL feature set.
func WithFeatures(f uint64) Option {
	return func(c *Controller) error { c.cfg.Features = f; return nil }
}

// WithCrypto replaces the random number and block cipher provider.
func WithCrypto(cr Crypto) Option {
	return func(c *Controller) error {
		if cr == nil {
			return errors.New("nil crypto provider")
		}
		c.crypto = cr
		return nil
	}
}
