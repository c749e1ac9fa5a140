package llcp

import (
	"crypto/aes"
	"crypto/rand"

	"github.com/pkg/errors"
)

// Crypto provides the random numbers and the block cipher used by the
// encryption procedures.
type Crypto interface {
	// Rand fills b with cryptographically secure random bytes.
	Rand(b []byte) error
	// Encrypt is AES-128 in the byte order of FIPS-197: key and clear are
	// most significant octet first.
	Encrypt(key, clear [16]byte) ([16]byte, error)
}

type stdCrypto struct{}

func (stdCrypto) Rand(b []byte) error {
	_, err := rand.Read(b)
	return err
}

func (stdCrypto) Encrypt(key, clear [16]byte) ([16]byte, error) {
	var out [16]byte
	blk, err := aes.NewCipher(key[:])
	if err != nil {
		return out, err
	}
	blk.Encrypt(out[:], clear[:])
	return out, nil
}

// CCM is the state of one direction of the packet cipher.
type CCM struct {
	// Key is the session key, most significant octet first.
	Key [16]byte
	// IV is IVm||IVs, little-endian as sent on air.
	IV [8]byte
	// Counter is the packet counter.
	Counter uint64
	// Direction is 1 for Central to Peripheral packets.
	Direction uint8
}

// Directions of the CCM nonce.
const (
	dirPeripheralToCentral uint8 = 0
	dirCentralToPeripheral uint8 = 1
)

// sessionKey derives SK from the LTK and both SKD halves. All inputs are
// little-endian as carried over HCI and on air.
func sessionKey(cr Crypto, ltk [16]byte, skdm, skds [8]byte) ([16]byte, error) {
	var skd [16]byte
	copy(skd[:8], skdm[:])
	copy(skd[8:], skds[:])
	sk, err := cr.Encrypt(reverse16(ltk), reverse16(skd))
	if err != nil {
		return sk, errors.Wrap(err, "session key")
	}
	return sk, nil
}

// sessionIV concatenates both IV halves.
func sessionIV(ivm, ivs [4]byte) [8]byte {
	var iv [8]byte
	copy(iv[:4], ivm[:])
	copy(iv[4:], ivs[:])
	return iv
}

// reverse returns a reversed copy of u.
func reverse(u []byte) []byte {
	l := len(u)
	b := make([]byte, l)
	for i := 0; i < l/2+1; i++ {
		b[i], b[l-i-1] = u[l-i-1], u[i]
	}
	return b
}

func reverse16(u [16]byte) [16]byte {
	var b [16]byte
	copy(b[:], reverse(u[:]))
	return b
}
