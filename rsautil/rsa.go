// Package rsautil implements textbook RSA key generation and
// fixed-width modular exponentiation for the crypto mutator. It is
// deliberately the bare one-way-function transform — no padding
// scheme, no handshake.
package rsautil

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"
)

// lengthSuffixLen is the width of the trailing length field Encrypt
// embeds in every block, so Decrypt can recover the exact original
// payload length regardless of how the plaintext integer's own
// leading bytes padded out under modular exponentiation.
const lengthSuffixLen = 2

// headroomLen reserves one byte below the modulus width so the
// plaintext integer is always strictly smaller than N, for any key and
// any payload content: a full-width block can, depending on N's exact
// bit pattern, encode an integer >= N, which Transform rejects.
const headroomLen = 1

// publicExponent is fixed at 65537, the conventional choice for its
// favorable bit pattern (few set bits, fast exponentiation).
var publicExponent = big.NewInt(65537)

// Key is a persisted RSA key half: {k, n}. The same struct shape holds
// both public (k=e) and private (k=d) halves.
type Key struct {
	K *big.Int `json:"k"`
	N *big.Int `json:"n"`
}

// GenerateKeyPair produces a public/private key pair with a bitLen-bit
// modulus: p and q are bitLen/2 and bitLen-bitLen/2 bits, e is fixed
// at 65537, and d is solved as e's modular inverse mod phi(n).
func GenerateKeyPair(bitLen int) (public, private Key, err error) {
	if bitLen < 16 {
		return Key{}, Key{}, errors.New("rsautil: bit length too small")
	}

	p, err := randPrimeCoprimeTo(bitLen/2, publicExponent)
	if err != nil {
		return Key{}, Key{}, errors.Wrap(err, "rsautil: generate p")
	}
	q, err := randPrimeCoprimeTo(bitLen-bitLen/2, publicExponent)
	if err != nil {
		return Key{}, Key{}, errors.Wrap(err, "rsautil: generate q")
	}

	n := new(big.Int).Mul(p, q)
	pMinus1 := new(big.Int).Sub(p, big.NewInt(1))
	qMinus1 := new(big.Int).Sub(q, big.NewInt(1))
	phiN := new(big.Int).Mul(pMinus1, qMinus1)

	d := new(big.Int).ModInverse(publicExponent, phiN)
	if d == nil {
		return Key{}, Key{}, errors.New("rsautil: e has no inverse mod phi(n); retry generation")
	}

	public = Key{K: new(big.Int).Set(publicExponent), N: new(big.Int).Set(n)}
	private = Key{K: d, N: new(big.Int).Set(n)}
	return public, private, nil
}

// randPrimeCoprimeTo returns a random prime of approximately bitLen
// bits such that (prime-1) is coprime to e, so that e is invertible
// mod phi(n).
func randPrimeCoprimeTo(bitLen int, e *big.Int) (*big.Int, error) {
	for {
		candidate, err := rand.Prime(rand.Reader, bitLen)
		if err != nil {
			return nil, err
		}
		pMinus1 := new(big.Int).Sub(candidate, big.NewInt(1))
		if new(big.Int).GCD(nil, nil, e, pMinus1).Cmp(big.NewInt(1)) == 0 {
			return candidate, nil
		}
	}
}

// ByteLen is the fixed ciphertext/plaintext block width the crypto
// mutator pads to: enough bytes to hold any residue mod N.
func ByteLen(key Key) int {
	return (key.N.BitLen() + 7) / 8
}

// Transform computes data^(key.K) mod key.N, treating data as a
// big-endian unsigned integer, and returns the result left-padded to
// ByteLen(key) bytes so ciphertext length never varies with the
// residue's magnitude.
func Transform(data []byte, key Key) ([]byte, error) {
	blockLen := ByteLen(key)
	if len(data) > blockLen {
		return nil, errors.Errorf("rsautil: block of %d bytes exceeds modulus width %d", len(data), blockLen)
	}

	m := new(big.Int).SetBytes(data)
	if m.Cmp(key.N) >= 0 {
		return nil, errors.New("rsautil: plaintext block is not smaller than modulus")
	}

	result := new(big.Int).Exp(m, key.K, key.N)

	out := make([]byte, blockLen)
	result.FillBytes(out)
	return out, nil
}

// MaxPayloadLen is the largest plaintext segment Encrypt will accept
// for this key: the modulus width, less the headroom byte that
// guarantees the encoded integer stays below N, less the trailing
// length suffix Encrypt embeds.
func MaxPayloadLen(key Key) int {
	return ByteLen(key) - headroomLen - lengthSuffixLen
}

// Encrypt frames payload as payload||length (length a fixed-width
// big-endian suffix) and runs it through Transform. Embedding the
// length lets Decrypt recover payload exactly, undoing the left-zero
// padding FillBytes applies whenever the plaintext integer's top bytes
// are zero.
func Encrypt(payload []byte, key Key) ([]byte, error) {
	if len(payload) > MaxPayloadLen(key) {
		return nil, errors.Errorf("rsautil: payload of %d bytes exceeds maximum %d for this key", len(payload), MaxPayloadLen(key))
	}

	frame := make([]byte, len(payload)+lengthSuffixLen)
	copy(frame, payload)
	binary.BigEndian.PutUint16(frame[len(payload):], uint16(len(payload)))

	return Transform(frame, key)
}

// Decrypt reverses Encrypt: it runs block through Transform, then
// reads the trailing length suffix to recover exactly the original
// payload, trimming the left-zero padding Transform's fixed-width
// output otherwise leaves in place.
func Decrypt(block []byte, key Key) ([]byte, error) {
	out, err := Transform(block, key)
	if err != nil {
		return nil, err
	}

	blockLen := len(out)
	if blockLen < lengthSuffixLen {
		return nil, errors.Errorf("rsautil: block of %d bytes too short to contain a length suffix", blockLen)
	}

	suffixStart := blockLen - lengthSuffixLen
	length := int(binary.BigEndian.Uint16(out[suffixStart:]))
	if length < 0 || length > suffixStart {
		return nil, errors.Errorf("rsautil: decoded payload length %d out of range for block width %d", length, blockLen)
	}

	return out[suffixStart-length : suffixStart], nil
}
