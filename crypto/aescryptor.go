// Package crypto implements the encryption core of the packaging engine:
// AES block cryptors with CENC-style IV management, the subsample
// generator, and the EncryptionHandler that wires them together with a
// KeySource to protect MediaSamples as they pass through the pipeline.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/status"
)

const blockSize = aes.BlockSize // 16

// IVConstantMode selects whether a CbcCryptor resets to its initial IV on
// every Crypt call or chains the IV across successive calls.
type IVConstantMode int

// IV chaining modes for CbcCryptor.
const (
	UseConstantIV IVConstantMode = iota
	DontUseConstantIV
)

// PaddingMode selects the CBC padding scheme.
type PaddingMode int

// Supported CBC padding schemes.
const (
	NoPadding PaddingMode = iota
	Pkcs5Padding
	CiphertextStealing
)

func validKeySize(key []byte) bool {
	switch len(key) {
	case 16, 24, 32:
		return true
	default:
		return false
	}
}

// CtrCryptor implements AES-CTR encryption/decryption (CTR mode is
// involutory, so one type serves both directions) with CENC-style running
// IV management: the counter advances as blocks are consumed, and the
// caller can query how far into the current block the last Crypt call
// left off, needed to thread CTR state across samples within a segment.
type CtrCryptor struct {
	block       cipher.Block
	iv          [blockSize]byte
	ivSize      int
	blockOffset int
}

// NewCtrCryptor builds an uninitialized CtrCryptor; call InitializeWithIV
// before use.
func NewCtrCryptor() *CtrCryptor { return &CtrCryptor{} }

// InitializeWithIV configures the cryptor with a key (16/24/32 bytes) and
// an initial IV (8 or 16 bytes, per CENC). An 8-byte IV is treated as the
// high 8 bytes of a 16-byte counter block with the low 8 bytes zeroed.
func (c *CtrCryptor) InitializeWithIV(key, iv []byte) error {
	if !validKeySize(key) {
		return status.Newf(status.EncryptionError, "unsupported AES key size %d", len(key))
	}
	if len(iv) != 8 && len(iv) != 16 {
		return status.Newf(status.EncryptionError, "unsupported CTR IV size %d", len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return status.Wrap(status.EncryptionError, err, "aes.NewCipher")
	}
	c.block = block
	c.ivSize = len(iv)
	var buf [blockSize]byte
	copy(buf[:], iv)
	c.iv = buf
	c.blockOffset = 0
	return nil
}

// SetBlockOffset restores the byte offset into the current counter block,
// used to resume CTR state threaded in from a previous sample.
func (c *CtrCryptor) SetBlockOffset(offset int) { c.blockOffset = offset % blockSize }

// BlockOffset returns the number of bytes consumed into the current
// counter block by the most recent Crypt call.
func (c *CtrCryptor) BlockOffset() int { return c.blockOffset }

// IV returns the current counter IV, in the same size it was initialized
// with.
func (c *CtrCryptor) IV() []byte {
	out := make([]byte, c.ivSize)
	copy(out, c.iv[:c.ivSize])
	return out
}

// Crypt XORs input with the AES-CTR keystream, writing to output (which
// may alias input), and advances the running block offset.
func (c *CtrCryptor) Crypt(input, output []byte) error {
	if c.block == nil {
		return status.New(status.EncryptionError, "CtrCryptor not initialized")
	}
	if len(output) < len(input) {
		return status.New(status.EncryptionError, "output buffer too small")
	}
	stream := cipher.NewCTR(c.block, c.iv[:])
	// Skip blockOffset bytes of keystream to resume mid-block.
	if c.blockOffset > 0 {
		discard := make([]byte, c.blockOffset)
		stream.XORKeyStream(discard, discard)
	}
	stream.XORKeyStream(output[:len(input)], input)
	consumed := c.blockOffset + len(input)
	blocksConsumed := consumed / blockSize
	c.blockOffset = consumed % blockSize
	c.advanceIV(blocksConsumed)
	return nil
}

// advanceIV advances the counter by n blocks: for a 16-byte IV, the whole
// 128-bit counter increments by n (CTR mode proper); for an 8-byte IV, the
// spec treats it as a per-block counter that increments by n in its own
// right (the CENC "8-byte IV" convention), per UpdateIV's original
// contract of "advance by N (16-byte IV) or by 1 (8-byte IV)" being folded
// into a single advance-by-blocksConsumed call here.
func (c *CtrCryptor) advanceIV(n int) {
	if n == 0 {
		return
	}
	if c.ivSize == 16 {
		addBigEndian(c.iv[:], uint64(n))
		return
	}
	// 8-byte IV: increment the 8-byte counter held in the low half of the
	// block, matching CENC's per-block counter convention.
	addBigEndian(c.iv[8:16], uint64(n))
}

// UpdateIV explicitly advances the IV by n blocks without performing a
// Crypt call and resets the position within the current block to zero.
func (c *CtrCryptor) UpdateIV(n int) {
	c.advanceIV(n)
	c.blockOffset = 0
}

func addBigEndian(b []byte, n uint64) {
	carry := n
	for i := len(b) - 1; i >= 0 && carry > 0; i-- {
		sum := uint64(b[i]) + carry
		b[i] = byte(sum)
		carry = sum >> 8
	}
}

// CbcCryptor implements AES-CBC encryption and decryption with a
// configurable padding mode and IV chaining mode.
type CbcCryptor struct {
	block      cipher.Block
	initialIV  [blockSize]byte
	iv         [blockSize]byte
	padding    PaddingMode
	constantIV IVConstantMode
}

// NewCbcCryptor builds an uninitialized CbcCryptor; call InitializeWithIV
// before use.
func NewCbcCryptor(padding PaddingMode, mode IVConstantMode) *CbcCryptor {
	return &CbcCryptor{padding: padding, constantIV: mode}
}

// InitializeWithIV configures the cryptor with a key and a 16-byte (or,
// for cbc1 compatibility, 8-byte zero-padded) IV.
func (c *CbcCryptor) InitializeWithIV(key, iv []byte) error {
	if !validKeySize(key) {
		return status.Newf(status.EncryptionError, "unsupported AES key size %d", len(key))
	}
	if len(iv) != 8 && len(iv) != 16 {
		return status.Newf(status.EncryptionError, "unsupported CBC IV size %d", len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return status.Wrap(status.EncryptionError, err, "aes.NewCipher")
	}
	c.block = block
	var buf [blockSize]byte
	copy(buf[:], iv)
	c.initialIV = buf
	c.iv = buf
	return nil
}

// resetIVIfConstant resets the chaining IV to the initial IV when running
// in UseConstantIV mode, called at the start of every Crypt call.
func (c *CbcCryptor) resetIVIfConstant() {
	if c.constantIV == UseConstantIV {
		c.iv = c.initialIV
	}
}

// Encrypt CBC-encrypts input, applying padding per the configured
// PaddingMode, and returns the ciphertext in a new slice of the padded
// length.
func (c *CbcCryptor) Encrypt(input []byte) ([]byte, error) {
	if c.block == nil {
		return nil, status.New(status.EncryptionError, "CbcCryptor not initialized")
	}
	c.resetIVIfConstant()

	var padded []byte
	switch c.padding {
	case NoPadding:
		if len(input)%blockSize != 0 {
			return nil, status.New(status.EncryptionError, "input not block-aligned for NoPadding")
		}
		padded = input
	case Pkcs5Padding:
		padded = pkcs5Pad(input)
	case CiphertextStealing:
		if len(input) < blockSize {
			return nil, status.New(status.EncryptionError, "ciphertext stealing requires at least one block")
		}
		padded = input // handled specially below
	}

	if c.padding == CiphertextStealing && len(input)%blockSize != 0 {
		return c.encryptWithCTS(input)
	}

	out := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(c.block, c.iv[:])
	mode.CryptBlocks(out, padded)
	if len(out) > 0 {
		copy(c.iv[:], out[len(out)-blockSize:])
	}
	return out, nil
}

// Decrypt CBC-decrypts input into the original plaintext, reversing the
// configured PaddingMode.
func (c *CbcCryptor) Decrypt(input []byte) ([]byte, error) {
	if c.block == nil {
		return nil, status.New(status.EncryptionError, "CbcCryptor not initialized")
	}
	c.resetIVIfConstant()

	if c.padding == CiphertextStealing && len(input)%blockSize != 0 {
		return c.decryptWithCTS(input)
	}

	if len(input)%blockSize != 0 {
		return nil, status.New(status.EncryptionError, "input not block-aligned")
	}
	out := make([]byte, len(input))
	nextIV := make([]byte, blockSize)
	if len(input) > 0 {
		copy(nextIV, input[len(input)-blockSize:])
	}
	mode := cipher.NewCBCDecrypter(c.block, c.iv[:])
	mode.CryptBlocks(out, input)
	copy(c.iv[:], nextIV)

	switch c.padding {
	case Pkcs5Padding:
		return pkcs5Unpad(out)
	default:
		return out, nil
	}
}

func pkcs5Pad(data []byte) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs5Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, status.New(status.EncryptionError, "invalid PKCS5 padded length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, status.New(status.EncryptionError, "invalid PKCS5 padding")
	}
	return data[:len(data)-padLen], nil
}

// encryptWithCTS implements CBC ciphertext stealing for input lengths that
// are not a multiple of the block size: all but the last two blocks are
// encrypted normally, then the final partial block is folded into the
// second-to-last block per CBC-CS3.
func (c *CbcCryptor) encryptWithCTS(input []byte) ([]byte, error) {
	n := len(input)
	tailLen := n % blockSize
	headLen := n - tailLen - blockSize
	if headLen < 0 {
		return nil, status.New(status.EncryptionError, "ciphertext stealing requires at least two partial blocks of input")
	}
	out := make([]byte, n)

	if headLen > 0 {
		mode := cipher.NewCBCEncrypter(c.block, c.iv[:])
		mode.CryptBlocks(out[:headLen], input[:headLen])
		copy(c.iv[:], out[headLen-blockSize:headLen])
	}

	secondLast := input[headLen : headLen+blockSize]
	last := input[headLen+blockSize:]

	encSecondLast := make([]byte, blockSize)
	mode := cipher.NewCBCEncrypter(c.block, c.iv[:])
	mode.CryptBlocks(encSecondLast, secondLast)

	padded := make([]byte, blockSize)
	copy(padded, last)
	for i := range padded {
		padded[i] ^= encSecondLast[i]
	}
	encLast := make([]byte, blockSize)
	c.block.Encrypt(encLast, padded)
	copy(out[headLen:headLen+blockSize], encLast)
	copy(out[headLen+blockSize:], encSecondLast[:tailLen])
	copy(c.iv[:], encLast)
	return out, nil
}

// decryptWithCTS reverses encryptWithCTS.
func (c *CbcCryptor) decryptWithCTS(input []byte) ([]byte, error) {
	n := len(input)
	tailLen := n % blockSize
	headLen := n - tailLen - blockSize
	if headLen < 0 {
		return nil, status.New(status.EncryptionError, "ciphertext stealing requires at least two partial blocks of input")
	}
	out := make([]byte, n)

	prevIV := c.iv
	if headLen > 0 {
		mode := cipher.NewCBCDecrypter(c.block, c.iv[:])
		mode.CryptBlocks(out[:headLen], input[:headLen])
		copy(prevIV[:], input[headLen-blockSize:headLen])
	}

	cLast := input[headLen : headLen+blockSize]
	decCLast := make([]byte, blockSize)
	ecbDecrypt(c.block, decCLast, cLast)

	cPartial := input[headLen+blockSize:]
	plainTail := xorBytes(decCLast[:tailLen], cPartial)
	stolenCipher := append(append([]byte{}, cPartial...), decCLast[tailLen:]...)

	plainSecondLast := make([]byte, blockSize)
	ecbDecrypt(c.block, plainSecondLast, stolenCipher)
	plainSecondLast = xorBytes(plainSecondLast, prevIV[:])

	copy(out[headLen:headLen+blockSize], plainSecondLast)
	copy(out[headLen+blockSize:], plainTail)
	copy(c.iv[:], cLast)
	return out, nil
}

func ecbDecrypt(block cipher.Block, dst, src []byte) {
	block.Decrypt(dst, src)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// GenerateRandomIV produces a cryptographically random IV of the size
// appropriate for scheme: 8 bytes for cenc, 16 bytes for cbc1/cens/cbcs.
func GenerateRandomIV(scheme media.ProtectionScheme) ([]byte, error) {
	size := 16
	if scheme == media.SchemeCenc {
		size = 8
	}
	iv := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, status.Wrap(status.EncryptionError, err, "generating random IV")
	}
	return iv, nil
}
