package rzx

import (
	"hash/crc32"
	"io"
)

const cipherMagic = 134775813

// encryptionHeaderSize is the length of the keystream-check header preceding
// the encrypted payload of a traditionally encrypted entry.
const encryptionHeaderSize = 12

// zipCipher implements the traditional PKWARE stream cipher.
type zipCipher struct {
	k0, k1, k2 uint32
}

func newZipCipher(password string) *zipCipher {
	z := &zipCipher{
		k0: 0x12345678,
		k1: 0x23456789,
		k2: 0x34567890,
	}
	for i := 0; i < len(password); i++ {
		z.updateKeys(password[i])
	}
	return z
}

func (z *zipCipher) updateKeys(b byte) {
	z.k0 = crc32.IEEETable[(z.k0^uint32(b))&0xff] ^ (z.k0 >> 8)
	z.k1 = z.k1 + (z.k0 & 0xff)
	z.k1 = z.k1*cipherMagic + 1
	z.k2 = crc32.IEEETable[(z.k2^uint32(byte(z.k1>>24)))&0xff] ^ (z.k2 >> 8)
}

func (z *zipCipher) magicByte() byte {
	t := z.k2 | 2
	return byte((t * (t ^ 1)) >> 8)
}

func (z *zipCipher) Encrypt(buf []byte) {
	for i, b := range buf {
		c := b ^ z.magicByte()
		z.updateKeys(b)
		buf[i] = c
	}
}

func (z *zipCipher) Decrypt(buf []byte) {
	for i, c := range buf {
		b := c ^ z.magicByte()
		z.updateKeys(b)
		buf[i] = b
	}
}

// decryptReader decrypts the stream cipher payload that follows the 12-byte
// keystream-check header.
type decryptReader struct {
	src    io.Reader
	cipher *zipCipher
}

func (r *decryptReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		r.cipher.Decrypt(p[:n])
	}
	return n, err
}
