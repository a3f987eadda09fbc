package rzx

import (
	"io/fs"
	"strings"
	"time"
)

// Method is an entry's compression method.
type Method uint16

const (
	// Store is the passthrough method; bytes are kept as-is.
	Store Method = 0
	// Deflate is raw DEFLATE without a zlib/gzip wrapper.
	Deflate Method = 8
)

func (m Method) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	default:
		return "unsupported"
	}
}

const (
	// flagEncrypted marks entries using the traditional stream cipher.
	flagEncrypted = 0x1
	// flagDataDescriptor marks streamed entries whose local header size
	// fields are zeroed; sizes must come from the central directory.
	flagDataDescriptor = 0x8
)

// Entry describes one archive member as declared by the central directory.
//
// The central directory's sizes and CRC are authoritative; local headers are
// only used to locate the start of compressed data during extraction.
type Entry struct {
	// Name is the forward-slash-separated path within the archive. A
	// trailing slash denotes a directory placeholder with no data.
	Name string
	// Comment is the entry's comment section.
	Comment string
	// Method is the compression method.
	Method Method
	// Flags is the general purpose bit flag.
	Flags uint16
	// CRC32 is the declared checksum of the uncompressed data.
	CRC32 uint32
	// CompressedSize is the length of the compressed payload, including
	// the 12-byte encryption header for encrypted entries.
	CompressedSize uint64
	// UncompressedSize is the length of the data after decompression.
	UncompressedSize uint64
	// Offset is the absolute offset of the entry's local header.
	Offset int64
	// Modified is the entry's timestamp at 2-second resolution.
	Modified time.Time
	// ExternalAttrs carries the creator system's file attributes.
	ExternalAttrs uint32

	modifiedTime uint16
}

// IsDir reports whether the entry is a directory placeholder.
func (e Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// Encrypted reports whether the entry uses the traditional stream cipher.
func (e Entry) Encrypted() bool {
	return e.Flags&flagEncrypted != 0
}

// Mode returns permission bits for materializing the entry on disk, from the
// Unix half of ExternalAttrs when present.
func (e Entry) Mode() fs.FileMode {
	if perm := fs.FileMode(e.ExternalAttrs >> 16).Perm(); perm != 0 {
		return perm
	}
	if e.IsDir() {
		return 0755
	}
	return 0644
}

// verificationByte is the expected last byte of the decrypted 12-byte
// encryption header. Streamed entries use the high byte of the MS-DOS time
// because their local header carries no CRC.
func (e Entry) verificationByte() byte {
	if e.Flags&flagDataDescriptor != 0 {
		return byte(e.modifiedTime >> 8)
	}
	return byte(e.CRC32 >> 24)
}

// msDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s.
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		// date bits 0-4: day of month; 5-8: month; 9-15: years since 1980
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),

		// time bits 0-4: second/2; 5-10: minute; 11-15: hour
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0,

		time.UTC,
	)
}
