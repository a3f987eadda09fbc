package rzx

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const cdHeaderFixedSize = 46

// parseCentralDirectory decodes the central directory byte span into entries
// in declaration order. Each record carries a 46-byte fixed part followed by
// name, extra, and comment fields whose lengths are declared inline; the
// parser consumes exactly those lengths to stay synchronized across records.
func parseCentralDirectory(b []byte, archiveSize int64) ([]Entry, error) {
	var entries []Entry

	for pos := 0; pos < len(b); {
		if pos+cdHeaderFixedSize > len(b) {
			return nil, fmt.Errorf("truncated central directory record at %d: %w", pos, ErrCorruptArchive)
		}

		e, n, err := unmarshalCDHeader(b[pos:])
		if err != nil {
			return nil, err
		}

		if err = validateEntry(e, archiveSize); err != nil {
			return nil, err
		}

		entries = append(entries, e)
		pos += n
	}

	return entries, nil
}

// unmarshalCDHeader decodes one central directory file header from the start
// of b, returning the entry and the total number of bytes the record spans.
func unmarshalCDHeader(b []byte) (e Entry, n int, err error) {
	data := &struct {
		Signature         uint32
		CreatorVersion    uint16
		ReaderVersion     uint16
		Flags             uint16
		Method            uint16
		ModifiedTime      uint16
		ModifiedDate      uint16
		CRC32             uint32
		CompressedSize    uint32
		UncompressedSize  uint32
		FileNameLength    uint16
		ExtraFieldLength  uint16
		FileCommentLength uint16
		DiskNumber        uint16
		InternalAttrs     uint16
		ExternalAttrs     uint32
		Offset            uint32
	}{}

	if !bytes.Equal(b[:4], cdfhSigBytes) {
		return e, 0, fmt.Errorf("mismatched central directory signature, got 0x%x: %w", b[:4], ErrCorruptArchive)
	}

	if err = binary.Read(bytes.NewReader(b[:cdHeaderFixedSize]), binary.LittleEndian, data); err != nil {
		return e, 0, fmt.Errorf("unmarshal central directory record error: %w", err)
	}

	nameLen, extraLen, commentLen := int(data.FileNameLength), int(data.ExtraFieldLength), int(data.FileCommentLength)
	n = cdHeaderFixedSize + nameLen + extraLen + commentLen
	if n > len(b) {
		return e, 0, fmt.Errorf("central directory record declares %d bytes, only %d remain: %w", n, len(b), ErrCorruptArchive)
	}

	name := b[cdHeaderFixedSize : cdHeaderFixedSize+nameLen]
	extra := b[cdHeaderFixedSize+nameLen : cdHeaderFixedSize+nameLen+extraLen]
	comment := b[cdHeaderFixedSize+nameLen+extraLen : n]

	e = Entry{
		Name:             string(name),
		Comment:          string(comment),
		Method:           Method(data.Method),
		Flags:            data.Flags,
		CRC32:            data.CRC32,
		CompressedSize:   uint64(data.CompressedSize),
		UncompressedSize: uint64(data.UncompressedSize),
		Offset:           int64(data.Offset),
		Modified:         msDosTimeToTime(data.ModifiedDate, data.ModifiedTime),
		ExternalAttrs:    data.ExternalAttrs,
		modifiedTime:     data.ModifiedTime,
	}

	if data.CompressedSize == 0xffffffff || data.UncompressedSize == 0xffffffff || data.Offset == 0xffffffff {
		if err = applyZip64Extra(&e, extra, data.UncompressedSize, data.CompressedSize, data.Offset); err != nil {
			return e, 0, err
		}
	}

	return e, n, nil
}

// applyZip64Extra resolves 0xffffffff sentinel fields from the 0x0001 extra
// field. The extra field only carries values for fields that are saturated,
// in uncompressed-size, compressed-size, offset order.
func applyZip64Extra(e *Entry, extra []byte, usize, csize, offset uint32) error {
	for pos := 0; pos+4 <= len(extra); {
		headerID := binary.LittleEndian.Uint16(extra[pos:])
		dataSize := int(binary.LittleEndian.Uint16(extra[pos+2:]))
		pos += 4

		if pos+dataSize > len(extra) {
			return fmt.Errorf(`entry "%s" declares extra field beyond its bounds: %w`, e.Name, ErrCorruptArchive)
		}

		if headerID != 0x0001 {
			pos += dataSize
			continue
		}

		data := extra[pos : pos+dataSize]
		if usize == 0xffffffff {
			if len(data) < 8 {
				break
			}
			e.UncompressedSize = binary.LittleEndian.Uint64(data)
			data = data[8:]
		}
		if csize == 0xffffffff {
			if len(data) < 8 {
				break
			}
			e.CompressedSize = binary.LittleEndian.Uint64(data)
			data = data[8:]
		}
		if offset == 0xffffffff {
			if len(data) < 8 {
				break
			}
			e.Offset = int64(binary.LittleEndian.Uint64(data))
		}
		return nil
	}

	return fmt.Errorf(`entry "%s" declares zip64 sizes without a zip64 extra field: %w`, e.Name, ErrCorruptArchive)
}

// validateEntry enforces the central invariant that the entry's local header
// and compressed payload fit inside the archive.
func validateEntry(e Entry, archiveSize int64) error {
	if e.Offset < 0 || uint64(e.Offset)+localHeaderFixedSize+e.CompressedSize > uint64(archiveSize) {
		return fmt.Errorf(`entry "%s" at offset %d with %d compressed bytes exceeds archive size %d: %w`,
			e.Name, e.Offset, e.CompressedSize, archiveSize, ErrCorruptArchive)
	}

	return nil
}
