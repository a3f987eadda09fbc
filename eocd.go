package rzx

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tdvu/rzx/fetch"
)

const (
	lfhSig       = 0x04034b50
	cdfhSig      = 0x02014b50
	eocdSig      = 0x06054b50
	zip64LocSig  = 0x07064b50
	zip64EOCDSig = 0x06064b50
)

var (
	lfhSigBytes  = putUint32(lfhSig)
	cdfhSigBytes = putUint32(cdfhSig)
	eocdSigBytes = putUint32(eocdSig)
)

func putUint32(v uint32) (b []byte) {
	b = make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

const (
	eocdFixedSize = 22
	zip64LocSize  = 20
	zip64EOCDSize = 56

	// firstSuffixWindow covers the trailer plus most comments in one
	// ranged read; findTrailer widens from here up to the full resource.
	firstSuffixWindow = 64 * 1024
)

// trailer holds the fields of the end-of-central-directory record after
// ZIP64 resolution.
type trailer struct {
	// CDCount is the total number of central directory records.
	CDCount uint64
	// CDSize is the byte length of the central directory.
	CDSize uint64
	// CDOffset is the absolute offset of the central directory.
	CDOffset uint64
	// Comment is the archive comment.
	Comment string
	// Zip64 reports whether a ZIP64 end-of-central-directory record was
	// used to resolve the fields above.
	Zip64 bool
}

// findTrailer locates and parses the end-of-central-directory record by
// scanning suffix windows of the resource backward for its signature,
// progressively widening the window up to the full resource length.
func findTrailer(ctx context.Context, f fetch.Fetcher, size int64) (trailer, error) {
	if size < eocdFixedSize {
		return trailer{}, fmt.Errorf("resource is %d bytes, too small for a trailer: %w", size, ErrCorruptArchive)
	}

	for window := min(size, firstSuffixWindow); ; {
		buf, err := f.FetchSuffix(ctx, window)
		if err != nil {
			return trailer{}, fmt.Errorf("read trailing %d bytes error: %w", window, err)
		}

		// absolute offset of buf[0] within the resource.
		bufStart := size - window

		// right-most signature whose declared comment stays within the
		// resource wins; earlier hits are compressed-data coincidences.
		for i := bytes.LastIndex(buf, eocdSigBytes); i != -1; i = bytes.LastIndex(buf[:i], eocdSigBytes) {
			if i+eocdFixedSize > len(buf) {
				continue
			}

			r, ok := unmarshalTrailer(buf[i:])
			if !ok {
				continue
			}

			return resolveZip64(ctx, f, buf, bufStart, i, r)
		}

		if window == size {
			return trailer{}, fmt.Errorf("no end of central directory record in %d bytes: %w", size, ErrCorruptArchive)
		}

		// comment longer than the window assumed so far.
		window = min(size, window*4)
	}
}

// unmarshalTrailer decodes the fixed 22-byte record plus its comment from b.
// Returns ok=false if the declared comment does not fit in b, which marks the
// signature as a false positive.
func unmarshalTrailer(b []byte) (trailer, bool) {
	data := &struct {
		Signature     uint32
		DiskNumber    uint16
		CDDiskOffset  uint16
		CDCountOnDisk uint16
		CDCount       uint16
		CDSize        uint32
		CDOffset      uint32
		CommentLength uint16
	}{}

	if err := binary.Read(bytes.NewReader(b[:eocdFixedSize]), binary.LittleEndian, data); err != nil {
		return trailer{}, false
	}

	if eocdFixedSize+int(data.CommentLength) > len(b) {
		return trailer{}, false
	}

	return trailer{
		CDCount:  uint64(data.CDCount),
		CDSize:   uint64(data.CDSize),
		CDOffset: uint64(data.CDOffset),
		Comment:  string(b[eocdFixedSize : eocdFixedSize+int(data.CommentLength)]),
	}, true
}

// resolveZip64 checks for a ZIP64 end-of-central-directory locator directly
// preceding the trailer at absolute offset bufStart+i and, when present,
// replaces the trailer's sentinel fields from the ZIP64 record.
func resolveZip64(ctx context.Context, f fetch.Fetcher, buf []byte, bufStart int64, i int, r trailer) (trailer, error) {
	eocdOffset := bufStart + int64(i)
	if eocdOffset < zip64LocSize {
		return checkSentinels(r)
	}

	var loc []byte
	if i >= zip64LocSize {
		loc = buf[i-zip64LocSize : i]
	} else {
		var err error
		if loc, err = f.Fetch(ctx, eocdOffset-zip64LocSize, zip64LocSize); err != nil {
			return trailer{}, fmt.Errorf("read zip64 locator error: %w", err)
		}
	}

	locData := &struct {
		Signature  uint32
		DiskNumber uint32
		EOCD64     uint64
		TotalDisks uint32
	}{}
	if err := binary.Read(bytes.NewReader(loc), binary.LittleEndian, locData); err != nil || locData.Signature != zip64LocSig {
		return checkSentinels(r)
	}

	if locData.EOCD64 >= uint64(eocdOffset) {
		return trailer{}, fmt.Errorf("zip64 record offset %d beyond trailer at %d: %w", locData.EOCD64, eocdOffset, ErrCorruptArchive)
	}

	rec, err := f.Fetch(ctx, int64(locData.EOCD64), zip64EOCDSize)
	if err != nil {
		return trailer{}, fmt.Errorf("read zip64 end of central directory record error: %w", err)
	}

	recData := &struct {
		Signature      uint32
		RecordSize     uint64
		CreatorVersion uint16
		ReaderVersion  uint16
		DiskNumber     uint32
		CDDiskOffset   uint32
		CDCountOnDisk  uint64
		CDCount        uint64
		CDSize         uint64
		CDOffset       uint64
	}{}
	if err = binary.Read(bytes.NewReader(rec), binary.LittleEndian, recData); err != nil {
		return trailer{}, fmt.Errorf("unmarshal zip64 record error: %w", err)
	}
	if recData.Signature != zip64EOCDSig {
		return trailer{}, fmt.Errorf("mismatched zip64 record signature, got 0x%x: %w", recData.Signature, ErrCorruptArchive)
	}

	r.CDCount = recData.CDCount
	r.CDSize = recData.CDSize
	r.CDOffset = recData.CDOffset
	r.Zip64 = true
	return r, nil
}

// checkSentinels rejects trailers that declare ZIP64 sentinel values when no
// ZIP64 record could be found.
func checkSentinels(r trailer) (trailer, error) {
	if r.CDOffset == 0xffffffff || r.CDSize == 0xffffffff || r.CDCount == 0xffff {
		return trailer{}, fmt.Errorf("trailer declares zip64 values but no zip64 record found: %w", ErrCorruptArchive)
	}

	return r, nil
}
