package rzx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindTrailer(t *testing.T) {
	tests := []struct {
		name    string
		comment string
	}{
		{name: "no comment"},
		{name: "short comment", comment: "hello"},
		// a comment longer than the first suffix window forces the
		// search to widen its window.
		{name: "comment wider than first window", comment: strings.Repeat("x", 65530)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildArchive(t, defaultTestFiles, tt.comment)

			r, err := findTrailer(context.Background(), &memFetcher{data: data}, int64(len(data)))
			require.NoError(t, err)

			assert.Equal(t, uint64(len(defaultTestFiles)), r.CDCount)
			assert.Equal(t, tt.comment, r.Comment)
			assert.False(t, r.Zip64)

			// the declared span must land exactly on the central
			// directory's first signature.
			assert.True(t, bytes.HasPrefix(data[r.CDOffset:], cdfhSigBytes))
		})
	}
}

func TestFindTrailer_TooSmall(t *testing.T) {
	_, err := findTrailer(context.Background(), &memFetcher{data: []byte("PK")}, 2)
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestFindTrailer_NoSignature(t *testing.T) {
	data := bytes.Repeat([]byte{0}, 4096)
	_, err := findTrailer(context.Background(), &memFetcher{data: data}, int64(len(data)))
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestFindTrailer_FalsePositiveInComment(t *testing.T) {
	// plant a trailer signature inside the comment; its declared comment
	// length cannot reach end of stream so the real trailer must win.
	comment := "decoy: " + string(eocdSigBytes) + strings.Repeat("z", 100)
	data := buildArchive(t, defaultTestFiles, comment)

	r, err := findTrailer(context.Background(), &memFetcher{data: data}, int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, comment, r.Comment)
}

func TestParseCentralDirectory_Truncated(t *testing.T) {
	data := buildArchive(t, defaultTestFiles, "")

	r, err := findTrailer(context.Background(), &memFetcher{data: data}, int64(len(data)))
	require.NoError(t, err)

	cd := data[r.CDOffset : r.CDOffset+r.CDSize]
	_, err = parseCentralDirectory(cd[:len(cd)-10], int64(len(data)))
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestParseCentralDirectory_OffsetBeyondArchive(t *testing.T) {
	data := buildArchive(t, defaultTestFiles, "")

	r, err := findTrailer(context.Background(), &memFetcher{data: data}, int64(len(data)))
	require.NoError(t, err)

	cd := data[r.CDOffset : r.CDOffset+r.CDSize]
	// an archive claimed to be smaller than the declared entry spans.
	_, err = parseCentralDirectory(cd, 10)
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

// appendZip64Trailer rewrites the archive's trailer as a ZIP64 end-of-central
// directory record, locator, and a sentinel-filled classic trailer.
func appendZip64Trailer(t *testing.T, data []byte, r trailer) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.Write(data[:r.CDOffset+r.CDSize])

	writeAll := func(vs ...any) {
		for _, v := range vs {
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
		}
	}

	zip64Offset := uint64(buf.Len())
	writeAll(uint32(zip64EOCDSig), uint64(44), uint16(45), uint16(45),
		uint32(0), uint32(0), r.CDCount, r.CDCount, r.CDSize, r.CDOffset)

	writeAll(uint32(zip64LocSig), uint32(0), zip64Offset, uint32(1))

	writeAll(uint32(eocdSig), uint16(0), uint16(0), uint16(0xffff), uint16(0xffff),
		uint32(0xffffffff), uint32(0xffffffff), uint16(0))

	return buf.Bytes()
}

func TestOpen_Zip64(t *testing.T) {
	// building a real >4GiB fixture is not reasonable here; fabricate a
	// minimal zip64 trailer over a small archive instead.
	data := buildArchive(t, []testFile{
		{name: "a.txt", data: "zip64 test", method: zip.Store},
	}, "")

	r, err := findTrailer(context.Background(), &memFetcher{data: data}, int64(len(data)))
	require.NoError(t, err)

	data = appendZip64Trailer(t, data, r)

	arc := openTestArchive(t, data)
	require.Len(t, arc.Entries(), 1)

	got, err := readEntry(t, arc, "a.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "zip64 test", string(got))
}
