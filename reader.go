package rzx

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/tdvu/rzx/fetch"
)

const (
	localHeaderFixedSize = 30

	// localHeaderProbeSize covers the fixed local header plus generous
	// headroom for the name/extra fields; leftover probe bytes seed the
	// payload stream so small entries cost a single ranged read.
	localHeaderProbeSize = localHeaderFixedSize + 1024

	// payloadChunkSize bounds how much of a large entry's compressed
	// payload is fetched per ranged read.
	payloadChunkSize = 8 * 1024 * 1024
)

// Open returns the decompressed content of one entry as a single-use reader.
//
// The local header is fetched only to locate the start of compressed data;
// the compressed and uncompressed lengths always come from the central
// directory, so streamed entries with zeroed local-header size fields are
// read correctly. Encrypted entries are verified against password before any
// decompressed bytes are produced. The reader's bytes are checksummed as they
// are consumed; reading to EOF fails with ErrChecksum if the output does not
// match the declared CRC-32 and length.
//
// The returned reader is not restartable and must not outlive the extraction
// of this entry.
func (a *Archive) Open(ctx context.Context, e Entry, password string) (io.ReadCloser, error) {
	if e.IsDir() {
		return nil, fmt.Errorf(`open "%s": %w`, e.Name, ErrIsDirectory)
	}

	switch e.Method {
	case Store, Deflate:
	default:
		return nil, fmt.Errorf(`entry "%s" uses method %d: %w`, e.Name, uint16(e.Method), ErrUnsupportedMethod)
	}

	probe, err := a.fetcher.Fetch(ctx, e.Offset, min(localHeaderProbeSize, a.size-e.Offset))
	if err != nil {
		return nil, fmt.Errorf(`read local header of "%s" error: %w`, e.Name, err)
	}

	if len(probe) < localHeaderFixedSize || !bytes.Equal(probe[:4], lfhSigBytes) {
		return nil, fmt.Errorf(`invalid local header for "%s": %w`, e.Name, ErrCorruptArchive)
	}

	// variable-length field sizes are declared in the fixed part; the
	// fields themselves are skipped over, never trusted for sizes.
	nameLen := int64(binary.LittleEndian.Uint16(probe[26:]))
	extraLen := int64(binary.LittleEndian.Uint16(probe[28:]))
	headerSize := localHeaderFixedSize + nameLen + extraLen
	dataOffset := e.Offset + headerSize

	if uint64(dataOffset)+e.CompressedSize > uint64(a.size) {
		return nil, fmt.Errorf(`entry "%s" data span [%d, %d) exceeds archive size %d: %w`,
			e.Name, dataOffset, uint64(dataOffset)+e.CompressedSize, a.size, ErrCorruptArchive)
	}

	src := newSpanReader(ctx, a.fetcher, dataOffset, int64(e.CompressedSize))
	if headerSize < int64(len(probe)) {
		// the probe read past the header into payload; reuse it.
		src.seed(probe[headerSize:])
	}

	var payload io.Reader = src
	if e.Encrypted() {
		if payload, err = decryptPayload(src, e, password); err != nil {
			return nil, err
		}
	}

	var rc io.ReadCloser
	switch e.Method {
	case Store:
		rc = io.NopCloser(payload)
	case Deflate:
		// raw inflate, no zlib wrapper.
		rc = flate.NewReader(payload)
	}

	return &checksumReader{rc: rc, hash: crc32.NewIEEE(), entry: e}, nil
}

// decryptPayload consumes and verifies the 12-byte keystream-check header,
// returning a reader over the decrypted remainder of the payload.
func decryptPayload(src io.Reader, e Entry, password string) (io.Reader, error) {
	if password == "" {
		return nil, fmt.Errorf(`entry "%s": %w`, e.Name, ErrPasswordRequired)
	}
	if e.CompressedSize < encryptionHeaderSize {
		return nil, fmt.Errorf(`encrypted entry "%s" has %d compressed bytes, less than its encryption header: %w`,
			e.Name, e.CompressedSize, ErrCorruptArchive)
	}

	cipher := newZipCipher(password)

	header := make([]byte, encryptionHeaderSize)
	if _, err := io.ReadFull(src, header); err != nil {
		return nil, fmt.Errorf(`read encryption header of "%s" error: %w`, e.Name, err)
	}
	cipher.Decrypt(header)

	if header[encryptionHeaderSize-1] != e.verificationByte() {
		return nil, fmt.Errorf(`entry "%s": %w`, e.Name, ErrPasswordIncorrect)
	}

	return &decryptReader{src: src, cipher: cipher}, nil
}

// newSpanReader streams the compressed span [offset, offset+length) in
// bounded chunks, one ranged read per chunk.
func newSpanReader(ctx context.Context, f fetch.Fetcher, offset, length int64) *spanReader {
	return &spanReader{ctx: ctx, f: f, offset: offset, remaining: length}
}

type spanReader struct {
	ctx       context.Context
	f         fetch.Fetcher
	offset    int64
	remaining int64
	buf       []byte
}

// seed hands the reader payload bytes that were already fetched.
func (r *spanReader) seed(b []byte) {
	if n := min(int64(len(b)), r.remaining); n > 0 {
		r.buf = b[:n]
		r.offset += n
		r.remaining -= n
	}
}

func (r *spanReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		if r.remaining == 0 {
			return 0, io.EOF
		}

		n := min(r.remaining, payloadChunkSize)
		b, err := r.f.Fetch(r.ctx, r.offset, n)
		if err != nil {
			return 0, fmt.Errorf("read payload chunk at %d error: %w", r.offset, err)
		}

		r.buf = b
		r.offset += n
		r.remaining -= n
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// checksumReader verifies the running CRC-32 and total length of the
// decompressed output once the stream is fully consumed.
type checksumReader struct {
	rc    io.ReadCloser
	hash  hash.Hash32
	entry Entry
	nread uint64
	err   error
}

func (r *checksumReader) Read(p []byte) (n int, err error) {
	if r.err != nil {
		return 0, r.err
	}

	n, err = r.rc.Read(p)
	r.hash.Write(p[:n])
	r.nread += uint64(n)

	switch {
	case err == io.EOF:
		if r.nread != r.entry.UncompressedSize {
			err = fmt.Errorf(`entry "%s" produced %d bytes, declared %d: %w`,
				r.entry.Name, r.nread, r.entry.UncompressedSize, ErrChecksum)
		} else if r.hash.Sum32() != r.entry.CRC32 {
			err = fmt.Errorf(`entry "%s" crc32 0x%08x, declared 0x%08x: %w`,
				r.entry.Name, r.hash.Sum32(), r.entry.CRC32, ErrChecksum)
		}
		r.err = err
	case err != nil:
		r.err = err
	}

	return
}

func (r *checksumReader) Close() error {
	return r.rc.Close()
}
