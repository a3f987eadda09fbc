// Package rzx extracts individual entries from remote ZIP archives without
// downloading the whole archive.
//
// The archive must be reachable over a range-capable transport (see the fetch
// package for HTTP and S3 implementations). Opening an archive locates and
// parses the central directory from a handful of ranged reads; extracting an
// entry fetches only that entry's byte span, decrypts it if needed,
// decompresses it, and verifies its checksum. The parsed index is
// byte-for-byte equivalent to what a full local parse would produce.
package rzx

import (
	"context"
	"fmt"

	"github.com/tdvu/rzx/fetch"
)

// Archive is the parsed structural metadata of a remote ZIP archive.
//
// An Archive is immutable once returned by Open and safe for concurrent use;
// every ranged read it triggers is an independent request.
type Archive struct {
	fetcher fetch.Fetcher
	size    int64
	comment string
	zip64   bool

	// entries in central-directory order; byName maps a path to its index
	// with duplicate paths resolving to the last occurrence.
	entries []Entry
	byName  map[string]int
}

// Open resolves the archive's size, trailer record, and central directory
// over ranged reads against f.
func Open(ctx context.Context, f fetch.Fetcher) (*Archive, error) {
	size, err := f.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve archive size error: %w", err)
	}

	t, err := findTrailer(ctx, f, size)
	if err != nil {
		return nil, err
	}

	if t.CDOffset+t.CDSize > uint64(size) {
		return nil, fmt.Errorf("central directory span [%d, %d) exceeds archive size %d: %w",
			t.CDOffset, t.CDOffset+t.CDSize, size, ErrCorruptArchive)
	}

	var entries []Entry
	if t.CDSize > 0 {
		// the whole central directory in one ranged read.
		b, err := f.Fetch(ctx, int64(t.CDOffset), int64(t.CDSize))
		if err != nil {
			return nil, fmt.Errorf("read central directory error: %w", err)
		}

		if entries, err = parseCentralDirectory(b, size); err != nil {
			return nil, err
		}
	}

	if t.CDCount != uint64(len(entries)) {
		return nil, fmt.Errorf("trailer declares %d entries, central directory has %d: %w", t.CDCount, len(entries), ErrCorruptArchive)
	}

	byName := make(map[string]int, len(entries))
	for i, e := range entries {
		byName[e.Name] = i
	}

	return &Archive{
		fetcher: f,
		size:    size,
		comment: t.Comment,
		zip64:   t.Zip64,
		entries: entries,
		byName:  byName,
	}, nil
}

// Size returns the archive's total byte length as reported by the transport.
func (a *Archive) Size() int64 {
	return a.size
}

// Comment returns the archive comment from the trailer record.
func (a *Archive) Comment() string {
	return a.comment
}

// Entries returns the entry index in central-directory order. The returned
// slice is shared and must not be modified.
func (a *Archive) Entries() []Entry {
	return a.entries
}

// Lookup returns the entry with the given path. When the archive declares
// the same path more than once, the last occurrence wins.
func (a *Archive) Lookup(name string) (Entry, bool) {
	i, ok := a.byName[name]
	if !ok {
		return Entry{}, false
	}

	return a.entries[i], true
}
