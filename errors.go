package rzx

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCorruptArchive is returned when the trailer record or central
	// directory cannot be located or parsed, or when declared offsets and
	// sizes fall outside the archive.
	ErrCorruptArchive = errors.New("rzx: corrupt or not a zip archive")

	// ErrUnsupportedMethod is returned when an entry uses a compression
	// method other than Store or Deflate.
	ErrUnsupportedMethod = errors.New("rzx: unsupported compression method")

	// ErrPasswordRequired is returned when opening an encrypted entry
	// without a password.
	ErrPasswordRequired = errors.New("rzx: entry is encrypted, password required")

	// ErrPasswordIncorrect is returned when the keystream-check header of
	// an encrypted entry does not match the supplied password.
	ErrPasswordIncorrect = errors.New("rzx: invalid password")

	// ErrChecksum is returned when the CRC-32 of the decompressed output
	// does not match the central directory's declared value, or when the
	// output length disagrees with the declared uncompressed size.
	ErrChecksum = errors.New("rzx: checksum mismatch")

	// ErrIsDirectory is returned when opening a directory placeholder
	// entry, which carries no data.
	ErrIsDirectory = errors.New("rzx: entry is a directory")

	// ErrInsecurePath is returned for entry paths that would escape the
	// output root (Zip Slip).
	ErrInsecurePath = errors.New("rzx: insecure file path")
)

// NoMatchError is returned by Select when every pattern matched nothing.
type NoMatchError struct {
	// Patterns are the patterns that matched no entry.
	Patterns []string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("rzx: no entry matched any of: %s", strings.Join(e.Patterns, ", "))
}
