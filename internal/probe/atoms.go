package probe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNoMoovAtom is returned when a file has no top-level moov box at all
// — not a valid playable MP4/MOV container for this engine's purposes.
var ErrNoMoovAtom = errors.New("probe: file has no moov atom")

const atomHeaderSize = 8

// IsFaststart reports whether path's moov atom appears before its mdat
// atom in the top-level box sequence — the definition of a
// progressive/"faststart" MP4: a player can begin decoding before the
// full file (and its often-huge mdat payload) has downloaded.
//
// This walks only top-level boxes and never descends into moov/mdat
// contents, so it runs in time proportional to the box count, not file
// size.
func IsFaststart(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var header [atomHeaderSize]byte

	var offset int64

	sawMoov := false

	for {
		n, err := io.ReadFull(f, header[:])
		if errors.Is(err, io.EOF) || (errors.Is(err, io.ErrUnexpectedEOF) && n == 0) {
			break
		}

		if err != nil {
			return false, fmt.Errorf("reading atom header at offset %d: %w", offset, err)
		}

		size := int64(binary.BigEndian.Uint32(header[0:4]))
		kind := string(header[4:8])

		switch kind {
		case "moov":
			sawMoov = true
		case "mdat":
			// mdat encountered: faststart iff moov already seen.
			return sawMoov, nil
		}

		if size == 1 {
			// 64-bit extended size: an 8-byte size follows the header.
			var ext [8]byte
			if _, err := io.ReadFull(f, ext[:]); err != nil {
				return false, fmt.Errorf("reading extended size at offset %d: %w", offset, err)
			}

			size = int64(binary.BigEndian.Uint64(ext[:]))
		} else if size == 0 {
			// Box extends to end of file — nothing more to scan.
			break
		}

		next := offset + size
		if _, err := f.Seek(next, io.SeekStart); err != nil {
			return false, fmt.Errorf("seeking to next atom at offset %d: %w", next, err)
		}

		offset = next
	}

	if !sawMoov {
		return false, ErrNoMoovAtom
	}

	// moov was seen but mdat never appeared at the top level (unusual,
	// e.g. an mdat nested non-standardly, or a moov-only fragment) —
	// treat as already streamable since there is no trailing payload to
	// wait on.
	return true, nil
}
