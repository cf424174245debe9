// Package magnet builds and inspects magnet locators.
package magnet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

var (
	ErrInvalidHash    = errors.New("invalid info-hash")
	ErrInvalidLocator = errors.New("invalid magnet locator")
)

// YTSTrackers are the announce URLs appended to locators built for YTS hashes.
var YTSTrackers = []string{
	"udp://open.demonii.com:1337/announce",
	"udp://tracker.openbittorrent.com:80",
	"udp://tracker.coppersurfer.tk:6969",
	"udp://glotorrents.pw:6969/announce",
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://torrent.gresille.org:80/announce",
	"udp://p4p.arenabg.com:1337",
	"udp://tracker.leechers-paradise.org:6969",
}

// Build returns a magnet URI for a hex info-hash. The hash is written in
// lowercase.
func Build(hash, displayName string, trackers []string) (string, error) {
	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) != metainfo.HashSize {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}

	var ih metainfo.Hash
	copy(ih[:], raw)

	m := metainfo.Magnet{
		InfoHash:    ih,
		DisplayName: displayName,
		Trackers:    trackers,
	}
	return m.String(), nil
}

// InfoHash extracts the lowercase hex info-hash from a locator. Base32
// hashes are decoded, so the result is always 40 hex characters. The second
// return value is false when the locator carries no v1 hash.
func InfoHash(locator string) (string, bool) {
	m, err := metainfo.ParseMagnetUri(locator)
	if err != nil || m.InfoHash == (metainfo.Hash{}) {
		return "", false
	}
	return m.InfoHash.HexString(), true
}

// Validate checks that locator is a well-formed magnet URI carrying a
// complete v1 info-hash, hex or base32.
func Validate(locator string) error {
	if !strings.HasPrefix(locator, "magnet:?") {
		return fmt.Errorf("%w: missing magnet scheme", ErrInvalidLocator)
	}
	m, err := metainfo.ParseMagnetUri(locator)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	if m.InfoHash == (metainfo.Hash{}) {
		return fmt.Errorf("%w: empty info-hash", ErrInvalidLocator)
	}
	return nil
}

// SameTorrent reports whether two locators share an info-hash.
func SameTorrent(a, b string) bool {
	ha, ok := InfoHash(a)
	if !ok {
		return false
	}
	hb, ok := InfoHash(b)
	return ok && ha == hb
}
