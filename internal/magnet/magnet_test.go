package magnet

import (
	"errors"
	"strings"
	"testing"
)

func TestBuild_RoundTrip(t *testing.T) {
	const hash = "ABCDEF0123456789ABCDEF0123456789ABCDEF01"

	locator, err := Build(hash, "Heat 1995 1080p", YTSTrackers)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.HasPrefix(locator, "magnet:?xt=urn:btih:") {
		t.Errorf("locator = %q, want magnet prefix", locator)
	}

	got, ok := InfoHash(locator)
	if !ok {
		t.Fatal("InfoHash() found no hash")
	}
	if !strings.EqualFold(got, hash) {
		t.Errorf("InfoHash() = %q, want %q", got, strings.ToLower(hash))
	}
	if err := Validate(locator); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestBuild_InvalidHash(t *testing.T) {
	for _, h := range []string{"", "xyz", "abcdef"} {
		if _, err := Build(h, "x", nil); !errors.Is(err, ErrInvalidHash) {
			t.Errorf("Build(%q) error = %v, want ErrInvalidHash", h, err)
		}
	}
}

func TestInfoHash_Lowercases(t *testing.T) {
	got, ok := InfoHash("magnet:?xt=urn:btih:AAAABBBBCCCCDDDDEEEEFFFF0000111122223333&dn=x")
	if !ok || got != "aaaabbbbccccddddeeeeffff0000111122223333" {
		t.Errorf("InfoHash() = %q, %v", got, ok)
	}

	if _, ok := InfoHash("https://example.com/file.torrent"); ok {
		t.Error("expected no hash for a plain URL")
	}
}

func TestInfoHash_Base32(t *testing.T) {
	got, ok := InfoHash("magnet:?xt=urn:btih:VPG66AJDIVTYTK6N54ASGRLHRGV433YB&dn=Heat")
	if !ok || got != "abcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("InfoHash() = %q, %v", got, ok)
	}

	// Letters outside the hex range must not be cut off at the first one.
	locator := "magnet:?xt=urn:btih:ABCDEFGHIJKLMNOPQRSTUVWXYZ234567&dn=Heat"
	got, ok = InfoHash(locator)
	if !ok || len(got) != 40 {
		t.Errorf("InfoHash() = %q, %v, want a 40 character hash", got, ok)
	}
	if err := Validate(locator); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if !SameTorrent(
		"magnet:?xt=urn:btih:VPG66AJDIVTYTK6N54ASGRLHRGV433YB",
		"magnet:?xt=urn:btih:ABCDEF0123456789ABCDEF0123456789ABCDEF01",
	) {
		t.Error("expected base32 and hex forms of one hash to match")
	}
}

func TestInfoHash_RejectsPartialHash(t *testing.T) {
	for _, loc := range []string{
		"magnet:?xt=urn:btih:ABCDEF&dn=Heat",
		"magnet:?xt=urn:btih:ABCDEF0123456789ABCDEF0123456789ABCDEF01XYZ",
	} {
		if got, ok := InfoHash(loc); ok {
			t.Errorf("InfoHash(%q) = %q, want no hash", loc, got)
		}
		if err := Validate(loc); !errors.Is(err, ErrInvalidLocator) {
			t.Errorf("Validate(%q) error = %v, want ErrInvalidLocator", loc, err)
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []string{
		"",
		"http://example.com",
		"magnet:?dn=nohash",
	}
	for _, c := range cases {
		if err := Validate(c); !errors.Is(err, ErrInvalidLocator) {
			t.Errorf("Validate(%q) error = %v, want ErrInvalidLocator", c, err)
		}
	}
}

func TestSameTorrent(t *testing.T) {
	a := "magnet:?xt=urn:btih:ABCDEF0123456789ABCDEF0123456789ABCDEF01"
	b := "magnet:?xt=urn:btih:abcdef0123456789abcdef0123456789abcdef01&dn=other"
	if !SameTorrent(a, b) {
		t.Error("expected locators to match")
	}
	if SameTorrent(a, "magnet:?dn=x") {
		t.Error("expected no match without a hash")
	}
}
