package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// PlatformCode identifies the account platform of an XPlatformID.
type PlatformCode uint64

const (
	PlatformSTM    PlatformCode = 1 // Steam
	PlatformPSN    PlatformCode = 2 // Playstation
	PlatformXBX    PlatformCode = 3 // Xbox
	PlatformOVRORG PlatformCode = 4 // Oculus VR (ORG)
	PlatformOVR    PlatformCode = 5 // Oculus VR
	PlatformBOT    PlatformCode = 6 // Bot
	PlatformDMO    PlatformCode = 7 // Demo
	PlatformTEN    PlatformCode = 8 // Tencent
)

var platformPrefixes = map[PlatformCode]string{
	PlatformSTM:    "STM",
	PlatformPSN:    "PSN",
	PlatformXBX:    "XBX",
	PlatformOVRORG: "OVR-ORG",
	PlatformOVR:    "OVR",
	PlatformBOT:    "BOT",
	PlatformDMO:    "DMO",
	PlatformTEN:    "TEN",
}

// Prefix returns the textual prefix used in XPlatformID strings.
func (p PlatformCode) Prefix() string {
	if s, ok := platformPrefixes[p]; ok {
		return s
	}
	return "???"
}

// Valid reports whether p is a known platform.
func (p PlatformCode) Valid() bool {
	_, ok := platformPrefixes[p]
	return ok
}

// ParsePlatformCode returns the platform for prefix, or zero if unknown.
func ParsePlatformCode(prefix string) PlatformCode {
	prefix = strings.ReplaceAll(prefix, "_", "-")
	for code, s := range platformPrefixes {
		if s == prefix {
			return code
		}
	}
	return 0
}

// XPlatformID is a cross-platform user identifier.
type XPlatformID struct {
	Platform  PlatformCode `json:"platform"`
	AccountID uint64       `json:"account_id"`
}

// Valid reports whether the platform code is known.
func (id XPlatformID) Valid() bool {
	return id.Platform.Valid()
}

// IsZero reports whether id is the zero identifier.
func (id XPlatformID) IsZero() bool {
	return id == XPlatformID{}
}

func (id XPlatformID) String() string {
	return fmt.Sprintf("%s-%d", id.Platform.Prefix(), id.AccountID)
}

// ParseXPlatformID parses the "PREFIX-ACCOUNT" form produced by String.
func ParseXPlatformID(s string) (XPlatformID, error) {
	dash := strings.LastIndexByte(s, '-')
	if dash < 0 {
		return XPlatformID{}, fmt.Errorf("invalid platform id %q: missing separator", s)
	}
	account, err := strconv.ParseUint(s[dash+1:], 10, 64)
	if err != nil {
		return XPlatformID{}, fmt.Errorf("invalid platform id %q: %w", s, err)
	}
	return XPlatformID{Platform: ParsePlatformCode(s[:dash]), AccountID: account}, nil
}
