package domain

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Persisted entry keys of the credential bundle.
const (
	KeyToken         = "token"
	KeyOwnerIdentity = "ownerIdentity"
	KeyTokenKind     = "tokenKind"
	KeyExpiresAt     = "expiresAtEpochMillis"
)

// BundleKeys lists every entry a complete bundle owns.
var BundleKeys = []string{KeyToken, KeyOwnerIdentity, KeyTokenKind, KeyExpiresAt}

// DefaultTokenKind is used when the backend omits token_type.
const DefaultTokenKind = "Bearer"

// Bundle is the persisted credential set of one authenticated scope.
type Bundle struct {
	Token           string
	OwnerIdentity   string
	TokenKind       string
	ExpiresAtMillis int64
}

// NewBundle derives a bundle from a login response received at issuedAt.
func NewBundle(token, owner, kind string, issuedAt time.Time, expiresInSeconds int64) Bundle {
	if kind == "" {
		kind = DefaultTokenKind
	}
	return Bundle{
		Token:           token,
		OwnerIdentity:   owner,
		TokenKind:       kind,
		ExpiresAtMillis: issuedAt.UnixMilli() + expiresInSeconds*1000,
	}
}

// Complete reports whether all four fields carry a value.
func (b Bundle) Complete() bool {
	return b.Token != "" && b.OwnerIdentity != "" && b.TokenKind != "" && b.ExpiresAtMillis != 0
}

// ExpiresAt returns the absolute expiry instant.
func (b Bundle) ExpiresAt() time.Time {
	return time.UnixMilli(b.ExpiresAtMillis)
}

// Entries flattens the bundle into its persisted form.
func (b Bundle) Entries() map[string]string {
	return map[string]string{
		KeyToken:         b.Token,
		KeyOwnerIdentity: b.OwnerIdentity,
		KeyTokenKind:     b.TokenKind,
		KeyExpiresAt:     strconv.FormatInt(b.ExpiresAtMillis, 10),
	}
}

// BundleFromEntries rebuilds a bundle. It returns false for any partial or
// malformed set of entries.
func BundleFromEntries(entries map[string]string) (Bundle, bool) {
	for _, key := range BundleKeys {
		if entries[key] == "" {
			return Bundle{}, false
		}
	}
	expires, err := strconv.ParseInt(entries[KeyExpiresAt], 10, 64)
	if err != nil || expires == 0 {
		return Bundle{}, false
	}
	b := Bundle{
		Token:           entries[KeyToken],
		OwnerIdentity:   entries[KeyOwnerIdentity],
		TokenKind:       entries[KeyTokenKind],
		ExpiresAtMillis: expires,
	}
	return b, true
}

// MaskedOwner hides most of the owner identity for logs.
func (b Bundle) MaskedOwner() string {
	return MaskIdentity(b.OwnerIdentity)
}

// MaskIdentity keeps the first character and the domain of an email-like value.
func MaskIdentity(v string) string {
	if v == "" {
		return ""
	}
	_, size := utf8.DecodeRuneInString(v)
	first := v[:size]
	at := strings.IndexByte(v, '@')
	if at <= 0 {
		if utf8.RuneCountInString(v) <= 2 {
			return "***"
		}
		return first + "***"
	}
	return first + "***" + v[at:]
}
