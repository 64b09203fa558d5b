package service

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	invitationdomain "github.com/smallbiznis/insightboard/internal/invitation/domain"
)

func newNonce() string {
	return strings.ToLower(ulid.Make().String())
}

// localToken encodes the nonce, email, organization and timestamp and keeps
// only alphanumerics. The nonce leads so truncation never drops it.
func localToken(nonce, email string, orgID snowflake.ID, now time.Time) string {
	raw := fmt.Sprintf("%s-%s-%s-%d", nonce, email, orgID.String(), now.UnixMilli())
	encoded := base64.StdEncoding.EncodeToString([]byte(raw))

	var b strings.Builder
	b.Grow(invitationdomain.TokenMaxLength)
	for _, r := range encoded {
		if b.Len() == invitationdomain.TokenMaxLength {
			break
		}
		if isAlnum(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sanitizeToken bounds a token from any source to the accepted alphabet and
// length.
func sanitizeToken(token string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(token) {
		if b.Len() == invitationdomain.TokenMaxLength {
			break
		}
		if isAlnum(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
