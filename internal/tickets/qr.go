package tickets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	qrIDPrefixLen    = 8
	qrRandomBlockLen = 16
	qrTimeSuffixLen  = 13
	// QRLength is the fixed total length of every generated token.
	QRLength = 3*qrIDPrefixLen + qrRandomBlockLen + qrTimeSuffixLen
)

const qrAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateQR produces an opaque entry-validation token binding ticket
// type, event and buyer identity with a random block and issuance time.
// Tokens are not guessable from the IDs alone; uniqueness is ultimately
// enforced by the qr_code unique constraint, callers retry on conflict.
func GenerateQR(ticketTypeID, eventID uuid.UUID, buyerIdentifier string) string {
	var b strings.Builder
	b.Grow(QRLength)
	b.WriteString(idPrefix(ticketTypeID.String()))
	b.WriteString(idPrefix(eventID.String()))
	b.WriteString(hashPrefix(buyerIdentifier))
	b.WriteString(randomBlock(qrRandomBlockLen))
	b.WriteString(timeSuffix(time.Now()))
	return b.String()
}

func idPrefix(id string) string {
	s := strings.ReplaceAll(id, "-", "")
	if len(s) < qrIDPrefixLen {
		s += strings.Repeat("0", qrIDPrefixLen-len(s))
	}
	return s[:qrIDPrefixLen]
}

func hashPrefix(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:qrIDPrefixLen]
}

func randomBlock(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	out := make([]byte, n)
	for i, v := range buf {
		out[i] = qrAlphabet[int(v)%len(qrAlphabet)]
	}
	return string(out)
}

func timeSuffix(t time.Time) string {
	s := strconv.FormatInt(t.UnixNano(), 36)
	if len(s) < qrTimeSuffixLen {
		s = strings.Repeat("0", qrTimeSuffixLen-len(s)) + s
	}
	return s[len(s)-qrTimeSuffixLen:]
}
