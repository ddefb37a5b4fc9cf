package tickets

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateQRFixedLength(t *testing.T) {
	tok := GenerateQR(uuid.New(), uuid.New(), "buyer@example.com")
	assert.Len(t, tok, QRLength)
}

func TestGenerateQRBindsIdentifiers(t *testing.T) {
	ttID := uuid.New()
	evID := uuid.New()
	tok := GenerateQR(ttID, evID, "buyer@example.com")

	assert.True(t, strings.HasPrefix(tok, idPrefix(ttID.String())))
	assert.Equal(t, idPrefix(evID.String()), tok[qrIDPrefixLen:2*qrIDPrefixLen])
	assert.Equal(t, hashPrefix("buyer@example.com"), tok[2*qrIDPrefixLen:3*qrIDPrefixLen])
}

func TestGenerateQRUnique(t *testing.T) {
	ttID := uuid.New()
	evID := uuid.New()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok := GenerateQR(ttID, evID, "same@example.com")
		require.False(t, seen[tok], "duplicate token generated")
		seen[tok] = true
	}
}

func TestGenerateQRNotGuessableFromIDs(t *testing.T) {
	ttID := uuid.New()
	evID := uuid.New()
	a := GenerateQR(ttID, evID, "a@example.com")
	b := GenerateQR(ttID, evID, "a@example.com")
	// identical inputs must still differ in the random block
	assert.NotEqual(t, a, b)
}
