package idem

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewLeadID returns a collision-resistant identifier for a captured lead.
func NewLeadID() string {
	return "lead_" + uuid.NewString()
}

// NewSessionID returns the identifier for one modal-open-to-close lifecycle.
func NewSessionID() string {
	return "cs_" + uuid.NewString()
}

// MintKey returns a single-use idempotency key. The key combines
// high-resolution time, a random component and an environment discriminator
// so concurrent attempts from separate tabs or instances cannot collide.
// Callers must mint a fresh key immediately before every mutating call;
// a key is never reused, not even for a retry of the same logical action.
func MintKey(environment string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		copy(buf, []byte(uuid.NewString()))
	}
	env := strings.TrimSpace(strings.ToLower(environment))
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("ck_%s_%s_%s",
		strconv.FormatInt(time.Now().UnixNano(), 36),
		hex.EncodeToString(buf),
		env,
	)
}
