package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrSignatureMismatch is returned when a payment signature does not match the
// server-side HMAC. A mismatch must block reconciliation entirely: the
// client's claim that the payment succeeded is never trusted on its own.
var ErrSignatureMismatch = errors.New("payment signature mismatch")

// Verifier checks gateway payment signatures. The gateway signs the string
// "{intentID}|{transactionID}" with HMAC-SHA256 using the shared key secret
// and sends the hex digest back through the client.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier with the gateway key secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Sign computes the expected hex signature for an intent/transaction pair.
func (v *Verifier) Sign(intentID, transactionID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(intentID))
	mac.Write([]byte{'|'})
	mac.Write([]byte(transactionID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the HMAC and compares it to the supplied signature in
// constant time. Timing-attack resistance is a correctness requirement here,
// not an optimization.
func (v *Verifier) Verify(intentID, transactionID, signature string) error {
	if intentID == "" || transactionID == "" || signature == "" {
		return ErrSignatureMismatch
	}

	expected, err := hex.DecodeString(v.Sign(intentID, transactionID))
	if err != nil {
		return errors.Wrap(err, "decode expected signature")
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		// Not valid hex, so it cannot possibly match.
		return ErrSignatureMismatch
	}

	if !hmac.Equal(expected, got) {
		return ErrSignatureMismatch
	}
	return nil
}
