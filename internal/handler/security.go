package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/stitchline/checkout-api/internal/domain/auth"
)

// SecurityHandler guards admin endpoints with HMAC-SHA256 hashed API keys
// supplied in the X-API-Key header.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// HashKey computes the stored HMAC-SHA256 hash for a raw API key.
func (s *SecurityHandler) HashKey(key string) string {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Require wraps next with API key authentication. The computed hash is looked
// up in the repository and compared in constant time to prevent timing
// side-channels, even though the lookup already matched.
func (s *SecurityHandler) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: 401, Message: "unauthorized"})
			return
		}

		mac := hmac.New(sha256.New, s.pepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)

		info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: 401, Message: "unauthorized"})
			return
		}

		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: 401, Message: "unauthorized"})
			return
		}

		next(w, r)
	}
}
