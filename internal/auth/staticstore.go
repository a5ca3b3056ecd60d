package auth

import (
	"context"
	"strings"
)

// StaticKeyStore is a fixed, in-process KeyStore loaded once at
// startup from the KOTA_API_KEYS environment variable. API-key
// provisioning itself (create/rotate/revoke) is an external
// collaborator's REST surface per spec; this store only needs to
// resolve the keys that collaborator has already issued.
type StaticKeyStore map[string]Record

// ParseStaticKeyStore parses a "key_id:owner_scope:tier:secret_hash"
// list (comma-separated) into a StaticKeyStore. Malformed entries are
// skipped.
func ParseStaticKeyStore(raw string) StaticKeyStore {
	store := StaticKeyStore{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) != 4 {
			continue
		}
		keyID, ownerScope, tier, secretHash := parts[0], parts[1], parts[2], parts[3]
		if keyID == "" || secretHash == "" {
			continue
		}
		store[keyID] = Record{KeyID: keyID, OwnerScope: ownerScope, Tier: tier, SecretHash: secretHash}
	}
	return store
}

// Lookup implements KeyStore.
func (s StaticKeyStore) Lookup(_ context.Context, keyID string) (Record, bool, error) {
	r, ok := s[keyID]
	return r, ok, nil
}
