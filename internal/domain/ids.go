package domain

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// idNamespace roots every deterministic UUID generated by this module so
// IDs never collide with random UUIDs from other sources.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("cognipipe.dataset-namespace"))

// ContentHash returns the hex SHA-256 digest of content, used both as the
// Data.ContentHash field and as deterministic-ID input.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)
}

// DataID derives a deterministic Data ID from (tenantID, contentHash) so
// re-ingesting identical bytes for the same tenant is a no-op, not a
// duplicate.
func DataID(tenantID, contentHash string) string {
	key := tenantID + "|" + contentHash
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// ChunkID derives a deterministic chunk ID from its owning Data ID and
// index, so re-chunking identical input reproduces identical IDs.
func ChunkID(dataID string, index int) string {
	key := fmt.Sprintf("%s|%d", dataID, index)
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// EntityID derives a deterministic entity ID from (tenantID,
// normalizedName, entityType) so repeated extraction of the same entity
// resolves to the same ID before the resolver even runs.
func EntityID(tenantID, normalizedName, entityType string) string {
	key := strings.Join([]string{tenantID, normalizedName, entityType}, "|")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// RelationID derives a deterministic relation ID from its endpoints and
// type.
func RelationID(tenantID, fromID, toID, relType string) string {
	key := strings.Join([]string{tenantID, fromID, toID, relType}, "|")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// VectorRecordID derives a deterministic vector point ID from its kind and
// referenced object ID, matching the write-path idempotency invariant.
func VectorRecordID(tenantID, kind, refID string) string {
	key := strings.Join([]string{tenantID, kind, refID}, "|")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// NewRunID returns a fresh random run ID; pipeline runs are not
// content-addressed, each invocation is distinct.
func NewRunID() string {
	return uuid.New().String()
}
