package qdrant

import "github.com/google/uuid"

// pointNamespace is the UUIDv5 namespace for legal code point IDs. Changing it
// orphans every indexed point.
var pointNamespace = uuid.MustParse("6f1c3a2e-8d4b-5f7a-9c1e-2b3d4e5f6a7b")

// PointID maps a canonical document ID to the UUID Qdrant stores it under.
// The mapping is a SHA-1 name-based UUID, so it is stable across processes and
// languages; the original ID is kept in the point payload as "document_id".
func PointID(documentID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(documentID)).String()
}
