package crypto

import "strconv"

// CanonicalAAD builds the associated-data string binding a chunk to its
// organization and document: "{org_id}|{document_id}|{chunk_index}".
// The format is part of the stored data contract; changing it invalidates
// every existing ciphertext.
func CanonicalAAD(orgID, documentID string, chunkIndex int) string {
	return orgID + "|" + documentID + "|" + strconv.Itoa(chunkIndex)
}
