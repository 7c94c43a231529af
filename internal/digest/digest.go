package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// ChunkSize is the block size fed to the hash per write.
const ChunkSize = 64 << 10

// Bytes returns the lowercase hex SHA-256 of data, hashed in ChunkSize blocks.
func Bytes(data []byte) string {
	h := sha256.New()
	for off := 0; off < len(data); off += ChunkSize {
		end := off + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		h.Write(data[off:end])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Text hashes the UTF-8 encoding of normalized text.
func Text(s string) string {
	return Bytes([]byte(s))
}
