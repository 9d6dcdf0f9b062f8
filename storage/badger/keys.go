package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/policyrag/core"
)

// Key prefixes for different data types. Every prefix ends with ':' so that
// prefix iteration never reaches the sequence keys.
const (
	documentPrefix            = "doc:"
	documentIDSeq             = "docseq"
	chunkPrefix               = "chk:"
	chunkIDSeq                = "chkseq"
	conversationPrefix        = "cnv:"
	conversationSessionPrefix = "cnvs:"
	conversationIDSeq         = "cnvseq"
	messagePrefix             = "msg:"
	messageIDSeq              = "msgseq"
)

// Integers are written in BigEndian order so lexicographic key order matches
// numeric order.

// makeDocumentKey generates a key for a document by ID.
// Format: prefix|id
func makeDocumentKey(id core.ID) []byte {
	buf := make([]byte, len(documentPrefix)+8)
	offset := copy(buf, documentPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeChunkKey generates a composite key for a chunk.
// Format: prefix|documentID|chunkIndex
func makeChunkKey(documentID core.ID, chunkIndex int) []byte {
	buf := make([]byte, len(chunkPrefix)+12)
	offset := copy(buf, chunkPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	offset += 8
	binary.BigEndian.PutUint32(buf[offset:], uint32(chunkIndex))
	return buf
}

// makePartialChunkKey generates the prefix shared by all chunks of a document.
// Format: prefix|documentID
func makePartialChunkKey(documentID core.ID) []byte {
	buf := make([]byte, len(chunkPrefix)+8)
	offset := copy(buf, chunkPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	return buf
}

// parseChunkKey extracts the document ID and chunk index from a chunk key.
func parseChunkKey(key []byte) (core.ID, int, bool) {
	if len(key) != len(chunkPrefix)+12 {
		return 0, 0, false
	}
	rest := key[len(chunkPrefix):]
	return core.ID(binary.BigEndian.Uint64(rest)), int(binary.BigEndian.Uint32(rest[8:])), true
}

// makeConversationKey generates a key for a conversation by ID.
func makeConversationKey(id core.ID) []byte {
	buf := make([]byte, len(conversationPrefix)+8)
	offset := copy(buf, conversationPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeSessionKey generates the session lookup key of a conversation.
// Format: prefix|sessionID
func makeSessionKey(sessionID string) []byte {
	return append([]byte(conversationSessionPrefix), sessionID...)
}

// makeMessageKey generates a composite key ordering messages by time.
// Format: prefix|conversationID|timestamp|messageID
func makeMessageKey(conversationID core.ID, timestamp time.Time, id core.ID) []byte {
	buf := make([]byte, len(messagePrefix)+24)
	offset := copy(buf, messagePrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(conversationID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialMessageKey generates the prefix shared by all messages of a conversation.
func makePartialMessageKey(conversationID core.ID) []byte {
	buf := make([]byte, len(messagePrefix)+8)
	offset := copy(buf, messagePrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(conversationID))
	return buf
}
