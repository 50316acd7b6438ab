package utils

import (
	"fmt"
	"strings"
)

func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}

// SyntheticMessageID builds a stable id for messages that arrive without a Message-ID header.
// The same folder, uidvalidity and uid always produce the same value, so re-observation dedups.
func SyntheticMessageID(accountID, folder string, uidValidity, uid uint32) string {
	folder = strings.NewReplacer(" ", "_", "/", ".", "@", "_").Replace(folder)
	return fmt.Sprintf("%s.%d.%d@%s.mailsync", folder, uidValidity, uid, accountID)
}

// ParseReferences splits a raw References header into normalized message ids.
func ParseReferences(raw string) []string {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, ":"); idx >= 0 && strings.EqualFold(strings.TrimSpace(raw[:idx]), "references") {
		raw = raw[idx+1:]
	}
	var refs []string
	for _, field := range strings.Fields(raw) {
		ref := NormalizeMessageID(field)
		if ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}
