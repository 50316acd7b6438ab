package enum

import "strings"

// SpecialUse mirrors the RFC 6154 mailbox attributes.
type SpecialUse string

const (
	SpecialUseNone    SpecialUse = ""
	SpecialUseInbox   SpecialUse = `\Inbox`
	SpecialUseAll     SpecialUse = `\All`
	SpecialUseArchive SpecialUse = `\Archive`
	SpecialUseDrafts  SpecialUse = `\Drafts`
	SpecialUseFlagged SpecialUse = `\Flagged`
	SpecialUseJunk    SpecialUse = `\Junk`
	SpecialUseSent    SpecialUse = `\Sent`
	SpecialUseTrash   SpecialUse = `\Trash`
)

var specialUseAttributes = map[string]SpecialUse{
	`\all`:     SpecialUseAll,
	`\archive`: SpecialUseArchive,
	`\drafts`:  SpecialUseDrafts,
	`\flagged`: SpecialUseFlagged,
	`\junk`:    SpecialUseJunk,
	`\sent`:    SpecialUseSent,
	`\trash`:   SpecialUseTrash,
}

// well-known folder names for servers without SPECIAL-USE
var specialUseNames = map[string]SpecialUse{
	"inbox":            SpecialUseInbox,
	"sent":             SpecialUseSent,
	"sent items":       SpecialUseSent,
	"sent messages":    SpecialUseSent,
	"sent mail":        SpecialUseSent,
	"enviados":         SpecialUseSent,
	"itens enviados":   SpecialUseSent,
	"drafts":           SpecialUseDrafts,
	"rascunhos":        SpecialUseDrafts,
	"trash":            SpecialUseTrash,
	"deleted items":    SpecialUseTrash,
	"deleted messages": SpecialUseTrash,
	"lixeira":          SpecialUseTrash,
	"junk":             SpecialUseJunk,
	"spam":             SpecialUseJunk,
	"junk e-mail":      SpecialUseJunk,
	"archive":          SpecialUseArchive,
	"arquivo":          SpecialUseArchive,
	"all mail":         SpecialUseAll,
	"starred":          SpecialUseFlagged,
}

func (s SpecialUse) String() string {
	return string(s)
}

// SpecialUseFromAttributes picks the first RFC 6154 attribute in a LIST response.
func SpecialUseFromAttributes(attributes []string) SpecialUse {
	for _, attr := range attributes {
		if use, ok := specialUseAttributes[strings.ToLower(attr)]; ok {
			return use
		}
	}
	return SpecialUseNone
}

// SpecialUseFromName infers the role from the last path segment.
func SpecialUseFromName(path, delimiter string) SpecialUse {
	name := path
	if delimiter != "" {
		if idx := strings.LastIndex(path, delimiter); idx >= 0 {
			name = path[idx+len(delimiter):]
		}
	}
	if use, ok := specialUseNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		// only a top level INBOX is the inbox
		if use == SpecialUseInbox && !strings.EqualFold(path, "INBOX") {
			return SpecialUseNone
		}
		return use
	}
	return SpecialUseNone
}

func IsInbox(path string, specialUse string) bool {
	return strings.EqualFold(path, "INBOX") || SpecialUse(specialUse) == SpecialUseInbox
}
