package memory

import "fmt"

// Source identifies which corpus a file belongs to.
type Source int

const (
	// SourceNotes covers the durable note corpus: the long-term memory file
	// plus daily notes under the memory directory.
	SourceNotes Source = iota
	// SourceConversation covers per-session transcript files.
	SourceConversation
)

// String returns the stable identifier persisted in the index store.
func (s Source) String() string {
	switch s {
	case SourceNotes:
		return "notes"
	case SourceConversation:
		return "conversation"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// ParseSource maps a persisted identifier back to a Source.
func ParseSource(value string) (Source, error) {
	switch value {
	case "notes":
		return SourceNotes, nil
	case "conversation":
		return SourceConversation, nil
	default:
		return 0, fmt.Errorf("unknown source %q", value)
	}
}
