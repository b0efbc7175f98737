package table

// Signature marks a command page holding a pending update.
const Signature = "Pico OTA"

// Command kinds
const (
	KindWrite = 0x01 // copy a file range into flash
)

// Table geometry
const (
	MaxEntries = 8
	NameField  = 63 // NUL-terminated filename
	MaxNameLen = NameField - 1
	EntrySize  = 1 + NameField + 4 + 4 + 4
)

// Byte offsets within the table
const (
	offSignature = 0
	offCount     = 8
	offEntries   = 12
	offFSStart   = offEntries + MaxEntries*EntrySize
	offFSBlock   = offFSStart + 4
	offFSSize    = offFSBlock + 4
	offCRC       = offFSSize + 4

	// Size is the encoded table length in bytes.
	Size = offCRC + 4
)

// Byte offsets within an entry
const (
	entKind   = 0
	entName   = 1
	entOffset = entName + NameField
	entLength = entOffset + 4
	entAddr   = entLength + 4
)

// KindName returns a human-readable name for a command kind.
func KindName(kind byte) string {
	switch kind {
	case KindWrite:
		return "write"
	default:
		return "unknown"
	}
}
