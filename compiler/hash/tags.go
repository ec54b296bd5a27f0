package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the IR digest serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// every build-cache key computed so far.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing digests.
const HashVersion byte = 1

const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Constant values
	TagNull   byte = 0x01
	TagBool   byte = 0x02
	TagInt    byte = 0x03
	TagFloat  byte = 0x04
	TagString byte = 0x05

	// Variables: slot-indexed when declared, by name otherwise
	TagLoadVar        byte = 0x10
	TagStoreVar       byte = 0x11
	TagAssignVar      byte = 0x12
	TagDeclareVar     byte = 0x13
	TagUnboundVarName byte = 0x14

	// Operators and calls
	TagLoadConst byte = 0x20
	TagBinaryOp  byte = 0x21
	TagUnaryOp   byte = 0x22
	TagCall      byte = 0x23
	TagReturn    byte = 0x24

	// Control flow: labels are numbered by first mention
	TagJump   byte = 0x30
	TagJumpIf byte = 0x31
	TagLabel  byte = 0x32

	// Arrays and objects
	TagCreateArray    byte = 0x40
	TagArrayAccess    byte = 0x41
	TagArrayStore     byte = 0x42
	TagCreateObject   byte = 0x43
	TagPropertyAccess byte = 0x44
	TagPropertyStore  byte = 0x45

	// Structure
	TagModule   byte = 0x50
	TagFunction byte = 0x51
	TagExports  byte = 0x52
	TagNilInstr byte = 0x53

	// Reserved 0xFE-0xFF
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagNull, TagBool, TagInt, TagFloat, TagString,
	TagLoadVar, TagStoreVar, TagAssignVar, TagDeclareVar, TagUnboundVarName,
	TagLoadConst, TagBinaryOp, TagUnaryOp, TagCall, TagReturn,
	TagJump, TagJumpIf, TagLabel,
	TagCreateArray, TagArrayAccess, TagArrayStore,
	TagCreateObject, TagPropertyAccess, TagPropertyStore,
	TagModule, TagFunction, TagExports, TagNilInstr,
}
