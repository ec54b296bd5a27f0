// Package bytecode defines the value and instruction model shared by the
// velac emitter, loader and reference VM.
//
// The bytecode format is designed for:
//   - Compact representation (1-3 bytes per instruction)
//   - Fast decoding (one-byte opcodes, fixed operand widths per opcode)
//   - Easy serialization (a little-endian binary form plus self-describing
//     CBOR and MessagePack envelopes carrying the same structure)
//
// # Architecture Overview
//
//   - Value: the five immediate variants (Null, Bool, Int, Float, String).
//     Equality is structural; floats compare by bit pattern so that distinct
//     NaN payloads stay distinct in the constant pool.
//
//   - Opcodes: a closed set of stack instructions. Operands are u8 (local
//     slots, function indices, argument counts, array sizes), u16 big-endian
//     (constant-pool indices) or i16 big-endian (relative jump offsets).
//
//   - ConstantPool: per-program table of unique values addressed by u16.
//
//   - Builder: appends instructions for one function and back-patches jump
//     operands once their targets are known.
//
//   - Program: function table, shared constant pool and exported symbols.
//     Programs serialize to the "VELA" binary form (Encode/Decode) or to an
//     envelope (MarshalCBOR, MarshalMsgpack).
//
// # Jump Offsets
//
// A jump operand is a signed 16-bit offset relative to the end of the jump
// instruction: target = site + 3 + offset. Operands inside code bytes are
// big-endian even though the surrounding file format is little-endian.
package bytecode
