// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch holds the linux/amd64-specific constants the rest of cdbg
// needs: register width, pointer width, and the one-byte software trap
// instruction used for breakpoints.
package arch

import "encoding/binary"

// AMD64 is the only supported architecture: Non-goals exclude every other.
var AMD64 = Info{
	BreakpointSize:  1,
	IntSize:         8,
	PointerSize:     8,
	ByteOrder:       binary.LittleEndian,
	BreakpointInstr: 0xCC, // INT 3
}

// Info carries the byte widths and trap instruction needed to decode
// tracee memory and registers.
type Info struct {
	BreakpointSize  int
	IntSize         int
	PointerSize     int
	ByteOrder       binary.ByteOrder
	BreakpointInstr byte
}

// Uint decodes an unsigned integer of the given byte width from buf,
// using the architecture's byte order.
func (a *Info) Uint(buf []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(a.ByteOrder.Uint16(buf))
	case 4:
		return uint64(a.ByteOrder.Uint32(buf))
	case 8:
		return a.ByteOrder.Uint64(buf)
	}
	panic("arch: unsupported integer width")
}

// Int decodes a signed integer of the given byte width from buf, using
// the architecture's byte order and sign-extending to int64.
func (a *Info) Int(buf []byte, width int) int64 {
	u := a.Uint(buf, width)
	switch width {
	case 1:
		return int64(int8(u))
	case 2:
		return int64(int16(u))
	case 4:
		return int64(int32(u))
	default:
		return int64(u)
	}
}

// PutUint encodes an unsigned integer of the given byte width into buf.
func (a *Info) PutUint(buf []byte, width int, v uint64) {
	switch width {
	case 1:
		buf[0] = byte(v)
	case 2:
		a.ByteOrder.PutUint16(buf, uint16(v))
	case 4:
		a.ByteOrder.PutUint32(buf, uint32(v))
	case 8:
		a.ByteOrder.PutUint64(buf, v)
	default:
		panic("arch: unsupported integer width")
	}
}

// Uintptr decodes a pointer-width value from buf.
func (a *Info) Uintptr(buf []byte) uint64 {
	return a.Uint(buf, a.PointerSize)
}
