package expr

import "debug/dwarf"

// StripTypedefsQuals unwraps Typedef and Qualified (const/volatile/
// _Atomic/restrict) wrappers to reach the underlying concrete type, so
// that field lookup and array/pointer checks "see through" a typedef,
// per the spec's type-graph rules. The qualifier and typedef names
// themselves are preserved by the printer, which works from the
// original (unstripped) type.
func StripTypedefsQuals(t dwarf.Type) dwarf.Type {
	for {
		switch u := t.(type) {
		case *dwarf.TypedefType:
			t = u.Type
		case *dwarf.QualType:
			t = u.Type
		default:
			return t
		}
	}
}

// Sizeof returns the byte size of t, following typedefs/qualifiers to
// reach a type with a known ByteSize (pointers and arrays of unknown
// element type otherwise report 0 from DWARF).
func Sizeof(t dwarf.Type) int64 {
	if t == nil {
		return 0
	}
	if c := t.Common(); c != nil && c.ByteSize > 0 {
		return c.ByteSize
	}
	switch u := StripTypedefsQuals(t).(type) {
	case *dwarf.PtrType:
		return 8
	case *dwarf.ArrayType:
		return u.ByteSize
	}
	return 0
}
