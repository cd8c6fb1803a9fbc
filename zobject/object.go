package zobject

import (
	"github.com/davetcode/zeta/zcore"
	"github.com/davetcode/zeta/zstring"
)

type Object struct {
	BaseAddress     uint32
	Id              uint16
	Name            string
	Attributes      uint64 // Bytes 0-3 are valid in all versions, 4-5 only in V4+
	Parent          uint16 // uint8 on v1-3
	Sibling         uint16 // uint8 on v1-3
	Child           uint16 // uint8 on v1-3
	PropertyPointer uint16
}

// entrySize is 9 bytes on v1-3 (4 attribute bytes, three u8 links, property
// word) and 14 on v4+ (6 attribute bytes, three u16 links, property word).
func entrySize(version uint8) uint32 {
	if version >= 4 {
		return 14
	}
	return 9
}

// The object table opens with the default property words: 31 on v1-3, 63
// on v4+.
func defaultPropertiesSize(version uint8) uint32 {
	if version >= 4 {
		return 63 * 2
	}
	return 31 * 2
}

func attributeCount(version uint8) uint16 {
	if version >= 4 {
		return 48
	}
	return 32
}

func entryAddress(objId uint16, core *zcore.Core) uint32 {
	return uint32(core.ObjectTableBase) + defaultPropertiesSize(core.Version) + uint32(objId-1)*entrySize(core.Version)
}

// GetObject reads the object entry for objId. Object 0 is "nothing": it has
// no tree links, attributes or properties and is returned as a zero value.
func GetObject(objId uint16, core *zcore.Core, alphabets *zstring.Alphabets) Object {
	if objId == 0 {
		return Object{}
	}

	objectBase := entryAddress(objId, core)

	if core.Version >= 4 {
		propertyPtr := core.ReadHalfWord(objectBase + 12)
		return Object{
			Id:              objId,
			Name:            shortName(propertyPtr, core, alphabets),
			Attributes:      attributeBits(objectBase, core),
			Parent:          core.ReadHalfWord(objectBase + 6),
			Sibling:         core.ReadHalfWord(objectBase + 8),
			Child:           core.ReadHalfWord(objectBase + 10),
			PropertyPointer: propertyPtr,
			BaseAddress:     objectBase,
		}
	}

	propertyPtr := core.ReadHalfWord(objectBase + 7)
	return Object{
		Id:              objId,
		Name:            shortName(propertyPtr, core, alphabets),
		Attributes:      attributeBits(objectBase, core),
		Parent:          uint16(core.ReadByte(objectBase + 4)),
		Sibling:         uint16(core.ReadByte(objectBase + 5)),
		Child:           uint16(core.ReadByte(objectBase + 6)),
		PropertyPointer: propertyPtr,
		BaseAddress:     objectBase,
	}
}

// Attribute bits live at the top of the entry, attribute 0 being the high
// bit of the first byte. They are held in the top bits of a uint64.
func attributeBits(objectBase uint32, core *zcore.Core) uint64 {
	attributeBytes := 4
	if core.Version >= 4 {
		attributeBytes = 6
	}

	bits := uint64(0)
	for i := 0; i < attributeBytes; i++ {
		bits |= uint64(core.ReadByte(objectBase+uint32(i))) << (56 - 8*i)
	}
	return bits
}

func shortName(propertyPtr uint16, core *zcore.Core, alphabets *zstring.Alphabets) string {
	nameLength := core.ReadByte(uint32(propertyPtr))
	if nameLength == 0 {
		return ""
	}
	name, _ := zstring.Decode(uint32(propertyPtr)+1, core, alphabets)
	return name
}

// TestAttribute reports whether the attribute is set. Out of range
// attributes read as false.
func (o *Object) TestAttribute(attribute uint16) bool {
	if o.Id == 0 || attribute >= 48 {
		return false
	}
	mask := uint64(1) << (63 - attribute)
	return o.Attributes&mask == mask
}

// ValidAttribute reports whether the attribute number exists in this story
// version. Writes outside the range are no-ops the machine warns about.
func ValidAttribute(attribute uint16, version uint8) bool {
	return attribute < attributeCount(version)
}

func (o *Object) SetAttribute(attribute uint16, core *zcore.Core) {
	if o.Id == 0 || !ValidAttribute(attribute, core.Version) {
		return
	}

	o.Attributes |= uint64(1) << (63 - attribute)
	o.writeAttributes(core)
}

func (o *Object) ClearAttribute(attribute uint16, core *zcore.Core) {
	if o.Id == 0 || !ValidAttribute(attribute, core.Version) {
		return
	}

	o.Attributes &^= uint64(1) << (63 - attribute)
	o.writeAttributes(core)
}

func (o *Object) writeAttributes(core *zcore.Core) {
	attributeBytes := 4
	if core.Version >= 4 {
		attributeBytes = 6
	}

	for i := 0; i < attributeBytes; i++ {
		core.WriteByte(o.BaseAddress+uint32(i), uint8(o.Attributes>>(56-8*i)))
	}
}

func (o *Object) SetParent(parent uint16, core *zcore.Core) {
	if o.Id == 0 {
		return
	}
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+6, parent)
	} else {
		core.WriteByte(o.BaseAddress+4, uint8(parent))
	}
	o.Parent = parent
}

func (o *Object) SetSibling(sibling uint16, core *zcore.Core) {
	if o.Id == 0 {
		return
	}
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+8, sibling)
	} else {
		core.WriteByte(o.BaseAddress+5, uint8(sibling))
	}
	o.Sibling = sibling
}

func (o *Object) SetChild(child uint16, core *zcore.Core) {
	if o.Id == 0 {
		return
	}
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+10, child)
	} else {
		core.WriteByte(o.BaseAddress+6, uint8(child))
	}
	o.Child = child
}
