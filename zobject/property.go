package zobject

import (
	"fmt"

	"github.com/davetcode/zeta/zcore"
)

type Property struct {
	Id                   uint8
	Length               uint8
	PropertyHeaderLength uint8
	Address              uint32
	DataAddress          uint32
}

// PropertyTooLongError is raised by SetProperty on a property longer than
// two bytes; the standard makes this a fatal interpreter error.
type PropertyTooLongError struct {
	Object   uint16
	Property uint8
}

func (e PropertyTooLongError) Error() string {
	return fmt.Sprintf("put_prop on property %d of object %d with length > 2", e.Property, e.Object)
}

// MissingPropertyError is raised when an operation requires a property the
// object does not carry.
type MissingPropertyError struct {
	Object   uint16
	Property uint8
}

func (e MissingPropertyError) Error() string {
	return fmt.Sprintf("object %d has no property %d", e.Object, e.Property)
}

// GetPropertyLength recovers a property's length from the size byte(s)
// preceding its data address.
func GetPropertyLength(core *zcore.Core, dataAddr uint32) uint16 {
	if dataAddr == 0 {
		return 0 // get_prop_len 0 must return 0 for some story files
	}

	prevByte := core.ReadByte(dataAddr - 1)
	if core.Version <= 3 {
		return uint16(prevByte>>5) + 1
	} else if prevByte&0b1000_0000 != 0 {
		length := uint16(prevByte & 0b11_1111)
		if length == 0 {
			length = 64 // 12.4.2.1.1 - length 0 means 64
		}
		return length
	} else {
		return uint16((prevByte>>6)&1) + 1
	}
}

// firstPropertyAddress is the address just past the length-prefixed short
// name at the head of the property table.
func (o *Object) firstPropertyAddress(core *zcore.Core) uint32 {
	nameLength := core.ReadByte(uint32(o.PropertyPointer))
	return uint32(o.PropertyPointer) + 1 + 2*uint32(nameLength)
}

// GetProperty finds propertyId in the object's property list. Properties
// are stored in descending number order; a miss returns the global default
// with DataAddress 0.
func (o *Object) GetProperty(propertyId uint8, core *zcore.Core) (Property, uint16) {
	if o.Id != 0 {
		currentPtr := o.firstPropertyAddress(core)

		for core.ReadByte(currentPtr) != 0 {
			property := GetPropertyByAddress(currentPtr, core)

			if property.Id == propertyId {
				return property, propertyValue(property, core)
			}
			if property.Id < propertyId { // descending order, no match possible
				break
			}

			currentPtr = property.DataAddress + uint32(property.Length)
		}
	}

	// Fall back to the default property table at the head of the object table
	defaultAddress := uint32(core.ObjectTableBase) + 2*uint32(propertyId-1)
	return Property{Id: propertyId}, core.ReadHalfWord(defaultAddress)
}

func propertyValue(property Property, core *zcore.Core) uint16 {
	switch property.Length {
	case 1:
		return uint16(core.ReadByte(property.DataAddress))
	default:
		// get_prop on longer properties is undefined; the first word is
		// what Infocom's own interpreters returned
		return core.ReadHalfWord(property.DataAddress)
	}
}

// GetPropertyByAddress decodes the size byte(s) at propertyAddr.
func GetPropertyByAddress(propertyAddr uint32, core *zcore.Core) Property {
	propertySizeByte := core.ReadByte(propertyAddr)
	length := (propertySizeByte >> 5) + 1
	id := propertySizeByte & 0b1_1111
	propertyHeaderLength := uint8(1)

	if core.Version >= 4 {
		if propertySizeByte>>7 == 1 {
			length = core.ReadByte(propertyAddr+1) & 0b11_1111
			if length == 0 {
				length = 64 // 12.4.2.1.1
			}
			id = propertySizeByte & 0b11_1111
			propertyHeaderLength = 2
		} else {
			length = ((propertySizeByte >> 6) & 1) + 1
			id = propertySizeByte & 0b11_1111
		}
	}

	return Property{
		Id:                   id,
		Length:               length,
		PropertyHeaderLength: propertyHeaderLength,
		Address:              propertyAddr,
		DataAddress:          propertyAddr + uint32(propertyHeaderLength),
	}
}

// SetProperty writes a 1 or 2 byte property value in place. The property
// must exist on the object.
func (o *Object) SetProperty(propertyId uint8, value uint16, core *zcore.Core) {
	if o.Id == 0 {
		panic(MissingPropertyError{Object: 0, Property: propertyId})
	}

	currentPtr := o.firstPropertyAddress(core)

	for core.ReadByte(currentPtr) != 0 {
		property := GetPropertyByAddress(currentPtr, core)

		if property.Id == propertyId {
			switch property.Length {
			case 1:
				core.WriteByte(property.DataAddress, uint8(value))
			case 2:
				core.WriteHalfWord(property.DataAddress, value)
			default:
				panic(PropertyTooLongError{Object: o.Id, Property: propertyId})
			}
			return
		}

		currentPtr = property.DataAddress + uint32(property.Length)
	}

	panic(MissingPropertyError{Object: o.Id, Property: propertyId})
}

// GetPropertyAddress returns the address of the property data, or 0 when
// the object lacks the property.
func (o *Object) GetPropertyAddress(propertyId uint8, core *zcore.Core) uint16 {
	if o.Id == 0 {
		return 0
	}

	currentPtr := o.firstPropertyAddress(core)

	for core.ReadByte(currentPtr) != 0 {
		property := GetPropertyByAddress(currentPtr, core)

		if property.Id == propertyId {
			return uint16(property.DataAddress)
		}
		if property.Id < propertyId {
			break
		}

		currentPtr = property.DataAddress + uint32(property.Length)
	}

	return 0
}

// GetNextProperty walks the descending property list: 0 yields the first
// property number, the last property yields 0.
func (o *Object) GetNextProperty(propertyId uint8, core *zcore.Core) uint8 {
	if o.Id == 0 {
		return 0
	}

	currentPtr := o.firstPropertyAddress(core)

	if propertyId == 0 {
		if core.ReadByte(currentPtr) == 0 {
			return 0
		}
		return GetPropertyByAddress(currentPtr, core).Id
	}

	for core.ReadByte(currentPtr) != 0 {
		property := GetPropertyByAddress(currentPtr, core)
		nextPtr := property.DataAddress + uint32(property.Length)

		if property.Id == propertyId {
			if core.ReadByte(nextPtr) == 0 {
				return 0
			}
			return GetPropertyByAddress(nextPtr, core).Id
		}

		currentPtr = nextPtr
	}

	panic(MissingPropertyError{Object: o.Id, Property: propertyId})
}
