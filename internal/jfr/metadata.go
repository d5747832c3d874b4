package jfr

import "fmt"

// FieldMetadata describes one field of a self-described JFR type: its
// name, value type, repeated flag, and CP-referenced flag.
type FieldMetadata struct {
	Name         string
	TypeID       int64 // class ID of the field's value type
	ConstantPool bool  // value is a constant-pool index, not inline data
	Array        bool  // field is repeated (array/list)
}

// ClassMetadata describes one type in the chunk's metadata tree: its
// numeric type ID, field list, and (for enum types) its ordinal->name
// table.
type ClassMetadata struct {
	ID          int64
	Name        string
	Fields      []FieldMetadata
	IsEnum      bool
	EnumMembers map[int32]string
}

// Metadata is the chunk-tail metadata tree describing every type in
// effect for the chunk, indexed both by numeric ID (constant-pool /
// event dispatch) and by name (matching a requested EventClass, or an
// enum type by name for getEnumValue/getEnumKey).
type Metadata struct {
	ByID   map[int64]*ClassMetadata
	ByName map[string]*ClassMetadata
}

// parseMetadata decodes the chunk's metadata region: class count,
// per-class field list, per-enum member table. The exact binary layout
// is this module's own self-describing encoding, since the retrieved
// corpus did not include the original JfrReader's metadata grammar
// (see DESIGN.md).
func parseMetadata(r *byteReader) (*Metadata, error) {
	classCount, err := r.varint()
	if err != nil {
		return nil, fmt.Errorf("metadata class count: %w", err)
	}
	md := &Metadata{
		ByID:   make(map[int64]*ClassMetadata, classCount),
		ByName: make(map[string]*ClassMetadata, classCount),
	}
	for i := int64(0); i < classCount; i++ {
		cls, err := parseClassMetadata(r)
		if err != nil {
			return nil, fmt.Errorf("metadata class %d: %w", i, err)
		}
		md.ByID[cls.ID] = cls
		md.ByName[cls.Name] = cls
	}
	return md, nil
}

func parseClassMetadata(r *byteReader) (*ClassMetadata, error) {
	id, err := r.varint()
	if err != nil {
		return nil, err
	}
	nameBytes, err := r.readString(nil)
	if err != nil {
		return nil, err
	}
	flags, err := r.u8()
	if err != nil {
		return nil, err
	}
	isEnum := flags&0x1 != 0

	fieldCount, err := r.varint()
	if err != nil {
		return nil, err
	}
	fields := make([]FieldMetadata, fieldCount)
	for i := range fields {
		fnameBytes, err := r.readString(nil)
		if err != nil {
			return nil, err
		}
		typeID, err := r.varint()
		if err != nil {
			return nil, err
		}
		fflags, err := r.u8()
		if err != nil {
			return nil, err
		}
		fields[i] = FieldMetadata{
			Name:         string(fnameBytes),
			TypeID:       typeID,
			ConstantPool: fflags&0x1 != 0,
			Array:        fflags&0x2 != 0,
		}
	}

	cls := &ClassMetadata{ID: id, Name: string(nameBytes), Fields: fields, IsEnum: isEnum}
	if isEnum {
		memberCount, err := r.varint()
		if err != nil {
			return nil, err
		}
		cls.EnumMembers = make(map[int32]string, memberCount)
		for i := int64(0); i < memberCount; i++ {
			ordinal, err := r.varint()
			if err != nil {
				return nil, err
			}
			labelBytes, err := r.readString(nil)
			if err != nil {
				return nil, err
			}
			cls.EnumMembers[int32(ordinal)] = string(labelBytes)
		}
	}
	return cls, nil
}
