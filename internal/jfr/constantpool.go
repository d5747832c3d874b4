package jfr

import "fmt"

// Fixed metadata type names the reader recognizes. Mirrors how
// one.convert.JfrConverter and the rest of the original async-profiler
// converter address jfr.symbols / jfr.classes / jfr.methods /
// jfr.stackTraces / jfr.threads as fixed dictionaries rather than
// generic metadata-driven structures: a handful of well-known JFR
// type names get hardcoded parsers, everything else is opaque and
// skipped by its length prefix.
const (
	typeNameSymbol     = "jdk.types.Symbol"
	typeNameClass      = "java.lang.Class"
	typeNameMethod     = "jdk.types.Method"
	typeNameStackTrace = "jdk.types.StackTrace"
	typeNameThread     = "java.lang.Thread"

	// TypeNameFrameType and TypeNameThreadState are exported for
	// callers of Reader.GetEnumValue/GetEnumKey; inside this package
	// they back HasNativeFrameType and MatchThreadState.
	TypeNameFrameType   = "jdk.types.FrameType"
	TypeNameThreadState = "jdk.types.ThreadState"
	typeNameFrameType   = TypeNameFrameType
	typeNameThreadState = TypeNameThreadState
)

// dictionaries holds the reader-owned constant pools for the chunk
// currently being parsed: a plain map for symbols and one Dictionary per
// ClassRef/MethodRef/StackTrace/ThreadRef table.
type dictionaries struct {
	symbols     map[int64][]byte
	classes     *Dictionary[ClassRef]
	methods     *Dictionary[MethodRef]
	stackTraces *Dictionary[StackTrace]
	threads     *Dictionary[ThreadRef]
}

func newDictionaries() *dictionaries {
	return &dictionaries{
		symbols:     make(map[int64][]byte),
		classes:     NewDictionary[ClassRef](0),
		methods:     NewDictionary[MethodRef](0),
		stackTraces: NewDictionary[StackTrace](0),
		threads:     NewDictionary[ThreadRef](0),
	}
}

// parseCheckpoints walks the checkpoint (constant-pool delta) chain
// starting at the chunk's constant-pool offset, a linked list threaded
// through delta fields, merging every pool into dict.
func parseCheckpoints(r *byteReader, cpoolOffset int, md *Metadata, dict *dictionaries) error {
	pos := cpoolOffset
	for {
		if err := r.seek(pos); err != nil {
			return fmt.Errorf("seek to checkpoint at %d: %w", pos, err)
		}
		delta, err := r.varint()
		if err != nil {
			return fmt.Errorf("checkpoint delta: %w", err)
		}
		if err := parseCheckpointPools(r, md, dict); err != nil {
			return err
		}
		if delta == 0 {
			return nil
		}
		pos += int(delta)
	}
}

func parseCheckpointPools(r *byteReader, md *Metadata, dict *dictionaries) error {
	poolCount, err := r.varint()
	if err != nil {
		return fmt.Errorf("checkpoint pool count: %w", err)
	}
	for i := int64(0); i < poolCount; i++ {
		classID, err := r.varint()
		if err != nil {
			return fmt.Errorf("checkpoint pool %d class id: %w", i, err)
		}
		length, err := r.varint()
		if err != nil {
			return fmt.Errorf("checkpoint pool %d length: %w", i, err)
		}
		start := r.offset()
		cls, known := md.ByID[classID]
		if !known {
			return fmt.Errorf("unknown constant pool class id %d", classID)
		}
		if err := parsePool(r, cls.Name, dict); err != nil {
			return fmt.Errorf("constant pool %s: %w", cls.Name, err)
		}
		if err := r.seek(start + int(length)); err != nil {
			return fmt.Errorf("advance past pool %s: %w", cls.Name, err)
		}
	}
	return nil
}

func parsePool(r *byteReader, className string, dict *dictionaries) error {
	switch className {
	case typeNameSymbol:
		return parseSymbolPool(r, dict)
	case typeNameClass:
		return parseClassPool(r, dict)
	case typeNameMethod:
		return parseMethodPool(r, dict)
	case typeNameStackTrace:
		return parseStackTracePool(r, dict)
	case typeNameThread:
		return parseThreadPool(r, dict)
	default:
		// Unsupported constant pool: its enclosing length prefix lets
		// the caller skip past it safely.
		return nil
	}
}

func parseSymbolPool(r *byteReader, dict *dictionaries) error {
	n, err := r.varint()
	if err != nil {
		return err
	}
	for i := int64(0); i < n; i++ {
		id, err := r.varint()
		if err != nil {
			return err
		}
		s, err := r.readString(dict.symbols)
		if err != nil {
			return err
		}
		dict.symbols[id] = s
	}
	return nil
}

func parseClassPool(r *byteReader, dict *dictionaries) error {
	n, err := r.varint()
	if err != nil {
		return err
	}
	for i := int64(0); i < n; i++ {
		id, err := r.varint()
		if err != nil {
			return err
		}
		name, err := r.varint()
		if err != nil {
			return err
		}
		pkg, err := r.varint()
		if err != nil {
			return err
		}
		mods, err := r.u16()
		if err != nil {
			return err
		}
		dict.classes.Put(id, ClassRef{Name: name, Package: pkg, Modifiers: mods})
	}
	return nil
}

func parseMethodPool(r *byteReader, dict *dictionaries) error {
	n, err := r.varint()
	if err != nil {
		return err
	}
	for i := int64(0); i < n; i++ {
		id, err := r.varint()
		if err != nil {
			return err
		}
		cls, err := r.varint()
		if err != nil {
			return err
		}
		name, err := r.varint()
		if err != nil {
			return err
		}
		sig, err := r.varint()
		if err != nil {
			return err
		}
		mods, err := r.u16()
		if err != nil {
			return err
		}
		typ, err := r.u8()
		if err != nil {
			return err
		}
		dict.methods.Put(id, MethodRef{Class: cls, Name: name, Sig: sig, Modifiers: mods, Type: typ})
	}
	return nil
}

func parseStackTracePool(r *byteReader, dict *dictionaries) error {
	n, err := r.varint()
	if err != nil {
		return err
	}
	for i := int64(0); i < n; i++ {
		id, err := r.varint()
		if err != nil {
			return err
		}
		truncatedByte, err := r.u8()
		if err != nil {
			return err
		}
		frameCount, err := r.varint()
		if err != nil {
			return err
		}
		st := StackTrace{
			Truncated: truncatedByte != 0,
			Methods:   make([]int64, frameCount),
			Types:     make([]byte, frameCount),
			Locations: make([]uint32, frameCount),
		}
		for f := int64(0); f < frameCount; f++ {
			methodID, err := r.varint()
			if err != nil {
				return err
			}
			frameType, err := r.u8()
			if err != nil {
				return err
			}
			loc, err := r.varint()
			if err != nil {
				return err
			}
			st.Methods[f] = methodID
			st.Types[f] = frameType
			st.Locations[f] = uint32(loc)
		}
		dict.stackTraces.Put(id, st)
	}
	return nil
}

func parseThreadPool(r *byteReader, dict *dictionaries) error {
	n, err := r.varint()
	if err != nil {
		return err
	}
	for i := int64(0); i < n; i++ {
		id, err := r.varint()
		if err != nil {
			return err
		}
		name, err := r.readString(dict.symbols)
		if err != nil {
			return err
		}
		dict.threads.Put(id, ThreadRef{Name: string(name)})
	}
	return nil
}
