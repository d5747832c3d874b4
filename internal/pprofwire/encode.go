package pprofwire

import (
	"bytes"

	"github.com/klauspost/compress/gzip"
)

// Field numbers from the pprof v1 proto (Profile, ValueType, Sample,
// Label, Location, Line, Function messages).
const (
	fieldProfileSampleType   = 1
	fieldProfileSample       = 2
	fieldProfileLocation     = 4
	fieldProfileFunction     = 5
	fieldProfileStringTable  = 6
	fieldProfileTimeNanos    = 9
	fieldProfileDuration     = 10
	fieldProfileComment      = 13
	fieldProfileDefaultType  = 14
	fieldValueTypeType       = 1
	fieldValueTypeUnit       = 2
	fieldSampleLocationID    = 1
	fieldSampleValue         = 2
	fieldSampleLabel         = 3
	fieldLabelKey            = 1
	fieldLabelStr            = 2
	fieldLabelNum            = 3
	fieldLabelNumUnit        = 4
	fieldLocationID          = 1
	fieldLocationLine        = 4
	fieldLineFunctionID      = 1
	fieldFunctionID          = 1
	fieldFunctionName        = 2
)

// ValueType names one of a profile's measurement dimensions, e.g.
// {"samples", "count"} or {"alloc_space", "bytes"}.
type ValueType struct {
	Type string
	Unit string
}

// Label attaches extra context to a sample, either a string (Str) or a
// numeric value with an optional unit (Num/NumUnit). Exactly one of the
// two should be set.
type Label struct {
	Key     string
	Str     string
	Num     int64
	NumUnit string
}

type sampleRec struct {
	locationIDs []int64
	value       []int64
	labels      []Label
}

// Builder assembles a pprof profile incrementally and encodes it to the
// protobuf wire format on demand. It keeps one Location per distinct
// frame name (frames in this domain carry no source line information),
// so Location and Function IDs coincide.
type Builder struct {
	sampleTypes       []ValueType
	defaultSampleType string
	comments          []string
	timeNanos         int64
	durationNanos     int64

	strTab  *Index[string]
	funcIdx *Index[string]
	samples []sampleRec
}

// NewBuilder creates a builder for a profile with the given sample
// dimensions.
func NewBuilder(sampleTypes []ValueType, defaultSampleType string) *Builder {
	return &Builder{
		sampleTypes:       sampleTypes,
		defaultSampleType: defaultSampleType,
		strTab:            NewIndex(""),
		funcIdx:           NewIndex(""),
	}
}

// InternFrame returns the Location/Function ID for a frame name,
// assigning it a fresh ID on first use.
func (b *Builder) InternFrame(name string) int64 {
	return b.funcIdx.Get(name)
}

// AddSample records one sample. frameIDs must be leaf-first (innermost
// call first), matching pprof's own location_id convention. value must
// have one entry per sample type the builder was created with.
func (b *Builder) AddSample(frameIDs []int64, value []int64, labels []Label) {
	b.samples = append(b.samples, sampleRec{locationIDs: frameIDs, value: value, labels: labels})
}

func (b *Builder) SetTimeNanos(t int64)     { b.timeNanos = t }
func (b *Builder) SetDurationNanos(d int64) { b.durationNanos = d }
func (b *Builder) AddComment(c string)      { b.comments = append(b.comments, c) }

// Encode serializes the profile to the pprof wire format. Field order
// on the wire needn't match field-number order since every field is
// self-tagged, so string-table entries referenced by comments and the
// default sample type are resolved before the loop that encodes
// sample_type/sample/location/function, and the string table itself is
// emitted after every Get() call anywhere in the builder has run,
// followed only by fields whose string indexes were resolved up front.
func (b *Builder) Encode() []byte {
	var defaultIdx int64
	if b.defaultSampleType != "" {
		defaultIdx = b.strTab.Get(b.defaultSampleType)
	}
	commentIdxs := make([]int64, len(b.comments))
	for i, c := range b.comments {
		commentIdxs[i] = b.strTab.Get(c)
	}

	buf := newBuffer()

	for _, st := range b.sampleTypes {
		st := st
		buf.writeMessageField(fieldProfileSampleType, func(m *buffer) {
			m.writeVarintFieldAlways(fieldValueTypeType, b.strTab.Get(st.Type))
			m.writeVarintFieldAlways(fieldValueTypeUnit, b.strTab.Get(st.Unit))
		})
	}

	for _, s := range b.samples {
		s := s
		buf.writeMessageField(fieldProfileSample, func(m *buffer) {
			b.encodeSample(m, s)
		})
	}

	names := b.funcIdx.Values()
	for id := 1; id < len(names); id++ {
		fid := int64(id)
		buf.writeMessageField(fieldProfileLocation, func(m *buffer) {
			m.writeVarintFieldAlways(fieldLocationID, fid)
			m.writeMessageField(fieldLocationLine, func(lm *buffer) {
				lm.writeVarintFieldAlways(fieldLineFunctionID, fid)
			})
		})
		nameIdx := b.strTab.Get(names[id])
		buf.writeMessageField(fieldProfileFunction, func(m *buffer) {
			m.writeVarintFieldAlways(fieldFunctionID, fid)
			m.writeVarintFieldAlways(fieldFunctionName, nameIdx)
		})
	}

	for _, s := range b.strTab.Values() {
		buf.writeTag(fieldProfileStringTable, wireBytes)
		buf.writeVarint(uint64(len(s)))
		buf.buf = append(buf.buf, s...)
	}

	buf.writeVarintField(fieldProfileTimeNanos, b.timeNanos)
	buf.writeVarintField(fieldProfileDuration, b.durationNanos)
	for _, idx := range commentIdxs {
		buf.writeVarintFieldAlways(fieldProfileComment, idx)
	}
	if b.defaultSampleType != "" {
		buf.writeVarintFieldAlways(fieldProfileDefaultType, defaultIdx)
	}
	return buf.Bytes()
}

func (b *Builder) encodeSample(m *buffer, s sampleRec) {
	for _, loc := range s.locationIDs {
		m.writeVarintFieldAlways(fieldSampleLocationID, loc)
	}
	for _, v := range s.value {
		m.writeVarintFieldAlways(fieldSampleValue, v)
	}
	for _, l := range s.labels {
		l := l
		m.writeMessageField(fieldSampleLabel, func(lm *buffer) {
			b.encodeLabel(lm, l)
		})
	}
}

func (b *Builder) encodeLabel(m *buffer, l Label) {
	m.writeVarintFieldAlways(fieldLabelKey, b.strTab.Get(l.Key))
	if l.Str != "" {
		m.writeVarintFieldAlways(fieldLabelStr, b.strTab.Get(l.Str))
	}
	if l.Num != 0 {
		m.writeVarintFieldAlways(fieldLabelNum, l.Num)
	}
	if l.NumUnit != "" {
		m.writeVarintFieldAlways(fieldLabelNumUnit, b.strTab.Get(l.NumUnit))
	}
}

// EncodeGzip encodes the profile and gzip-frames it, matching how real
// pprof tooling (and github.com/google/pprof's own reader) expects
// profiles to be stored on disk.
func (b *Builder) EncodeGzip() ([]byte, error) {
	raw := b.Encode()
	var out bytes.Buffer
	gw := gzip.NewWriter(&out)
	if _, err := gw.Write(raw); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
