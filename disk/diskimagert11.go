package disk

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const RT11_HEADER_SIZE = 10
const RT11_ENTRY_MIN_SIZE = 14
const RT11_ENTRY_DATE_SIZE = 16
const RT11_CATALOG_BLOCK = 6
const RT11_DATA_START_BLOCK = 14
const RT11_MAX_SEGMENTS = 50
const RT11_MAX_EXTRA_BYTES = 20
const RT11_MAX_START_BLOCK = 65536
const RT11_SUSPECT_LENGTH = 100000
const RT11_EPOCH_YEAR = 1972

const RT11_EMBEDDED_TYPE = "DAT"

// Candidate blocks for directory segments, probed in this order. Variant
// and repartitioned images park the directory away from its canonical home
// at block 6, so the common variant location is tried first. Segment
// indexes follow this order, not physical block order.
var RT11_SEGMENT_CANDIDATES = []int{1, 6, 2, 3, 4, 5, 7, 8, 9, 10}

// Entry status word bits, the E.* flag values of the on-disk format. Bits
// combine: a protected file carries both RT11_E_PROT and RT11_E_PERM.
const (
	RT11_E_TENT RT11Status = 0o000400 // tentative file
	RT11_E_MPTY RT11Status = 0o001000 // empty area
	RT11_E_PERM RT11Status = 0o002000 // permanent file
	RT11_E_EOS  RT11Status = 0o004000 // end of segment marker
	RT11_E_PROT RT11Status = 0o100000 // protected from deletion
)

// RT11Status is the word 0 bitmask of a directory entry.
type RT11Status int

func (s RT11Status) IsTentative() bool    { return s&RT11_E_TENT != 0 }
func (s RT11Status) IsEmptyArea() bool    { return s&RT11_E_MPTY != 0 }
func (s RT11Status) IsPermanent() bool    { return s&RT11_E_PERM != 0 }
func (s RT11Status) IsEndOfSegment() bool { return s&RT11_E_EOS != 0 }
func (s RT11Status) IsProtected() bool    { return s&RT11_E_PROT != 0 }

func (s RT11Status) String() string {
	var tags []string
	if s.IsPermanent() {
		tags = append(tags, "PERM")
	}
	if s.IsTentative() {
		tags = append(tags, "TENT")
	}
	if s.IsEmptyArea() {
		tags = append(tags, "EMPTY")
	}
	if s.IsProtected() {
		tags = append(tags, "PROT")
	}
	if s.IsEndOfSegment() {
		tags = append(tags, "EOS")
	}
	if len(tags) == 0 {
		return fmt.Sprintf("%#o", int(s))
	}
	return strings.Join(tags, "+")
}

// Marker strings that flag a block body as file content rather than an
// entry table: command verbs and extensions that turn up in batch files,
// CSI command blocks and directory listings on RT-11 volumes.
var RT11_CONTENT_MARKERS = []string{
	"RT-11", "RT11",
	".SAV", ".SYS", ".MAC", ".OBJ", ".TXT", ".DAT", ".BAS", ".FOR", ".COM",
	"MONITOR", "DIRECT", "COPY", "DELETE", "RENAME", "RUN ",
}

var RT11TypeDescriptions = map[string]string{
	"SAV": "Runnable Image",
	"SYS": "System File",
	"MAC": "MACRO-11 Source",
	"OBJ": "Object Module",
	"BAS": "BASIC-11 Source",
	"FOR": "FORTRAN IV Source",
	"TXT": "Text File",
	"DAT": "Data File",
	"COM": "Command File",
	"BAK": "Backup",
	"LST": "Listing",
	"REL": "Relocatable Image",
	"DIR": "Directory Listing",
	"BAD": "Bad Block File",
}

func RT11TypeDescription(ext string) string {
	if desc, ok := RT11TypeDescriptions[strings.ToUpper(ext)]; ok {
		return desc
	}
	return "Unknown"
}

// RT11IsTextType reports whether files of the given type are stored as
// plain text and are worth an ASCII sidecar on extraction.
func RT11IsTextType(ext string) bool {
	switch strings.ToUpper(ext) {
	case "TXT", "MAC", "BAS", "FOR", "COM", "LST", "DIR", "DOC", "HLP":
		return true
	}
	return false
}

// RT11NormalizeText renders recovered text content host readable. Files
// occupy whole blocks, so the final block carries NUL padding, and line
// ends are CRLF.
func RT11NormalizeText(data []byte) []byte {
	s := strings.TrimRight(string(data), "\x00")
	s = strings.Replace(s, "\r\n", "\n", -1)
	return []byte(s)
}

// RT11SegmentHeader is the five word region at the top of a directory
// segment block. NextSegment and HighestSegment describe the format's own
// segment chain; they are recorded for the audit trail but deliberately do
// not drive the scan, which probes fixed candidate locations instead.
type RT11SegmentHeader struct {
	Block             int
	SegmentsAvailable int
	NextSegment       int
	HighestSegment    int
	ExtraBytes        int
	StartBlock        int
	Valid             bool
}

func rt11Word(data []byte, offset int) int {
	return int(data[offset]) + 256*int(data[offset+1])
}

// ParseRT11SegmentHeader unpacks and validates the first ten bytes of a
// candidate block. The acceptance bounds are wider than the format's
// nominal limits on purpose: variant and corrupted encodings that a stock
// directory walker rejects are exactly what this tool is for. Tightening
// them trades recovery for precision.
func ParseRT11SegmentHeader(block int, data []byte) RT11SegmentHeader {
	h := RT11SegmentHeader{Block: block}
	if len(data) < RT11_HEADER_SIZE {
		return h
	}
	h.SegmentsAvailable = rt11Word(data, 0)
	h.NextSegment = rt11Word(data, 2)
	h.HighestSegment = rt11Word(data, 4)
	h.ExtraBytes = rt11Word(data, 6)
	h.StartBlock = rt11Word(data, 8)
	h.Valid = h.SegmentsAvailable <= RT11_MAX_SEGMENTS &&
		h.NextSegment <= RT11_MAX_SEGMENTS &&
		h.HighestSegment <= RT11_MAX_SEGMENTS &&
		h.ExtraBytes <= RT11_MAX_EXTRA_BYTES &&
		h.StartBlock < RT11_MAX_START_BLOCK
	return h
}

// RT11EntrySize is the stride of one directory slot: the fourteen byte
// fixed region plus the per-entry extra bytes from the segment header,
// rounded down to a word boundary.
func RT11EntrySize(extraBytes int) int {
	size := (RT11_ENTRY_MIN_SIZE + extraBytes) &^ 1
	if size < RT11_ENTRY_MIN_SIZE {
		size = RT11_ENTRY_MIN_SIZE
	}
	return size
}

// IsRT11Content decides whether a segment body holds raw file content
// rather than a formal entry table, and names the triggering rule. Mostly
// zero regions and stubs under ten bytes are never content, regardless of
// what else they contain.
func IsRT11Content(data []byte) (bool, string) {
	if len(data) < 10 {
		return false, "fewer than 10 bytes"
	}

	zeros := 0
	for _, b := range data {
		if b == 0 {
			zeros++
		}
	}
	if zeros*10 >= len(data)*9 {
		return false, "mostly zero bytes"
	}

	limit := 100
	if len(data) < limit {
		limit = len(data)
	}
	printable := 0
	for _, b := range data[:limit] {
		if b >= 32 && b <= 126 {
			printable++
		}
	}
	if printable > 10 {
		return true, fmt.Sprintf("%d printable bytes in first %d", printable, limit)
	}

	limit = 200
	if len(data) < limit {
		limit = len(data)
	}
	text := ""
	for _, b := range data[:limit] {
		if b >= 32 && b <= 126 {
			text += string(rune(b))
		}
	}
	text = strings.ToUpper(text)
	for _, marker := range RT11_CONTENT_MARKERS {
		if strings.Contains(text, marker) {
			return true, fmt.Sprintf("marker %q", marker)
		}
	}

	return false, "no printable run or marker"
}

// rt11DateToTime unpacks a creation date word: five bits of year offset
// from 1972, five bits of day, four bits of month, and a two bit age
// multiplier worth 32 years each. A zero word means no date was recorded.
// Day or month of zero default to the first.
func rt11DateToTime(word int) (time.Time, bool) {
	if word == 0 {
		return time.Time{}, false
	}
	age := (word >> 14) & 0x03
	month := (word >> 10) & 0x0F
	day := (word >> 5) & 0x1F
	year := RT11_EPOCH_YEAR + (word & 0x1F) + 32*age
	if day == 0 {
		day = 1
	}
	if month == 0 {
		month = 1
	}
	if month < 1 || month > 12 || day < 1 || day > 31 ||
		year < RT11_EPOCH_YEAR || year > 2099 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// timeToRT11Date packs a date back into word form, splitting year offsets
// beyond the five bit field into the age multiplier.
func timeToRT11Date(t time.Time) int {
	offset := t.Year() - RT11_EPOCH_YEAR
	if offset < 0 {
		return 0
	}
	age := offset / 32
	if age > 3 {
		age = 3
	}
	return (age << 14) | (int(t.Month()) << 10) | (t.Day() << 5) | (offset & 0x1F)
}

type RT11EntryKind int

const (
	EntryKindTraditional RT11EntryKind = iota
	EntryKindEmbedded
)

func (k RT11EntryKind) String() string {
	if k == EntryKindEmbedded {
		return "Embedded"
	}
	return "Traditional"
}

// RT11FileDescriptor is one recovered inventory entry. Traditional entries
// decode from formal directory slots and get their start block assigned by
// the position resolver; embedded entries are synthesized when a segment
// block turns out to hold raw content, and carry an absolute position from
// the moment they are built. The kind is fixed at construction and is the
// only way the two are told apart.
type RT11FileDescriptor struct {
	kind         RT11EntryKind
	name         string
	ext          string
	status       RT11Status
	startBlock   int
	lengthBlocks int
	jobChannel   int
	created      time.Time
	hasDate      bool
	segIndex     int
	segOffset    int
	entrySize    int
	trailing     []byte
}

func (fd *RT11FileDescriptor) Kind() RT11EntryKind { return fd.kind }
func (fd *RT11FileDescriptor) Status() RT11Status  { return fd.status }
func (fd *RT11FileDescriptor) StartBlock() int     { return fd.startBlock }
func (fd *RT11FileDescriptor) LengthBlocks() int   { return fd.lengthBlocks }
func (fd *RT11FileDescriptor) JobChannel() int     { return fd.jobChannel }
func (fd *RT11FileDescriptor) SegmentIndex() int   { return fd.segIndex }
func (fd *RT11FileDescriptor) SegmentOffset() int  { return fd.segOffset }
func (fd *RT11FileDescriptor) EntrySize() int      { return fd.entrySize }

// Trailing returns the raw bytes past the fixed fourteen byte region,
// preserved verbatim from the slot.
func (fd *RT11FileDescriptor) Trailing() []byte { return fd.trailing }

func (fd *RT11FileDescriptor) Date() (time.Time, bool) {
	return fd.created, fd.hasDate
}

func (fd *RT11FileDescriptor) Name() string {
	if fd.ext == "" {
		return fd.name
	}
	return fd.name + "." + fd.ext
}

func (fd *RT11FileDescriptor) NameUnadorned() string { return fd.name }

func (fd *RT11FileDescriptor) Type() string { return fd.ext }

func (fd *RT11FileDescriptor) TypeDescription() string {
	return RT11TypeDescription(fd.ext)
}

// Size is the nominal byte length of the entry's data before any clamping
// against the image boundary.
func (fd *RT11FileDescriptor) Size() int {
	if fd.kind == EntryKindEmbedded {
		return fd.entrySize
	}
	return fd.lengthBlocks * RT11_BLOCK_SIZE
}

func (fd *RT11FileDescriptor) IsValid() bool {
	return fd.name != "" && !fd.IsUnused() && !fd.IsEndMarker()
}

func (fd *RT11FileDescriptor) IsPermanent() bool { return fd.status.IsPermanent() }
func (fd *RT11FileDescriptor) IsTentative() bool { return fd.status.IsTentative() }
func (fd *RT11FileDescriptor) IsProtected() bool { return fd.status.IsProtected() }
func (fd *RT11FileDescriptor) IsUnused() bool    { return fd.status.IsEmptyArea() }
func (fd *RT11FileDescriptor) IsEndMarker() bool { return fd.status.IsEndOfSegment() }

// RT11HuntSegments probes every candidate block and keeps each one whose
// first ten bytes validate as a segment header. There is no early exit: an
// image may carry several valid looking directories and all of them are
// walked as independent segments. The header chain fields never steer the
// probe; damaged chains are the normal case here.
func (dsk *DSKWrapper) RT11HuntSegments() ([]RT11SegmentHeader, error) {
	if dsk.size == 0 {
		return nil, ErrImageNotLoaded
	}

	var segs []RT11SegmentHeader

	for _, block := range RT11_SEGMENT_CANDIDATES {
		data, err := dsk.GetBlock(block)
		if err != nil {
			return nil, err
		}
		h := ParseRT11SegmentHeader(block, data)
		if h.Valid {
			dsk.log.Debugf(
				"block %d: segment header accepted (avail=%d next=%d highest=%d extra=%d start=%d)",
				block, h.SegmentsAvailable, h.NextSegment, h.HighestSegment,
				h.ExtraBytes, h.StartBlock,
			)
			segs = append(segs, h)
		} else {
			dsk.log.Debugf("block %d: segment header rejected", block)
		}
	}

	if len(segs) == 0 {
		return nil, ErrNoValidDirectory
	}

	return segs, nil
}

// DecodeRT11Entry unpacks one directory slot. ok is false when the slot
// ends the segment: an end of segment mark, an all zero status word, or a
// name that fails to decode.
func (dsk *DSKWrapper) DecodeRT11Entry(slice []byte, segIndex, segOffset int) (*RT11FileDescriptor, bool) {
	if len(slice) < RT11_ENTRY_MIN_SIZE {
		return nil, false
	}

	status := RT11Status(rt11Word(slice, 0))
	if status == 0 || status.IsEndOfSegment() {
		return nil, false
	}

	w1 := rt11Word(slice, 2)
	w2 := rt11Word(slice, 4)
	w3 := rt11Word(slice, 6)
	if !Rad50WordValid(w1) || !Rad50WordValid(w2) || !Rad50WordValid(w3) {
		dsk.log.Warnf("segment %d: name word out of radix range at offset %d, placeholder substituted", segIndex, segOffset)
	}

	name, ext, ok := Rad50DecodeName(w1, w2, w3)
	if !ok {
		dsk.log.Warnf("segment %d: undecodable name at offset %d, ending segment", segIndex, segOffset)
		return nil, false
	}

	fd := &RT11FileDescriptor{
		kind:      EntryKindTraditional,
		name:      name,
		ext:       ext,
		status:    status,
		segIndex:  segIndex,
		segOffset: segOffset,
		entrySize: len(slice),
	}
	fd.lengthBlocks = rt11Word(slice, 10)
	fd.jobChannel = rt11Word(slice, 12)
	if len(slice) >= RT11_ENTRY_DATE_SIZE {
		if t, has := rt11DateToTime(rt11Word(slice, 14)); has {
			fd.created = t
			fd.hasDate = true
		}
	}
	if len(slice) > RT11_ENTRY_MIN_SIZE {
		fd.trailing = append([]byte(nil), slice[RT11_ENTRY_MIN_SIZE:]...)
	}

	if fd.lengthBlocks > RT11_SUSPECT_LENGTH {
		dsk.log.Warnf("segment %d: suspicious length %d blocks for %s, keeping anyway", segIndex, fd.lengthBlocks, fd.Name())
	}

	return fd, true
}

// rt11WalkSegment consumes one accepted segment block. The classifier
// first decides whether the region after the header is an entry table at
// all; raw content becomes a single synthetic entry covering the rest of
// the block and the segment is done. Otherwise slots are decoded at the
// header's stride until a terminator, a malformed slot, or the end of the
// block.
func (dsk *DSKWrapper) rt11WalkSegment(segIndex int, hdr RT11SegmentHeader) ([]*RT11FileDescriptor, error) {
	data, err := dsk.GetBlock(hdr.Block)
	if err != nil {
		return nil, err
	}

	body := data[RT11_HEADER_SIZE:]

	if content, reason := IsRT11Content(body); content {
		dsk.log.Logf("block %d: embedded content instead of entry table (%s)", hdr.Block, reason)
		fd := &RT11FileDescriptor{
			kind:       EntryKindEmbedded,
			name:       fmt.Sprintf("BLK%03d", hdr.Block),
			ext:        RT11_EMBEDDED_TYPE,
			status:     RT11_E_PERM,
			startBlock: hdr.Block,
			segIndex:   segIndex,
			segOffset:  RT11_HEADER_SIZE,
			entrySize:  len(body),
		}
		return []*RT11FileDescriptor{fd}, nil
	}

	entrySize := RT11EntrySize(hdr.ExtraBytes)

	var files []*RT11FileDescriptor
	for offset := RT11_HEADER_SIZE; offset+entrySize <= len(data); offset += entrySize {
		fd, ok := dsk.DecodeRT11Entry(data[offset:offset+entrySize], segIndex, offset)
		if !ok {
			break
		}
		if fd.IsUnused() {
			dsk.log.Debugf("block %d: skipping empty area entry at offset %d", hdr.Block, offset)
			continue
		}
		files = append(files, fd)
	}

	return files, nil
}

// resolveRT11Positions assigns data start blocks to traditional entries in
// discovery order: file data is laid out contiguously from the base block,
// each entry starting where the previous one ends. Embedded entries carry
// an absolute position from synthesis and are never touched.
func resolveRT11Positions(files []*RT11FileDescriptor, baseBlock int) {
	block := baseBlock
	for _, fd := range files {
		if fd.kind == EntryKindEmbedded {
			continue
		}
		fd.startBlock = block
		block += fd.lengthBlocks
	}
}

// RT11GetCatalog recovers the file inventory: probe candidate blocks, walk
// each accepted segment, resolve positions, filter by pattern. The pattern
// is a filename glob matched case insensitively against the full NAME.EXT
// form, so extension globs select as expected. Entry order is discovery
// order, which follows the candidate list rather than physical block order.
func (dsk *DSKWrapper) RT11GetCatalog(pattern string) ([]*RT11FileDescriptor, error) {

	pattern = strings.Replace(pattern, ".", "[.]", -1)
	pattern = strings.Replace(pattern, "*", ".*", -1)
	pattern = strings.Replace(pattern, "?", ".", -1)

	rx := regexp.MustCompile("(?i)" + pattern)

	segs, err := dsk.RT11HuntSegments()
	if err != nil {
		return nil, err
	}

	dsk.RT11Segments = segs
	dsk.RT11Variant = false
	for _, h := range segs {
		if h.Block != RT11_CATALOG_BLOCK {
			dsk.RT11Variant = true
		}
	}

	var all []*RT11FileDescriptor
	for i, h := range segs {
		files, err := dsk.rt11WalkSegment(i, h)
		if err != nil {
			return nil, err
		}
		all = append(all, files...)
	}

	resolveRT11Positions(all, RT11_DATA_START_BLOCK)

	dsk.log.Logf("directory scan: %d segments accepted, %d entries recovered", len(segs), len(all))

	var files = make([]*RT11FileDescriptor, 0)
	for _, fd := range all {
		if rx.MatchString(fd.Name()) {
			files = append(files, fd)
		}
	}

	return files, nil
}

// RT11FileRange maps a resolved entry to its absolute byte range in the
// image. A range running past the end of the image clamps to what is
// actually there; short images are expected and truncation is reported as
// a warning, not a failure.
func (dsk *DSKWrapper) RT11FileRange(fd *RT11FileDescriptor) (int, int) {
	var start, length int

	if fd.kind == EntryKindEmbedded {
		start = fd.startBlock*RT11_BLOCK_SIZE + fd.segOffset
		length = fd.entrySize
	} else {
		start = fd.startBlock * RT11_BLOCK_SIZE
		length = fd.lengthBlocks * RT11_BLOCK_SIZE
	}

	if start >= dsk.size {
		dsk.log.Warnf("%s: data range starts at %d beyond image end %d, nothing to extract", fd.Name(), start, dsk.size)
		return dsk.size, 0
	}
	if start+length > dsk.size {
		dsk.log.Warnf("%s: data range %d+%d exceeds image end %d, clamping", fd.Name(), start, length, dsk.size)
		length = dsk.size - start
	}

	return start, length
}

// RT11ReadFile returns the bytes behind a recovered entry, clamped to the
// image boundary.
func (dsk *DSKWrapper) RT11ReadFile(fd *RT11FileDescriptor) ([]byte, error) {
	if dsk.size == 0 {
		return nil, ErrImageNotLoaded
	}
	start, length := dsk.RT11FileRange(fd)
	if length <= 0 {
		return []byte(nil), nil
	}
	return dsk.ReadRange(start, length)
}

// RT11UsedBitmap marks each block claimed by an accepted segment or a
// recovered entry's data range.
func (dsk *DSKWrapper) RT11UsedBitmap() ([]bool, error) {
	blocks := dsk.Blocks()
	used := make([]bool, blocks)

	files, err := dsk.RT11GetCatalog("*")
	if err != nil {
		return used, err
	}

	for _, h := range dsk.RT11Segments {
		if h.Block < blocks {
			used[h.Block] = true
		}
	}

	for _, fd := range files {
		start, length := dsk.RT11FileRange(fd)
		if length <= 0 {
			continue
		}
		first := start / RT11_BLOCK_SIZE
		last := (start + length - 1) / RT11_BLOCK_SIZE
		for b := first; b <= last && b < blocks; b++ {
			used[b] = true
		}
	}

	return used, nil
}
