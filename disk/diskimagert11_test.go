package disk

import (
	"errors"
	"testing"
	"time"
)

func le16(data []byte, offset, value int) {
	data[offset] = byte(value & 0xFF)
	data[offset+1] = byte((value >> 8) & 0xFF)
}

func testImage(blocks int) []byte {
	return make([]byte, blocks*RT11_BLOCK_SIZE)
}

func putHeader(image []byte, block, avail, next, highest, extra, start int) {
	base := block * RT11_BLOCK_SIZE
	le16(image, base+0, avail)
	le16(image, base+2, next)
	le16(image, base+4, highest)
	le16(image, base+6, extra)
	le16(image, base+8, start)
}

func putEntry(image []byte, block, offset int, status RT11Status, name, ext string, length int) {
	base := block*RT11_BLOCK_SIZE + offset
	w1, w2, w3 := Rad50EncodeName(name, ext)
	le16(image, base+0, int(status))
	le16(image, base+2, w1)
	le16(image, base+4, w2)
	le16(image, base+6, w3)
	le16(image, base+10, length)
}

// spoilBlock plants an out of bounds segment count so the header never
// validates.
func spoilBlock(image []byte, block int) {
	le16(image, block*RT11_BLOCK_SIZE, 60000)
}

func TestSegmentHeaderValidation(t *testing.T) {
	tests := []struct {
		name                               string
		avail, next, highest, extra, start int
		valid                              bool
	}{
		{"canonical", 4, 0, 1, 0, 14, true},
		{"all zero", 0, 0, 0, 0, 0, true},
		{"avail at limit", 50, 0, 0, 0, 0, true},
		{"avail past limit", 51, 0, 0, 0, 0, false},
		{"next past limit", 0, 51, 0, 0, 0, false},
		{"highest past limit", 0, 0, 51, 0, 0, false},
		{"extra at limit", 0, 0, 0, 20, 0, true},
		{"extra past limit", 0, 0, 0, 21, 0, false},
		{"start block max", 0, 0, 0, 0, 65535, true},
	}

	for _, tt := range tests {
		data := make([]byte, RT11_BLOCK_SIZE)
		le16(data, 0, tt.avail)
		le16(data, 2, tt.next)
		le16(data, 4, tt.highest)
		le16(data, 6, tt.extra)
		le16(data, 8, tt.start)
		h := ParseRT11SegmentHeader(6, data)
		if h.Valid != tt.valid {
			t.Errorf("%s: Valid = %v, want %v", tt.name, h.Valid, tt.valid)
		}
	}

	// Words unpack little endian.
	data := make([]byte, RT11_BLOCK_SIZE)
	le16(data, 0, 4)
	le16(data, 2, 2)
	le16(data, 4, 3)
	le16(data, 6, 20)
	le16(data, 8, 300)
	h := ParseRT11SegmentHeader(1, data)
	if h.Block != 1 || h.SegmentsAvailable != 4 || h.NextSegment != 2 ||
		h.HighestSegment != 3 || h.ExtraBytes != 20 || h.StartBlock != 300 {
		t.Errorf("header fields = %+v", h)
	}

	// A short buffer never validates.
	if h := ParseRT11SegmentHeader(6, make([]byte, 9)); h.Valid {
		t.Error("nine byte buffer validated")
	}
}

func TestEntrySizeStride(t *testing.T) {
	tests := []struct{ extra, want int }{
		{0, 14}, {1, 14}, {2, 16}, {5, 18}, {7, 20}, {20, 34},
	}
	for _, tt := range tests {
		got := RT11EntrySize(tt.extra)
		if got != tt.want {
			t.Errorf("RT11EntrySize(%d) = %d, want %d", tt.extra, got, tt.want)
		}
	}

	for extra := 0; extra <= RT11_MAX_EXTRA_BYTES; extra++ {
		got := RT11EntrySize(extra)
		if got < RT11_ENTRY_MIN_SIZE || got%2 != 0 {
			t.Errorf("RT11EntrySize(%d) = %d, not an even size >= %d", extra, got, RT11_ENTRY_MIN_SIZE)
		}
	}
}

func TestDateWord(t *testing.T) {
	// Zero means no date recorded.
	if _, ok := rt11DateToTime(0); ok {
		t.Error("zero date word decoded as a date")
	}

	// Year offsets past the five bit field spill into the age multiplier.
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	word := timeToRT11Date(want)
	if word != 19956 {
		t.Errorf("timeToRT11Date(2024-03-15) = %d, want 19956", word)
	}
	got, ok := rt11DateToTime(word)
	if !ok || !got.Equal(want) {
		t.Errorf("rt11DateToTime(%d) = %v,%v, want %v", word, got, ok, want)
	}

	// Day and month of zero default to the first.
	got, ok = rt11DateToTime((5 << 10) | 10)
	if !ok || got.Year() != 1982 || got.Month() != time.May || got.Day() != 1 {
		t.Errorf("zero day decode = %v,%v", got, ok)
	}

	// Month 13 is rejected.
	if _, ok := rt11DateToTime((13 << 10) | (1 << 5)); ok {
		t.Error("month 13 decoded as a date")
	}

	// Day 31 is accepted for any month.
	if _, ok := rt11DateToTime((2 << 10) | (31 << 5) | 4); !ok {
		t.Error("day 31 rejected")
	}
}

func TestContentClassifier(t *testing.T) {
	// Under ten bytes is never content.
	if yes, _ := IsRT11Content([]byte("RT-11 SY")); yes {
		t.Error("eight byte stub classified as content")
	}

	// Mostly zero wins over an embedded marker.
	zeroish := make([]byte, 205)
	copy(zeroish[100:], "RT-11")
	if yes, reason := IsRT11Content(zeroish); yes {
		t.Errorf("mostly zero block classified as content (%s)", reason)
	}

	// A printable run in the first hundred bytes is content.
	text := append([]byte("THE QUICK BROWN FOX JUMPS OVER THE LAZY DOG"), make([]byte, 60)...)
	if yes, _ := IsRT11Content(text); !yes {
		t.Error("printable run not classified as content")
	}

	// A marker past the printable window still counts.
	marked := make([]byte, 250)
	for i := range marked {
		marked[i] = 0x80
	}
	copy(marked[150:], "RUN FOO")
	if yes, _ := IsRT11Content(marked); !yes {
		t.Error("marker past byte 100 not classified as content")
	}

	// Exactly ten printable bytes is below the threshold.
	ten := make([]byte, 150)
	for i := range ten {
		ten[i] = 0x80
	}
	copy(ten, "QQQQQQQQQQ")
	if yes, _ := IsRT11Content(ten); yes {
		t.Error("ten printable bytes classified as content")
	}
	copy(ten, "QQQQQQQQQQQ")
	if yes, _ := IsRT11Content(ten); !yes {
		t.Error("eleven printable bytes not classified as content")
	}
}

func TestSegmentWalkTerminators(t *testing.T) {
	// An end of segment mark stops the scan before later slots.
	image := testImage(20)
	putHeader(image, 6, 4, 0, 1, 0, 14)
	putEntry(image, 6, 10, RT11_E_PERM, "FOO", "BAS", 2)
	le16(image, 6*RT11_BLOCK_SIZE+24, int(RT11_E_EOS))
	putEntry(image, 6, 38, RT11_E_PERM, "BAR", "TXT", 1)

	dsk, err := NewDSKWrapperBin(nil, image, "eos.dsk")
	if err != nil {
		t.Fatal(err)
	}
	files, err := dsk.RT11GetCatalog("*")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name() != "FOO.BAS" {
		t.Fatalf("got %d entries, want only FOO.BAS", len(files))
	}

	// A zero status word stops the scan too.
	image = testImage(20)
	putHeader(image, 6, 4, 0, 1, 0, 14)
	putEntry(image, 6, 10, RT11_E_PERM, "ONE", "DAT", 1)
	putEntry(image, 6, 38, RT11_E_PERM, "TWO", "DAT", 1)

	dsk, _ = NewDSKWrapperBin(nil, image, "zero.dsk")
	files, _ = dsk.RT11GetCatalog("*")
	if len(files) != 1 || files[0].Name() != "ONE.DAT" {
		t.Fatalf("got %d entries, want only ONE.DAT", len(files))
	}
}

func TestSegmentWalkSkipsEmptyAreas(t *testing.T) {
	image := testImage(20)
	putHeader(image, 6, 4, 0, 1, 0, 14)
	putEntry(image, 6, 10, RT11_E_PERM, "FOO", "BAS", 2)
	putEntry(image, 6, 24, RT11_E_MPTY, "XX", "", 5)
	putEntry(image, 6, 38, RT11_E_PERM, "BAR", "TXT", 1)
	le16(image, 6*RT11_BLOCK_SIZE+52, int(RT11_E_EOS))

	dsk, _ := NewDSKWrapperBin(nil, image, "empty.dsk")
	files, err := dsk.RT11GetCatalog("*")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].Name() != "FOO.BAS" || files[1].Name() != "BAR.TXT" {
		t.Fatalf("got %d entries, want FOO.BAS and BAR.TXT", len(files))
	}

	// The skipped area does not hold a position; BAR starts right after FOO.
	if files[0].StartBlock() != RT11_DATA_START_BLOCK || files[1].StartBlock() != RT11_DATA_START_BLOCK+2 {
		t.Errorf("start blocks = %d,%d, want %d,%d",
			files[0].StartBlock(), files[1].StartBlock(),
			RT11_DATA_START_BLOCK, RT11_DATA_START_BLOCK+2)
	}
}

func TestEntryDecodeTrailingAndDate(t *testing.T) {
	image := testImage(20)
	putHeader(image, 6, 4, 0, 1, 4, 14)
	putEntry(image, 6, 10, RT11_E_PERM|RT11_E_PROT, "SWAP", "SYS", 3)
	base := 6*RT11_BLOCK_SIZE + 10
	le16(image, base+12, 0x0102)
	le16(image, base+14, 19956)
	image[base+16] = 0xAA
	image[base+17] = 0xBB

	dsk, _ := NewDSKWrapperBin(nil, image, "extra.dsk")
	files, err := dsk.RT11GetCatalog("*")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("got %d entries, want 1", len(files))
	}

	fd := files[0]
	if fd.Name() != "SWAP.SYS" || fd.NameUnadorned() != "SWAP" || fd.Type() != "SYS" {
		t.Errorf("name = %q / %q / %q", fd.Name(), fd.NameUnadorned(), fd.Type())
	}
	if !fd.IsPermanent() || !fd.IsProtected() || fd.IsTentative() {
		t.Errorf("status = %v", fd.Status())
	}
	if fd.LengthBlocks() != 3 || fd.Size() != 3*RT11_BLOCK_SIZE {
		t.Errorf("length = %d blocks, %d bytes", fd.LengthBlocks(), fd.Size())
	}
	if fd.JobChannel() != 0x0102 {
		t.Errorf("job/channel = %#x", fd.JobChannel())
	}
	if fd.EntrySize() != 18 {
		t.Errorf("entry size = %d, want 18", fd.EntrySize())
	}

	d, ok := fd.Date()
	if !ok || !d.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v,%v", d, ok)
	}

	// The full region past the fixed fields survives, date word included.
	want := []byte{0xF4, 0x4D, 0xAA, 0xBB}
	got := fd.Trailing()
	if len(got) != len(want) {
		t.Fatalf("trailing = % x, want % x", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trailing = % x, want % x", got, want)
		}
	}

	// Block 1 holds an all zero header here, so block 6 is the second
	// accepted segment.
	if fd.SegmentIndex() != 1 || fd.SegmentOffset() != 10 {
		t.Errorf("segment position = %d/%d, want 1/10", fd.SegmentIndex(), fd.SegmentOffset())
	}

	if fd.TypeDescription() != "System File" {
		t.Errorf("type description = %q", fd.TypeDescription())
	}
}

func TestPositionResolver(t *testing.T) {
	files := []*RT11FileDescriptor{
		{kind: EntryKindTraditional, lengthBlocks: 2},
		{kind: EntryKindTraditional, lengthBlocks: 3},
		{kind: EntryKindEmbedded, startBlock: 3, segOffset: 10, entrySize: 502},
		{kind: EntryKindTraditional, lengthBlocks: 1},
	}
	resolveRT11Positions(files, 10)

	want := []int{10, 12, 3, 15}
	for i, fd := range files {
		if fd.startBlock != want[i] {
			t.Errorf("file %d start = %d, want %d", i, fd.startBlock, want[i])
		}
	}
}

func TestFileRangeClamping(t *testing.T) {
	image := testImage(20)
	dsk, _ := NewDSKWrapperBin(nil, image, "clamp.dsk")

	// Five blocks claimed from block 18 of a twenty block image: only two
	// blocks are really there.
	fd := &RT11FileDescriptor{kind: EntryKindTraditional, name: "BIG", ext: "DAT", startBlock: 18, lengthBlocks: 5}
	start, length := dsk.RT11FileRange(fd)
	if start != 18*RT11_BLOCK_SIZE || length != 2*RT11_BLOCK_SIZE {
		t.Errorf("range = %d+%d, want %d+%d", start, length, 18*RT11_BLOCK_SIZE, 2*RT11_BLOCK_SIZE)
	}
	data, err := dsk.RT11ReadFile(fd)
	if err != nil || len(data) != 2*RT11_BLOCK_SIZE {
		t.Errorf("read = %d bytes, err %v", len(data), err)
	}

	// A start past the image end extracts nothing, without failing.
	far := &RT11FileDescriptor{kind: EntryKindTraditional, name: "GONE", ext: "DAT", startBlock: 30, lengthBlocks: 1}
	data, err = dsk.RT11ReadFile(far)
	if err != nil || len(data) != 0 {
		t.Errorf("read past end = %d bytes, err %v", len(data), err)
	}

	// Embedded entries address their synthesis offset exactly.
	emb := &RT11FileDescriptor{kind: EntryKindEmbedded, name: "BLK001", ext: "DAT", startBlock: 1, segOffset: 10, entrySize: 502}
	start, length = dsk.RT11FileRange(emb)
	if start != RT11_BLOCK_SIZE+10 || length != 502 {
		t.Errorf("embedded range = %d+%d, want %d+502", start, length, RT11_BLOCK_SIZE+10)
	}
}

func TestCatalogEndToEnd(t *testing.T) {
	image := testImage(20)
	putHeader(image, 1, 1, 0, 1, 0, 6)
	putEntry(image, 1, 10, RT11_E_PERM, "FOO", "BAS", 2)
	le16(image, 1*RT11_BLOCK_SIZE+24, int(RT11_E_EOS))
	for i := 14 * RT11_BLOCK_SIZE; i < 16*RT11_BLOCK_SIZE; i++ {
		image[i] = byte(i & 0xFF)
	}

	dsk, err := NewDSKWrapperBin(nil, image, "e2e.dsk")
	if err != nil {
		t.Fatal(err)
	}
	if dsk.Format.ID != DF_RT11 {
		t.Fatalf("format = %v, want RT-11", dsk.Format)
	}

	files, err := dsk.RT11GetCatalog("*")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("recovered %d entries, want 1", len(files))
	}

	fd := files[0]
	if fd.Name() != "FOO.BAS" || fd.Kind() != EntryKindTraditional {
		t.Fatalf("entry = %s (%v)", fd.Name(), fd.Kind())
	}
	// Resolution runs from the fixed base, not the header's start word.
	if fd.StartBlock() != 14 || fd.LengthBlocks() != 2 || fd.Size() != 1024 {
		t.Errorf("position = block %d, %d blocks, %d bytes", fd.StartBlock(), fd.LengthBlocks(), fd.Size())
	}
	if fd.SegmentIndex() != 0 {
		t.Errorf("segment index = %d, want 0", fd.SegmentIndex())
	}
	if _, ok := fd.Date(); ok {
		t.Error("fourteen byte entry produced a date")
	}

	data, err := dsk.RT11ReadFile(fd)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 1024 {
		t.Fatalf("read %d bytes, want 1024", len(data))
	}
	for i := 0; i < 16; i++ {
		if data[i] != byte((14*RT11_BLOCK_SIZE+i)&0xFF) {
			t.Fatalf("data[%d] = %#x", i, data[i])
		}
	}

	// Every candidate block validates on this image (the zero filled ones
	// included), but only block 1 yields entries.
	if len(dsk.RT11Segments) != len(RT11_SEGMENT_CANDIDATES) {
		t.Errorf("accepted %d segments, want %d", len(dsk.RT11Segments), len(RT11_SEGMENT_CANDIDATES))
	}
	if !dsk.RT11Variant {
		t.Error("directory away from block 6 did not set the variant flag")
	}
}

func TestCatalogPattern(t *testing.T) {
	image := testImage(20)
	putHeader(image, 6, 4, 0, 1, 0, 14)
	putEntry(image, 6, 10, RT11_E_PERM, "FOO", "BAS", 2)
	putEntry(image, 6, 24, RT11_E_PERM, "BAR", "TXT", 1)
	le16(image, 6*RT11_BLOCK_SIZE+38, int(RT11_E_EOS))

	dsk, _ := NewDSKWrapperBin(nil, image, "pattern.dsk")

	files, err := dsk.RT11GetCatalog("*")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("catalog * = %d entries, want 2", len(files))
	}

	files, _ = dsk.RT11GetCatalog("FOO*")
	if len(files) != 1 || files[0].Name() != "FOO.BAS" {
		t.Fatalf("catalog FOO* = %d entries", len(files))
	}

	// Resolution covers the whole inventory before the filter applies:
	// BAR sits after FOO even when FOO is filtered out.
	files, _ = dsk.RT11GetCatalog("B?R")
	if len(files) != 1 || files[0].Name() != "BAR.TXT" {
		t.Fatalf("catalog B?R = %d entries", len(files))
	}
	if files[0].StartBlock() != RT11_DATA_START_BLOCK+2 {
		t.Errorf("BAR start = %d, want %d", files[0].StartBlock(), RT11_DATA_START_BLOCK+2)
	}

	// The glob sees the full name, so extension selection works.
	files, _ = dsk.RT11GetCatalog("*.TXT")
	if len(files) != 1 || files[0].Name() != "BAR.TXT" {
		t.Fatalf("catalog *.TXT = %d entries", len(files))
	}

	files, _ = dsk.RT11GetCatalog("ZZZ")
	if files == nil || len(files) != 0 {
		t.Errorf("catalog ZZZ = %v, want empty slice", files)
	}
}

func TestEmbeddedSynthesis(t *testing.T) {
	image := testImage(20)
	putHeader(image, 6, 4, 0, 1, 0, 14)
	copy(image[6*RT11_BLOCK_SIZE+10:], []byte("THIS DISK CONTAINS THE RT-11 MONITOR AND UTILITIES. COPY FILES WITH PIP."))

	dsk, _ := NewDSKWrapperBin(nil, image, "embedded.dsk")
	files, err := dsk.RT11GetCatalog("BLK*")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("got %d entries, want 1", len(files))
	}

	fd := files[0]
	if fd.Kind() != EntryKindEmbedded || fd.Name() != "BLK006.DAT" {
		t.Fatalf("entry = %s (%v)", fd.Name(), fd.Kind())
	}
	if !fd.IsPermanent() {
		t.Error("synthetic entry not permanent")
	}
	if fd.StartBlock() != 6 || fd.SegmentOffset() != RT11_HEADER_SIZE || fd.EntrySize() != RT11_BLOCK_SIZE-RT11_HEADER_SIZE {
		t.Errorf("position = block %d offset %d size %d", fd.StartBlock(), fd.SegmentOffset(), fd.EntrySize())
	}
	if fd.LengthBlocks() != 0 || fd.Size() != RT11_BLOCK_SIZE-RT11_HEADER_SIZE {
		t.Errorf("size = %d blocks / %d bytes", fd.LengthBlocks(), fd.Size())
	}

	data, err := dsk.RT11ReadFile(fd)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != RT11_BLOCK_SIZE-RT11_HEADER_SIZE {
		t.Fatalf("read %d bytes", len(data))
	}
	if string(data[:9]) != "THIS DISK" {
		t.Errorf("content starts %q", string(data[:9]))
	}
}

func TestBlockReadPolicies(t *testing.T) {
	image := testImage(2)
	dsk, err := NewDSKWrapperBin(nil, image, "small.dsk")
	if err != nil {
		t.Fatal(err)
	}

	// Lenient reads substitute a zero block.
	data, err := dsk.GetBlock(5)
	if err != nil || len(data) != RT11_BLOCK_SIZE {
		t.Fatalf("lenient read = %d bytes, err %v", len(data), err)
	}
	for _, b := range data {
		if b != 0 {
			t.Fatal("substituted block not zero filled")
		}
	}

	// Strict reads abort.
	dsk.Strict = true
	if _, err := dsk.GetBlock(5); !errors.Is(err, ErrBlockOutOfRange) {
		t.Errorf("strict read err = %v, want ErrBlockOutOfRange", err)
	}

	// Strict catalogs abort when a candidate block is unreadable.
	if _, err := dsk.RT11GetCatalog("*"); !errors.Is(err, ErrBlockOutOfRange) {
		t.Errorf("strict catalog err = %v, want ErrBlockOutOfRange", err)
	}

	// The lenient catalog of the same image succeeds on zero fill.
	dsk.Strict = false
	if _, err := dsk.RT11GetCatalog("*"); err != nil {
		t.Errorf("lenient catalog err = %v", err)
	}
}

func TestNoValidDirectory(t *testing.T) {
	image := testImage(20)
	for _, b := range RT11_SEGMENT_CANDIDATES {
		spoilBlock(image, b)
	}

	dsk, err := NewDSKWrapperBin(nil, image, "noise.dsk")
	if err != nil {
		t.Fatal(err)
	}
	if dsk.Format.ID != DF_NONE {
		t.Errorf("format = %v, want unidentified", dsk.Format)
	}
	if _, err := dsk.RT11GetCatalog("*"); !errors.Is(err, ErrNoValidDirectory) {
		t.Errorf("catalog err = %v, want ErrNoValidDirectory", err)
	}
}

func TestHuntOrderFollowsCandidateList(t *testing.T) {
	image := testImage(20)
	for _, b := range RT11_SEGMENT_CANDIDATES {
		spoilBlock(image, b)
	}
	putHeader(image, 6, 4, 0, 1, 0, 14)
	putHeader(image, 1, 4, 0, 1, 0, 14)

	dsk, _ := NewDSKWrapperBin(nil, image, "order.dsk")
	segs, err := dsk.RT11HuntSegments()
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 2 || segs[0].Block != 1 || segs[1].Block != 6 {
		t.Fatalf("segments = %+v, want blocks 1 then 6", segs)
	}
}

func TestUsedBitmap(t *testing.T) {
	image := testImage(20)
	putHeader(image, 1, 4, 0, 1, 0, 14)
	putEntry(image, 1, 10, RT11_E_PERM, "FOO", "BAS", 2)
	le16(image, 1*RT11_BLOCK_SIZE+24, int(RT11_E_EOS))

	dsk, _ := NewDSKWrapperBin(nil, image, "bitmap.dsk")
	used, err := dsk.RT11UsedBitmap()
	if err != nil {
		t.Fatal(err)
	}
	if len(used) != 20 {
		t.Fatalf("bitmap covers %d blocks, want 20", len(used))
	}

	if used[0] {
		t.Error("block 0 marked used")
	}
	if !used[1] || !used[6] {
		t.Error("segment blocks not marked used")
	}
	if !used[14] || !used[15] {
		t.Error("file data blocks not marked used")
	}
	if used[13] || used[16] {
		t.Error("blocks outside the file marked used")
	}
}

func TestEmptyImage(t *testing.T) {
	if _, err := NewDSKWrapperBin(nil, nil, "empty.dsk"); !errors.Is(err, ErrImageNotLoaded) {
		t.Errorf("empty image err = %v, want ErrImageNotLoaded", err)
	}
}
