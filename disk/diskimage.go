package disk

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/exp/mmap"
)

const RT11_BLOCK_SIZE = 512

// Images at or under this size are pulled into memory; anything larger
// stays behind the mapping and is read on demand.
const MAX_RESIDENT_IMAGE = 32 * 1024 * 1024

var (
	ErrImageNotLoaded   = errors.New("no image data loaded")
	ErrBlockOutOfRange  = errors.New("block out of range")
	ErrNoValidDirectory = errors.New("no valid directory segment found")
)

// Diagnostics receives the recovery audit trail: every accepted and
// rejected header, substituted placeholder and clamped range. The disk
// package never decides where that output goes.
type Diagnostics interface {
	Debugf(format string, v ...interface{})
	Logf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

type nullLog struct{}

func (nullLog) Debugf(format string, v ...interface{}) {}
func (nullLog) Logf(format string, v ...interface{})   {}
func (nullLog) Warnf(format string, v ...interface{})  {}
func (nullLog) Errorf(format string, v ...interface{}) {}

func Checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type DiskFormatID int

const (
	DF_NONE DiskFormatID = iota
	DF_RT11
)

type DiskFormat struct {
	ID DiskFormatID
}

func GetDiskFormat(id DiskFormatID) DiskFormat {
	return DiskFormat{ID: id}
}

func (f DiskFormat) String() string {
	switch f.ID {
	case DF_RT11:
		return "RT-11"
	}
	return "Unidentified"
}

func (f DiskFormat) Ext() string {
	switch f.ID {
	case DF_RT11:
		return "dsk"
	}
	return "bin"
}

// DSKWrapper is the block level view of one disk image. Small images are
// held whole in Data; large ones are left memory mapped and every read
// goes through the mapping. Strict selects the failure policy for reads
// past the image boundary: abort instead of the default zero fill.
type DSKWrapper struct {
	Filename string
	Data     []byte
	Format   DiskFormat
	Strict   bool

	// Audit state from the most recent directory scan.
	RT11Segments []RT11SegmentHeader
	RT11Variant  bool

	mm   *mmap.ReaderAt
	size int
	log  Diagnostics
}

// NewDSKWrapper maps an image file and identifies it. The log sink may be
// nil, which silences the audit trail.
func NewDSKWrapper(log Diagnostics, filename string) (*DSKWrapper, error) {

	r, err := mmap.Open(filename)
	if err != nil {
		return nil, err
	}

	if r.Len() == 0 {
		r.Close()
		return nil, fmt.Errorf("%s: empty image file", filename)
	}

	if r.Len() <= MAX_RESIDENT_IMAGE {
		data := make([]byte, r.Len())
		if _, err := r.ReadAt(data, 0); err != nil {
			r.Close()
			return nil, err
		}
		r.Close()
		return NewDSKWrapperBin(log, data, filename)
	}

	this := &DSKWrapper{
		Filename: filename,
		mm:       r,
		size:     r.Len(),
		log:      log,
	}
	if this.log == nil {
		this.log = nullLog{}
	}
	this.postLoad()

	return this, nil
}

// NewDSKWrapperBin wraps an image already in memory.
func NewDSKWrapperBin(log Diagnostics, data []byte, filename string) (*DSKWrapper, error) {

	this := &DSKWrapper{
		Filename: filename,
		Data:     data,
		size:     len(data),
		log:      log,
	}
	if this.log == nil {
		this.log = nullLog{}
	}
	if this.size == 0 {
		return this, ErrImageNotLoaded
	}
	this.postLoad()

	return this, nil
}

func (dsk *DSKWrapper) postLoad() {
	if dsk.size%RT11_BLOCK_SIZE != 0 {
		dsk.log.Warnf(
			"%s: image length %d is not a multiple of %d, final %d bytes are not addressable as a block",
			dsk.Filename, dsk.size, RT11_BLOCK_SIZE, dsk.size%RT11_BLOCK_SIZE,
		)
	}
	dsk.Identify()
}

// Identify probes for a recoverable directory and stamps the format. The
// probe always runs leniently; Strict only governs the catalog and read
// calls the caller makes afterwards.
func (dsk *DSKWrapper) Identify() {

	dsk.Format = GetDiskFormat(DF_NONE)

	strict := dsk.Strict
	dsk.Strict = false
	segs, err := dsk.RT11HuntSegments()
	dsk.Strict = strict

	if err != nil {
		dsk.log.Debugf("%s: not identifiable: %v", dsk.Filename, err)
		return
	}

	dsk.RT11Segments = segs
	dsk.Format = GetDiskFormat(DF_RT11)
	dsk.log.Debugf("%s: identified as %s (%d candidate segments)", dsk.Filename, dsk.Format, len(segs))
}

// Len is the image size in bytes.
func (dsk *DSKWrapper) Len() int {
	return dsk.size
}

// Blocks is the count of whole blocks in the image.
func (dsk *DSKWrapper) Blocks() int {
	return dsk.size / RT11_BLOCK_SIZE
}

// Mapped reports whether reads go through a file mapping rather than a
// resident copy.
func (dsk *DSKWrapper) Mapped() bool {
	return dsk.mm != nil
}

// Close releases the mapping behind a large image. Resident images have
// nothing to release. The wrapper reports ErrImageNotLoaded after Close.
func (dsk *DSKWrapper) Close() error {
	if dsk.mm != nil {
		err := dsk.mm.Close()
		dsk.mm = nil
		dsk.size = len(dsk.Data)
		return err
	}
	return nil
}

// SetData replaces the image content with an in memory buffer.
func (dsk *DSKWrapper) SetData(data []byte) {
	if dsk.mm != nil {
		dsk.mm.Close()
		dsk.mm = nil
	}
	dsk.Data = data
	dsk.size = len(data)
}

// ReadRange copies length bytes starting at offset, from whichever backing
// store holds the image. Callers clamp the range to the image first.
func (dsk *DSKWrapper) ReadRange(offset, length int) ([]byte, error) {
	if dsk.size == 0 {
		return nil, ErrImageNotLoaded
	}
	if offset < 0 || length < 0 || offset+length > dsk.size {
		return nil, fmt.Errorf("range %d+%d: %w", offset, length, ErrBlockOutOfRange)
	}

	out := make([]byte, length)
	if dsk.mm != nil {
		if _, err := dsk.mm.ReadAt(out, int64(offset)); err != nil && err != io.EOF {
			return nil, err
		}
		return out, nil
	}
	copy(out, dsk.Data[offset:offset+length])
	return out, nil
}

// GetBlock returns a copy of one 512 byte block. A read past the end of
// the image is ErrBlockOutOfRange under strict policy; under the default
// lenient policy it degrades to a zero filled block and a warning, since a
// truncated image should still give up whatever it holds.
func (dsk *DSKWrapper) GetBlock(block int) ([]byte, error) {
	if dsk.size == 0 {
		return nil, ErrImageNotLoaded
	}

	if block < 0 || (block+1)*RT11_BLOCK_SIZE > dsk.size {
		if dsk.Strict {
			dsk.log.Errorf("block %d out of range (image holds %d blocks)", block, dsk.Blocks())
			return nil, fmt.Errorf("block %d: %w", block, ErrBlockOutOfRange)
		}
		dsk.log.Warnf("block %d out of range (image holds %d blocks), substituting zero block", block, dsk.Blocks())
		return make([]byte, RT11_BLOCK_SIZE), nil
	}

	return dsk.ReadRange(block*RT11_BLOCK_SIZE, RT11_BLOCK_SIZE)
}

// ChecksumBlock hashes a single block.
func (dsk *DSKWrapper) ChecksumBlock(block int) (string, error) {
	data, err := dsk.GetBlock(block)
	if err != nil {
		return "", err
	}
	return Checksum(data), nil
}

// ChecksumDisk hashes the whole image. Mapped images are streamed through
// the hash rather than copied.
func (dsk *DSKWrapper) ChecksumDisk() (string, error) {
	if dsk.size == 0 {
		return "", ErrImageNotLoaded
	}

	if dsk.mm == nil {
		return Checksum(dsk.Data), nil
	}

	h := sha256.New()
	buf := make([]byte, 1024*1024)
	for offset := 0; offset < dsk.size; offset += len(buf) {
		n := len(buf)
		if dsk.size-offset < n {
			n = dsk.size - offset
		}
		if _, err := dsk.mm.ReadAt(buf[:n], int64(offset)); err != nil && err != io.EOF {
			return "", err
		}
		h.Write(buf[:n])
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GetCatalog lists the recovered inventory through the format independent
// surface, dispatching on the identified format. Unidentified volumes have
// no directory to offer.
func (dsk *DSKWrapper) GetCatalog(pattern string) ([]CatalogEntry, error) {
	switch dsk.Format.ID {
	case DF_RT11:
		files, err := dsk.RT11GetCatalog(pattern)
		if err != nil {
			return nil, err
		}
		cat := make([]CatalogEntry, len(files))
		for i, fd := range files {
			cat[i] = fd
		}
		return cat, nil
	}
	return nil, ErrNoValidDirectory
}

// ReadFile returns the bytes behind a catalog entry this wrapper issued.
func (dsk *DSKWrapper) ReadFile(fd CatalogEntry) ([]byte, error) {
	if rfd, ok := fd.(*RT11FileDescriptor); ok {
		return dsk.RT11ReadFile(rfd)
	}
	return nil, fmt.Errorf("%s: not an entry of this volume", fd.Name())
}

// GetUsedBitmap reports block level usage. Without a recovered directory
// every block might hold data, so the unidentified fallback marks all of
// them.
func (dsk *DSKWrapper) GetUsedBitmap() ([]bool, error) {
	switch dsk.Format.ID {
	case DF_RT11:
		return dsk.RT11UsedBitmap()
	}
	used := make([]bool, dsk.Blocks())
	for i := range used {
		used[i] = true
	}
	return used, nil
}

// Dump hexdumps a buffer to the diagnostic sink, sixteen bytes per line
// with an ASCII gutter.
func (dsk *DSKWrapper) Dump(bytes []byte) {

	display := "\r\n"

	for i := 0; i < len(bytes); i += 16 {
		display += fmt.Sprintf("%06x:", i)

		ascii := ""
		for j := i; j < i+16 && j < len(bytes); j++ {
			display += fmt.Sprintf(" %02x", bytes[j])
			if bytes[j] >= 32 && bytes[j] <= 126 {
				ascii += string(rune(bytes[j]))
			} else {
				ascii += "."
			}
		}

		pad := 16 - (len(bytes) - i)
		if pad > 0 {
			display += strings.Repeat("   ", pad)
		}

		display += "  " + ascii + "\r\n"
	}

	dsk.log.Logf("%s", display)
}
