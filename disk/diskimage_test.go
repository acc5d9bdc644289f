package disk

import (
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"
)

func TestWrapperGeometry(t *testing.T) {
	image := make([]byte, 5*RT11_BLOCK_SIZE)
	dsk, err := NewDSKWrapperBin(nil, image, "geom.dsk")
	if err != nil {
		t.Fatal(err)
	}

	if dsk.Len() != 5*RT11_BLOCK_SIZE || dsk.Blocks() != 5 {
		t.Errorf("geometry = %d bytes / %d blocks", dsk.Len(), dsk.Blocks())
	}
	if dsk.Mapped() {
		t.Error("resident image reports a mapping")
	}

	// A ragged tail is not addressable as a block.
	dsk.SetData(make([]byte, 5*RT11_BLOCK_SIZE+100))
	if dsk.Blocks() != 5 {
		t.Errorf("ragged image = %d blocks, want 5", dsk.Blocks())
	}
	dsk.Strict = true
	if _, err := dsk.GetBlock(5); !errors.Is(err, ErrBlockOutOfRange) {
		t.Errorf("partial tail block err = %v", err)
	}
}

func TestGetBlockReturnsCopy(t *testing.T) {
	image := make([]byte, 2*RT11_BLOCK_SIZE)
	image[RT11_BLOCK_SIZE] = 0x42

	dsk, _ := NewDSKWrapperBin(nil, image, "copy.dsk")
	data, err := dsk.GetBlock(1)
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 0x42 {
		t.Fatalf("block 1 starts %#x", data[0])
	}

	data[0] = 0x99
	if dsk.Data[RT11_BLOCK_SIZE] != 0x42 {
		t.Error("mutating a returned block changed the image")
	}
}

func TestReadRangeBounds(t *testing.T) {
	dsk, _ := NewDSKWrapperBin(nil, make([]byte, RT11_BLOCK_SIZE), "bounds.dsk")

	if _, err := dsk.ReadRange(-1, 10); !errors.Is(err, ErrBlockOutOfRange) {
		t.Errorf("negative offset err = %v", err)
	}
	if _, err := dsk.ReadRange(500, 100); !errors.Is(err, ErrBlockOutOfRange) {
		t.Errorf("overrun err = %v", err)
	}
	data, err := dsk.ReadRange(500, 12)
	if err != nil || len(data) != 12 {
		t.Errorf("tail read = %d bytes, err %v", len(data), err)
	}
}

func TestChecksums(t *testing.T) {
	// SHA-256 of "abc".
	if got := Checksum([]byte("abc")); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("Checksum = %s", got)
	}

	image := make([]byte, 3*RT11_BLOCK_SIZE)
	for i := range image {
		image[i] = byte(i)
	}
	dsk, _ := NewDSKWrapperBin(nil, image, "sum.dsk")

	whole, err := dsk.ChecksumDisk()
	if err != nil || whole != Checksum(image) {
		t.Errorf("ChecksumDisk = %s, err %v", whole, err)
	}

	one, err := dsk.ChecksumBlock(1)
	if err != nil || one != Checksum(image[RT11_BLOCK_SIZE:2*RT11_BLOCK_SIZE]) {
		t.Errorf("ChecksumBlock = %s, err %v", one, err)
	}
}

func TestWrapperFromFile(t *testing.T) {
	image := make([]byte, 4*RT11_BLOCK_SIZE)
	image[0] = 0x5A
	name := filepath.Join(t.TempDir(), "file.dsk")
	if err := ioutil.WriteFile(name, image, 0644); err != nil {
		t.Fatal(err)
	}

	dsk, err := NewDSKWrapper(nil, name)
	if err != nil {
		t.Fatal(err)
	}
	defer dsk.Close()

	// Small images are pulled resident.
	if dsk.Mapped() {
		t.Error("small image left mapped")
	}
	if dsk.Blocks() != 4 {
		t.Errorf("blocks = %d, want 4", dsk.Blocks())
	}
	data, err := dsk.GetBlock(0)
	if err != nil || data[0] != 0x5A {
		t.Errorf("block 0 = %#x, err %v", data[0], err)
	}

	// All zero candidate headers are enough to identify.
	if dsk.Format.ID != DF_RT11 {
		t.Errorf("format = %v", dsk.Format)
	}
}

// Format agnostic access through DiskImage dispatches on the identified
// format.
func TestDiskImageDispatch(t *testing.T) {
	image := testImage(20)
	putHeader(image, 6, 4, 0, 1, 0, 14)
	putEntry(image, 6, 10, RT11_E_PERM, "FOO", "BAS", 2)
	le16(image, 6*RT11_BLOCK_SIZE+24, int(RT11_E_EOS))

	dsk, err := NewDSKWrapperBin(nil, image, "iface.dsk")
	if err != nil {
		t.Fatal(err)
	}

	var img DiskImage = dsk

	cat, err := img.GetCatalog("*")
	if err != nil {
		t.Fatal(err)
	}
	if len(cat) != 1 || cat[0].Name() != "FOO.BAS" {
		t.Fatalf("catalog = %d entries", len(cat))
	}
	if cat[0].Size() != 2*RT11_BLOCK_SIZE {
		t.Errorf("size = %d, want %d", cat[0].Size(), 2*RT11_BLOCK_SIZE)
	}

	data, err := img.ReadFile(cat[0])
	if err != nil || len(data) != 2*RT11_BLOCK_SIZE {
		t.Fatalf("read = %d bytes, err %v", len(data), err)
	}

	used, err := img.GetUsedBitmap()
	if err != nil {
		t.Fatal(err)
	}
	if !used[RT11_DATA_START_BLOCK] || !used[6] {
		t.Error("file extent or segment block not marked used")
	}

	// Nothing recoverable leaves the volume unidentified: no catalog to
	// offer, and usage assumes every block.
	junk := testImage(12)
	for _, b := range RT11_SEGMENT_CANDIDATES {
		spoilBlock(junk, b)
	}
	none, err := NewDSKWrapperBin(nil, junk, "junk.dsk")
	if err != nil {
		t.Fatal(err)
	}
	if none.Format.ID != DF_NONE {
		t.Fatalf("format = %v, want unidentified", none.Format)
	}

	img = none
	if _, err := img.GetCatalog("*"); !errors.Is(err, ErrNoValidDirectory) {
		t.Errorf("catalog err = %v", err)
	}
	used, err = img.GetUsedBitmap()
	if err != nil || len(used) != 12 {
		t.Fatalf("bitmap = %d blocks, err %v", len(used), err)
	}
	for i, v := range used {
		if !v {
			t.Fatalf("block %d not assumed used", i)
		}
	}
}

func TestFormatNames(t *testing.T) {
	if s := GetDiskFormat(DF_RT11).String(); s != "RT-11" {
		t.Errorf("RT-11 format name = %q", s)
	}
	if s := GetDiskFormat(DF_NONE).String(); s != "Unidentified" {
		t.Errorf("unidentified format name = %q", s)
	}
	if e := GetDiskFormat(DF_RT11).Ext(); e != "dsk" {
		t.Errorf("RT-11 ext = %q", e)
	}
}
