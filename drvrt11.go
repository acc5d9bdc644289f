package main

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/paleotronic/rt11m8/disk"
	"github.com/paleotronic/rt11m8/loggy"
)

func analyzeRT11(id int, dsk *disk.DSKWrapper, info *Disk) {

	l := loggy.Get(id)

	// Block bitmap
	l.Logf("Reading Disk Structure...")

	info.Blocks = dsk.Blocks()

	l.Logf("Blocks: %d", info.Blocks)

	l.Logf("Reading block bitmap and SHA256'ing blocks")

	info.ActiveBlocks = make(DiskBlocks, 0)

	var err error
	info.Bitmap, err = dsk.RT11UsedBitmap()
	if err != nil {
		l.Errorf("Error reading bitmap: %s", err.Error())
		return
	}

	activeData := make([]byte, 0)

	for b := 0; b < info.Blocks; b++ {

		if !info.Bitmap[b] {
			continue
		}

		ck, err := dsk.ChecksumBlock(b)
		if err != nil {
			l.Errorf("Error reading block %d: %s", b, err.Error())
			return
		}

		block := &DiskBlock{
			Block:  b,
			SHA256: ck,
		}

		data, _ := dsk.GetBlock(b)
		activeData = append(activeData, data...)

		if *ingestMode&2 == 2 {
			block.Data = data
		}

		info.ActiveBlocks = append(info.ActiveBlocks, block)

	}

	sum := sha256.Sum256(activeData)
	info.SHA256Active = hex.EncodeToString(sum[:])

	info.LogBitmap(id)

	// Directory recovery audit
	info.SegmentBlocks = make([]int, 0)
	for _, h := range dsk.RT11Segments {
		info.SegmentBlocks = append(info.SegmentBlocks, h.Block)
	}
	info.Variant = dsk.RT11Variant
	if info.Variant {
		l.Logf("Directory recovered away from canonical block %d", disk.RT11_CATALOG_BLOCK)
	}

	// Analyzing files
	l.Log("Starting Analysis of files")

	files, err := dsk.RT11GetCatalog("*")
	if err != nil {
		l.Errorf("Problem reading directory: %s", err.Error())
		return
	}

	info.Files = make([]*DiskFile, 0)
	for _, fd := range files {
		l.Logf("- Name=%s, Type=%s, Kind=%s", fd.NameUnadorned(), fd.Type(), fd.Kind())

		file := DiskFile{
			Filename:     fd.NameUnadorned(),
			Type:         fd.TypeDescription(),
			Ext:          fd.Type(),
			Kind:         fd.Kind().String(),
			StartBlock:   fd.StartBlock(),
			LengthBlocks: fd.LengthBlocks(),
			JobChannel:   fd.JobChannel(),
			Locked:       fd.IsProtected(),
		}
		if t, ok := fd.Date(); ok {
			file.Created = t
			file.HasDate = true
		}

		data, err := dsk.RT11ReadFile(fd)
		if err == nil {
			sum := sha256.Sum256(data)
			file.SHA256 = hex.EncodeToString(sum[:])
			file.Size = len(data)
			if *ingestMode&1 == 1 {
				file.Data = data
				if disk.RT11IsTextType(fd.Type()) {
					file.Text = disk.RT11NormalizeText(data)
				}
			}
		}

		info.Files = append(info.Files, &file)

	}

	have := exists(*baseName + "/" + info.GetFilename())

	if !have || *forceIngest {
		if err := info.WriteToFile(*baseName + "/" + info.GetFilename()); err != nil {
			l.Errorf("Problem writing fingerprint: %s", err.Error())
		}
	} else {
		l.Log("Not writing as it already exists")
	}

	out(dsk.Format)

}
