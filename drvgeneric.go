package main

import (
	"github.com/paleotronic/rt11m8/disk"
	"github.com/paleotronic/rt11m8/loggy"
)

func analyzeNONE(id int, dsk *disk.DSKWrapper, info *Disk) {

	l := loggy.Get(id)

	info.Blocks = dsk.Blocks()

	l.Logf("Blocks: %d", info.Blocks)

	l.Logf("No recoverable directory; assuming all blocks might be used")

	var err error
	info.Bitmap, err = dsk.GetUsedBitmap()
	if err != nil {
		l.Errorf("Error reading bitmap: %s", err.Error())
		return
	}

	info.ActiveBlocks = make(DiskBlocks, 0)

	for b := 0; b < info.Blocks; b++ {

		ck, err := dsk.ChecksumBlock(b)
		if err != nil {
			l.Errorf("Error reading block %d: %s", b, err.Error())
			return
		}

		block := &DiskBlock{
			Block:  b,
			SHA256: ck,
		}

		if *ingestMode&2 == 2 {
			block.Data, _ = dsk.GetBlock(b)
		}

		info.ActiveBlocks = append(info.ActiveBlocks, block)

	}

	// Every block counts as active here, so the active hash is the whole
	// image hash.
	if sum, err := dsk.ChecksumDisk(); err == nil {
		info.SHA256Active = sum
	}

	// Analyzing files
	l.Log("Skipping Analysis of files")

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
