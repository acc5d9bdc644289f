package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/paleotronic/rt11m8/loggy"
)

// SHA256 of a zero filled 512 byte block.
const EMPTYBLOCK = "076a27c79e5ace2a3d47f9dd2e83e4ff6ea8872b3c2218f66c92b89b55f36560"

// blockLoader pulls per-block checksum lists out of the datastore. The
// block reports take one as a parameter so the same pump serves both the
// all-blocks and active-blocks variants.
type blockLoader func(pattern string, pathfilter []string) map[string]DiskBlocks

func loadDiskBlocks(pattern string, pathfilter []string, dropZero bool) map[string]DiskBlocks {

	blocks := make(map[string]DiskBlocks)

	found, fgps := existsPattern(*baseName, pathfilter, pattern)
	if !found {
		return blocks
	}

	paths := make(chan string, 100)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < ingestWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fgp := range paths {
				item := &Disk{}
				if err := item.ReadFromFile(fgp); err != nil {
					loggy.Get(0).Errorf("Unreadable fingerprint %s: %v", fgp, err)
					continue
				}

				keep := item.ActiveBlocks
				if dropZero {
					keep = make(DiskBlocks, 0, len(item.ActiveBlocks))
					for _, v := range item.ActiveBlocks {
						if v.SHA256 == EMPTYBLOCK {
							loggy.Get(0).Debugf("%s: dropping zero block %d", item.Filename, v.Block)
							continue
						}
						keep = append(keep, v)
					}
				}

				mu.Lock()
				blocks[item.FullPath] = keep
				mu.Unlock()
			}
		}()
	}

	last := -1
	for i, fgp := range fgps {
		paths <- fgp
		last = meter("Caching disk block data...", i, len(fgps), last)
	}
	close(paths)
	wg.Wait()

	return blocks
}

// GetAllDiskBlocks loads per-block checksums with zero filled blocks
// removed, so images sharing nothing but empty space do not correlate.
func GetAllDiskBlocks(pattern string, pathfilter []string) map[string]DiskBlocks {
	return loadDiskBlocks(pattern, pathfilter, true)
}

// GetActiveDiskBlocks loads per-block checksums for active regions as
// recovered, zero filled blocks included.
func GetActiveDiskBlocks(pattern string, pathfilter []string) map[string]DiskBlocks {
	return loadDiskBlocks(pattern, pathfilter, false)
}

// GetBlockMap indexes a block list by position. Overlap is judged per
// position, then by content checksum.
func GetBlockMap(d DiskBlocks) map[string]*DiskBlock {
	out := make(map[string]*DiskBlock)
	for _, v := range d {
		out[fmt.Sprintf("B%d", v.Block)] = v
	}
	return out
}

// BlockOverlapRecord holds, for one reference image, the per-image results
// of comparing block checksums positionally against every other image.
type BlockOverlapRecord struct {
	same    map[string]map[*DiskBlock]*DiskBlock
	percent map[string]float64
	missing map[string][]*DiskBlock
	extras  map[string][]*DiskBlock
}

func newBlockOverlapRecord() *BlockOverlapRecord {
	return &BlockOverlapRecord{
		same:    make(map[string]map[*DiskBlock]*DiskBlock),
		percent: make(map[string]float64),
		missing: make(map[string][]*DiskBlock),
		extras:  make(map[string][]*DiskBlock),
	}
}

func (f *BlockOverlapRecord) Remove(key string) {
	delete(f.same, key)
	delete(f.percent, key)
	delete(f.missing, key)
	delete(f.extras, key)
}

// IsSubsetOf: every reference block matches on filename, which holds more.
func (f *BlockOverlapRecord) IsSubsetOf(filename string) bool {
	if _, ok := f.same[filename]; !ok {
		return false
	}
	return len(f.extras[filename]) > 0 && len(f.missing[filename]) == 0
}

// CompareBlocks scores block list b against reference list d. A block
// counts as same only when it sits at the same position with the same
// checksum; a reference block absent or different on b is missing, a block
// of b at a position the reference lacks is extra.
func CompareBlocks(d, b DiskBlocks, r *BlockOverlapRecord, key string) float64 {

	dmap := GetBlockMap(d)
	bmap := GetBlockMap(b)

	var same, missing, extra float64

	for pos, info := range dmap {
		if binfo, ok := bmap[pos]; ok && info.SHA256 == binfo.SHA256 {
			same++
			if r.same[key] == nil {
				r.same[key] = make(map[*DiskBlock]*DiskBlock)
			}
			r.same[key][binfo] = info
		} else {
			missing++
			r.missing[key] = append(r.missing[key], info)
		}
	}

	for pos, info := range bmap {
		if _, ok := dmap[pos]; !ok {
			extra++
			r.extras[key] = append(r.extras[key], info)
		}
	}

	if same+missing+extra == 0 {
		return 0
	}
	return same / (same + missing + extra)
}

// collectBlockOverlaps is the all-pairs comparison pump behind the block
// overlap reports, mirroring collectFileOverlaps at block granularity.
func collectBlockOverlaps(pathfilter []string, ff blockLoader, keep func(ref, other string, v *BlockOverlapRecord) bool) map[string]*BlockOverlapRecord {

	blockmaps := ff(fingerprintGlob, pathfilter)
	results := make(map[string]*BlockOverlapRecord)

	refs := make(chan string, 100)
	var mu sync.Mutex
	var wg sync.WaitGroup

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)

	for i := 0; i < processWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range refs {

				v := newBlockOverlapRecord()
				d := blockmaps[ref]

				for other, b := range blockmaps {
					if other == ref {
						continue
					}
					closeness := CompareBlocks(d, b, v, other)
					v.percent[other] = closeness
					if !keep(ref, other, v) {
						v.Remove(other)
					}
				}

				if len(v.percent) > 0 {
					mu.Lock()
					results[ref] = v
					mu.Unlock()
				}
			}
		}()
	}

	last := -1
	i := 0
	for ref := range blockmaps {
		if len(interrupted) > 0 {
			<-interrupted
			close(interrupted)
			os.Stderr.WriteString("\r\nInterrupted. Waiting for workers to stop.\r\n\r\n")
			break
		}
		refs <- ref
		last = meter("Processing block data...", i, len(blockmaps), last)
		i++
	}

	close(refs)
	wg.Wait()

	return results
}

// CollectBlockOverlapsAboveThreshold keeps pairs whose positional block
// match ratio reaches t.
func CollectBlockOverlapsAboveThreshold(t float64, pathfilter []string, ff blockLoader) map[string]*BlockOverlapRecord {
	return collectBlockOverlaps(pathfilter, ff, func(ref, other string, v *BlockOverlapRecord) bool {
		return v.percent[other] >= t
	})
}

// CollectBlockSubsets keeps pairs where every reference block matches
// inside the other image.
func CollectBlockSubsets(pathfilter []string, ff blockLoader) map[string]*BlockOverlapRecord {
	return collectBlockOverlaps(pathfilter, ff, func(ref, other string, v *BlockOverlapRecord) bool {
		return v.IsSubsetOf(other)
	})
}
