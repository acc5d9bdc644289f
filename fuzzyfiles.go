package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/paleotronic/rt11m8/loggy"
)

// Zero byte files match everything, and the monitor/swap files shipped on
// every bootable volume make any two system disks look related. Both are
// skipped when measuring catalog overlap.
const EXCLUDEZEROBYTE = true
const EXCLUDESYSTEM = true

func skipForOverlap(info *DiskFile) bool {
	if EXCLUDEZEROBYTE && info.Size == 0 {
		return true
	}
	if EXCLUDESYSTEM && strings.EqualFold(info.Ext, "SYS") {
		return true
	}
	return false
}

func meter(label string, done, total, last int) int {
	pc := int(100 * float64(done) / float64(total))
	if pc != last {
		fmt.Print("\r")
		os.Stderr.WriteString(fmt.Sprintf("%s %d%%   ", label, pc))
	}
	return pc
}

// GetAllFiles pulls the catalog out of every fingerprint matching pattern,
// keyed by image path. Fingerprints with no recovered files are skipped.
func GetAllFiles(pattern string, pathfilter []string) map[string]DiskCatalog {

	catalogs := make(map[string]DiskCatalog)

	found, fgps := existsPattern(*baseName, pathfilter, pattern)
	if !found {
		return catalogs
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
				if len(item.Files) == 0 {
					continue
				}
				mu.Lock()
				catalogs[item.FullPath] = item.Files
				mu.Unlock()
			}
		}()
	}

	last := -1
	for i, fgp := range fgps {
		paths <- fgp
		last = meter("Caching data...", i, len(fgps), last)
	}
	close(paths)
	wg.Wait()

	return catalogs
}

// FileOverlapRecord holds, for one reference image, the per-image results
// of comparing its recovered catalog against every other fingerprint: the
// matched file pairs, the match ratio, and what each side has that the
// other does not.
type FileOverlapRecord struct {
	files   map[string]map[*DiskFile]*DiskFile
	percent map[string]float64
	missing map[string][]*DiskFile
	extras  map[string][]*DiskFile
}

func newFileOverlapRecord() *FileOverlapRecord {
	return &FileOverlapRecord{
		files:   make(map[string]map[*DiskFile]*DiskFile),
		percent: make(map[string]float64),
		missing: make(map[string][]*DiskFile),
		extras:  make(map[string][]*DiskFile),
	}
}

func (f *FileOverlapRecord) Remove(key string) {
	delete(f.files, key)
	delete(f.percent, key)
	delete(f.missing, key)
	delete(f.extras, key)
}

// IsSubsetOf: every counted file also exists on filename, which holds more.
func (f *FileOverlapRecord) IsSubsetOf(filename string) bool {
	if _, ok := f.files[filename]; !ok {
		return false
	}
	return len(f.extras[filename]) > 0 && len(f.missing[filename]) == 0
}

// GetCatalogMap indexes a catalog by content checksum. Files are matched
// across images by what they hold, never by name.
func GetCatalogMap(d DiskCatalog) map[string]*DiskFile {
	out := make(map[string]*DiskFile)
	for _, v := range d {
		out[v.SHA256] = v
	}
	return out
}

// CompareCatalogs scores catalog b against reference catalog d, recording
// matched pairs, files of d absent from b, and files of b absent from d
// under key in r. Returns matched/(matched+missing+extra), 0 when nothing
// was comparable.
func CompareCatalogs(d, b DiskCatalog, r *FileOverlapRecord, key string) float64 {

	dmap := GetCatalogMap(d)
	bmap := GetCatalogMap(b)

	var same, missing, extra float64

	for ck, info := range dmap {
		if skipForOverlap(info) {
			continue
		}
		if binfo, ok := bmap[ck]; ok {
			same++
			if r.files[key] == nil {
				r.files[key] = make(map[*DiskFile]*DiskFile)
			}
			r.files[key][binfo] = info
		} else {
			missing++
			r.missing[key] = append(r.missing[key], info)
		}
	}

	for ck, info := range bmap {
		if skipForOverlap(info) {
			continue
		}
		if _, ok := dmap[ck]; !ok {
			extra++
			r.extras[key] = append(r.extras[key], info)
		}
	}

	if same+missing+extra == 0 {
		return 0
	}
	return same / (same + missing + extra)
}

// collectFileOverlaps is the all-pairs comparison pump behind the file
// overlap reports. Every fingerprint catalog is compared against every
// other; the keep function decides, after CompareCatalogs has filled the
// record for that pair, whether the pair survives. An interrupt stops the
// feed and drains the workers, returning whatever was finished.
func collectFileOverlaps(pathfilter []string, keep func(ref, other string, v *FileOverlapRecord) bool) map[string]*FileOverlapRecord {

	catalogs := GetAllFiles(fingerprintGlob, pathfilter)
	results := make(map[string]*FileOverlapRecord)

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

				v := newFileOverlapRecord()
				d := catalogs[ref]

				for other, b := range catalogs {
					if other == ref {
						continue
					}
					closeness := CompareCatalogs(d, b, v, other)
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
	for ref := range catalogs {
		if len(interrupted) > 0 {
			<-interrupted
			close(interrupted)
			os.Stderr.WriteString("\r\nInterrupted. Waiting for workers to stop.\r\n\r\n")
			break
		}
		refs <- ref
		last = meter("Processing files data...", i, len(catalogs), last)
		i++
	}

	close(refs)
	wg.Wait()

	return results
}

// CollectFilesOverlapsAboveThreshold keeps pairs whose catalog match ratio
// reaches t.
func CollectFilesOverlapsAboveThreshold(t float64, pathfilter []string) map[string]*FileOverlapRecord {
	return collectFileOverlaps(pathfilter, func(ref, other string, v *FileOverlapRecord) bool {
		return v.percent[other] >= t
	})
}

// CollectFileSubsets keeps pairs where the reference image's files are
// wholly contained in the other image.
func CollectFileSubsets(pathfilter []string) map[string]*FileOverlapRecord {
	return collectFileOverlaps(pathfilter, func(ref, other string, v *FileOverlapRecord) bool {
		return v.IsSubsetOf(other)
	})
}

// CollectFilesOverlapsCustom keeps pairs the caller's predicate accepts.
func CollectFilesOverlapsCustom(keep func(d1, d2 string, v *FileOverlapRecord) bool, pathfilter []string) map[string]*FileOverlapRecord {
	return collectFileOverlaps(pathfilter, keep)
}
