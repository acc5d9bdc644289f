package main

import (
	"crypto/md5"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/paleotronic/rt11m8/disk"
	"github.com/paleotronic/rt11m8/loggy"
)

type Disk struct {
	FullPath     string
	Filename     string
	SHA256       string // Sha of whole image
	SHA256Active string // Sha of used blocks only
	Format       string
	FormatID     disk.DiskFormat
	Bitmap       []bool
	Blocks       int
	Files        DiskCatalog
	ActiveBlocks DiskBlocks

	// Recovery audit: which candidate blocks held accepted directory
	// segments, and whether any sat away from the canonical home.
	SegmentBlocks []int
	Variant       bool

	MatchFactor              float64
	MatchFiles               map[*DiskFile]*DiskFile
	MissingFiles, ExtraFiles []*DiskFile
	IngestMode               int
	IngestID                 string
	source                   string
}

type ByMatchFactor []*Disk

func (s ByMatchFactor) Len() int {
	return len(s)
}

func (s ByMatchFactor) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s ByMatchFactor) Less(i, j int) bool {
	return s[i].MatchFactor < s[j].MatchFactor
}

type DiskFile struct {
	Filename     string
	Type         string
	Ext          string
	Kind         string
	SHA256       string
	Size         int
	StartBlock   int
	LengthBlocks int
	JobChannel   int
	Text         []byte
	Data         []byte
	Locked       bool
	Created      time.Time
	HasDate      bool
}

// GetNameAdorned tags the filename with its resolved start block, keeping
// extracted copies of same named files from distinct regions apart.
func (d *DiskFile) GetNameAdorned() string {
	return fmt.Sprintf("%s#b%04d.%s", d.Filename, d.StartBlock, strings.ToLower(d.Ext))
}

func (d *DiskFile) GetName() string {
	if d.Ext == "" {
		return d.Filename
	}
	return fmt.Sprintf("%s.%s", d.Filename, d.Ext)
}

type DiskCatalog []*DiskFile
type DiskBlocks []*DiskBlock

type DiskBlock struct {
	Block int

	SHA256 string

	Data []byte
}

func (i Disk) LogBitmap(id int) {

	l := loggy.Get(id)

	for base := 0; base < i.Blocks; base += 16 {

		var line strings.Builder
		fmt.Fprintf(&line, "Block %.4d: ", base)

		for b := base; b < base+16 && b < i.Blocks; b++ {
			if i.Bitmap[b] {
				fmt.Fprintf(&line, "%.2x ", b%16)
			} else {
				line.WriteString(":: ")
			}
		}

		l.Logf("%s", line.String())
	}
}

// Fingerprint files are named FormatID_SHA256_SHA256Active_md5(name).fgp;
// this glob matches all of them.
const fingerprintGlob = "*_*_*_*.fgp"

func (d Disk) GetFilename() string {

	sum := md5.Sum([]byte(d.Filename))
	dir := strings.Trim(filepath.Dir(d.FullPath), "/")

	ff := fmt.Sprintf("%s/%d_%s_%s_%s.fgp", dir, d.FormatID.ID, d.SHA256, d.SHA256Active, hex.EncodeToString(sum[:]))

	if runtime.GOOS == "windows" {
		ff = strings.Replace(ff, ":", "", -1)
		ff = strings.Replace(ff, "\\", "/", -1)
	}

	return ff
}

func (d Disk) WriteToFile(filename string) error {

	_ = os.MkdirAll(filepath.Dir(filename), 0755)

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(d); err != nil {
		return err
	}

	loggy.Get(0).Logf("Created %s", filename)

	return nil
}

func (d *Disk) ReadFromFile(filename string) error {

	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	err = gob.NewDecoder(f).Decode(d)
	d.source = filename

	return err
}

// othersMatching loads every cached fingerprint matching pattern, except
// the one for this disk.
func (d *Disk) othersMatching(pattern string, filter []string) []*Disk {

	l := loggy.Get(0)
	out := make([]*Disk, 0)

	found, matches := existsPattern(*baseName, filter, pattern)
	if !found {
		return out
	}

	for _, m := range matches {
		l.Logf(":: Checking %s", m)
		if item, err := cache.Get(m); err == nil && item.FullPath != d.FullPath {
			out = append(out, item)
		}
	}

	return out
}

func (d *Disk) formatPattern() string {
	return fmt.Sprintf("%d_*_*_*.fgp", d.FormatID.ID)
}

// GetExactBinaryMatches returns disks with the same whole image SHA256.
func (d *Disk) GetExactBinaryMatches(filter []string) []*Disk {
	return d.othersMatching(fmt.Sprintf("%d_%s_*_*.fgp", d.FormatID.ID, d.SHA256), filter)
}

// GetActiveBinaryMatches returns disks with the same active region SHA256.
// Images padded or truncated differently still land here when their live
// data agrees.
func (d *Disk) GetActiveBinaryMatches(filter []string) []*Disk {
	return d.othersMatching(fmt.Sprintf("%d_*_%s_*.fgp", d.FormatID.ID, d.SHA256Active), filter)
}

func (d *Disk) GetFileMap() map[string]*DiskFile {

	out := make(map[string]*DiskFile)
	for _, file := range d.Files {
		out[file.SHA256] = file
	}
	return out
}

func (d *Disk) blockChecksums() map[int]string {

	out := make(map[int]string, len(d.ActiveBlocks))
	for _, b := range d.ActiveBlocks {
		out[b.Block] = b.SHA256
	}
	return out
}

// CompareChunks returns block overlap ratios in the range 0-1.
func (d *Disk) CompareChunks(b *Disk) (float64, float64, float64, float64) {

	if d.FormatID != b.FormatID {
		loggy.Get(0).Logf("Trying to compare disks of different types")
		return 0, 0, 0, 0
	}

	switch d.FormatID.ID {
	case disk.DF_RT11:
		return d.compareBlocksPositional(b)
	}

	return 0, 0, 0, 0
}

func (d *Disk) compareBlocksPositional(b *Disk) (float64, float64, float64, float64) {

	dmap := d.blockChecksums()
	bmap := b.blockChecksums()

	limit := d.Blocks
	if b.Blocks > limit {
		limit = b.Blocks
	}

	var same, diff, dOnly, bOnly float64

	for t := 0; t < limit; t++ {
		dCk, dEx := dmap[t]
		bCk, bEx := bmap[t]
		switch {
		case dEx && bEx && dCk == bCk:
			same++
		case dEx && bEx:
			diff++
		case dEx:
			dOnly++
		case bEx:
			bOnly++
		}
	}

	loggy.Get(0).Debugf("blocks: %.0f same, %.0f differ, %.0f only here, %.0f only there", same, diff, dOnly, bOnly)

	dTotal := same + diff + dOnly
	bTotal := same + diff + bOnly
	if dTotal == 0 || bTotal == 0 {
		return 0, 0, 0, 0
	}

	return same / dTotal, same / bTotal, diff / dTotal, diff / bTotal
}

// GetPartialMatches buckets overlapping images into supersets, subsets and
// identical block-for-block copies of this one.
func (d *Disk) GetPartialMatches(filter []string) ([]*Disk, []*Disk, []*Disk) {

	l := loggy.Get(0)

	superset := make([]*Disk, 0)
	subset := make([]*Disk, 0)
	identical := make([]*Disk, 0)

	for _, item := range d.othersMatching(d.formatPattern(), filter) {

		dSame, iSame, dDiff, iDiff := d.CompareChunks(item)
		l.Logf("== %s: shares %.2f%% of our allocated blocks (theirs %.2f%%), differs %.2f%% / %.2f%%",
			item.Filename, dSame*100, iSame*100, dDiff*100, iDiff*100)

		switch {
		case dSame == 1 && iSame == 1:
			identical = append(identical, item)
		case dSame == 1:
			superset = append(superset, item)
		case iSame == 1:
			subset = append(subset, item)
		}
	}

	return superset, subset, identical
}

// matchesAboveThreshold scans every cached fingerprint matching pattern
// and keeps the disks the score function rates at or above t. The score
// lands in MatchFactor for the report sort.
func (d *Disk) matchesAboveThreshold(t float64, pattern string, filter []string, score func(item *Disk) float64) []*Disk {

	matchlist := make([]*Disk, 0)

	found, matches := existsPattern(*baseName, filter, pattern)
	if !found {
		return matchlist
	}

	last := -1
	for i, m := range matches {
		last = meter("Analyzing volumes...", i, len(matches), last)

		item, err := cache.Get(m)
		if err != nil || item.FullPath == d.FullPath {
			continue
		}

		loggy.Get(0).Logf(":: Checking %s", item.Filename)
		item.MatchFactor = score(item)
		if item.MatchFactor >= t {
			matchlist = append(matchlist, item)
		}
	}

	return matchlist
}

func (d *Disk) GetPartialMatchesWithThreshold(t float64, filter []string) []*Disk {
	return d.matchesAboveThreshold(t, d.formatPattern(), filter, func(item *Disk) float64 {
		dSame, _, _, _ := d.CompareChunks(item)
		return dSame
	})
}

func (d *Disk) GetPartialFileMatchesWithThreshold(t float64, filter []string) []*Disk {
	return d.matchesAboveThreshold(t, fingerprintGlob, filter, func(item *Disk) float64 {
		return d.CompareFiles(item)
	})
}

func Aggregate(f func(d *Disk, collector interface{}), collector interface{}, pathfilter []string) {

	found, matches := existsPattern(*baseName, pathfilter, fingerprintGlob)
	if !found {
		return
	}

	l := loggy.Get(0)
	last := -1
	for i, m := range matches {
		last = meter("Aggregating data...", i, len(matches), last)
		l.Logf(":: Checking %s", m)
		if item, err := cache.Get(m); err == nil {
			f(item, collector)
		}
	}

	os.Stderr.WriteString("Done.\n")
}

// CompareFiles scores catalog b against this one by content checksum.
// Zero length files match everything and are left out. Match detail
// accumulates on b for reporting.
func (d *Disk) CompareFiles(b *Disk) float64 {

	var same, missing, extra float64

	dmap := d.GetFileMap()
	bmap := b.GetFileMap()

	for sha, info := range dmap {
		if info.Size == 0 {
			continue
		}
		if binfo, ok := bmap[sha]; ok {
			same++
			if b.MatchFiles == nil {
				b.MatchFiles = make(map[*DiskFile]*DiskFile)
			}
			b.MatchFiles[binfo] = info
		} else {
			missing++
			b.MissingFiles = append(b.MissingFiles, info)
		}
	}

	for sha, info := range bmap {
		if info.Size == 0 {
			continue
		}
		if _, ok := dmap[sha]; !ok {
			extra++
			b.ExtraFiles = append(b.ExtraFiles, info)
		}
	}

	if same+missing+extra == 0 {
		return 0
	}

	return same / (same + missing + extra)
}

func (d *Disk) HasFileSHA256(sha string) (bool, *DiskFile) {

	for _, file := range d.Files {
		if sha == file.SHA256 {
			return true, file
		}
	}
	return false, nil
}

func (d *Disk) GetFileChecksum(filename string) (bool, string) {

	for _, f := range d.Files {
		if strings.EqualFold(filename, f.Filename) || strings.EqualFold(filename, f.GetName()) {
			return true, f.SHA256
		}
	}
	return false, ""
}

// GetFileMatches returns disks holding a file with the same content as
// the named file on this disk, whatever it is called over there.
func (d *Disk) GetFileMatches(filename string, filter []string) []*Disk {

	matchlist := make([]*Disk, 0)

	found, sha := d.GetFileChecksum(filename)
	if !found {
		os.Stderr.WriteString("File does not exist on this volume: " + filename + "\n")
		return matchlist
	}
	_, srcFile := d.HasFileSHA256(sha)

	patternFound, matches := existsPattern(*baseName, filter, fingerprintGlob)
	if !patternFound {
		return matchlist
	}

	last := -1
	for i, m := range matches {
		last = meter("Analyzing volumes...", i, len(matches), last)

		item, err := cache.Get(m)
		if err != nil || item.FullPath == d.FullPath {
			continue
		}

		if ok, file := item.HasFileSHA256(sha); ok {
			if item.MatchFiles == nil {
				item.MatchFiles = make(map[*DiskFile]*DiskFile)
			}
			item.MatchFiles[srcFile] = file
			matchlist = append(matchlist, item)
		}
	}

	return matchlist
}

// catalogLine expands one catalog entry into the template placeholders
// understood by the -dir-format flag: {filename} {type} {kind} {date}
// {start} {job} {sha256} and the {size} family.
func catalogLine(file *DiskFile, format string) string {

	date := "<no date>"
	if file.HasDate {
		date = file.Created.Format("02-Jan-2006")
	}

	rep := strings.NewReplacer(
		"{size:blocks}", fmt.Sprintf("%4d Blocks", (file.Size+disk.RT11_BLOCK_SIZE-1)/disk.RT11_BLOCK_SIZE),
		"{size:kb}", fmt.Sprintf("%4d Kb", file.Size/1024+1),
		"{size:b}", fmt.Sprintf("%6d Bytes", file.Size),
		"{size}", fmt.Sprintf("%6d", file.Size),
		"{filename}", fmt.Sprintf("%-10s", file.GetName()),
		"{type}", fmt.Sprintf("%-18s", file.Type),
		"{sha256}", file.SHA256,
		"{start}", fmt.Sprintf("@%04d", file.StartBlock),
		"{kind}", fmt.Sprintf("%-11s", file.Kind),
		"{date}", fmt.Sprintf("%-11s", date),
		"{job}", fmt.Sprintf("%#06o", file.JobChannel),
	)

	return rep.Replace(format)
}

func (d *Disk) GetDirectory(format string) string {

	var out strings.Builder

	for _, file := range d.Files {
		out.WriteString(catalogLine(file, format))
		out.WriteByte('\n')
	}

	return out.String()
}

type DiskMetaDataCache struct {
	Disks map[string]*Disk
}

var cache = NewCache()

func NewCache() *DiskMetaDataCache {
	return &DiskMetaDataCache{
		Disks: make(map[string]*Disk),
	}
}

func (c *DiskMetaDataCache) Get(filename string) (*Disk, error) {

	if cached, ok := c.Disks[filename]; ok {
		return cached, nil
	}

	item := &Disk{}
	if err := item.ReadFromFile(filename); err != nil {
		return nil, fmt.Errorf("no fingerprint for %s: %v", filename, err)
	}

	c.Disks[filename] = item
	return item, nil
}

func (c *DiskMetaDataCache) Put(filename string, item *Disk) {
	c.Disks[filename] = item
}

// CreateCache preloads every fingerprint matching pattern so later scans
// run without disk reads.
func CreateCache(pattern string, filter []string) *DiskMetaDataCache {

	c := NewCache()

	found, matches := existsPattern(*baseName, filter, pattern)
	if !found {
		return c
	}

	last := -1
	for i, m := range matches {
		item := &Disk{}
		if err := item.ReadFromFile(m); err != nil {
			continue
		}
		c.Put(m, item)
		last = meter("Caching data...", i, len(matches), last)
	}

	return c
}

const ingestWorkers = 4
const processWorkers = 6

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
