package main

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/paleotronic/rt11m8/disk"
	"github.com/paleotronic/rt11m8/loggy"
	"github.com/paleotronic/rt11m8/panic"
)

// Image extensions worth probing: generic container names plus the DEC
// cartridge and floppy device types the archives use.
var diskRegex = regexp.MustCompile("(?i)[.](dsk|img|rk05|rk06|rk07|rl01|rl02|rx01|rx02)$")

// Ingest pool size. Overridable from the config file.
var loaderWorkers = 8

var indisk map[disk.DiskFormat]int
var outdisk map[disk.DiskFormat]int
var cm sync.Mutex

func init() {
	indisk = make(map[disk.DiskFormat]int)
	outdisk = make(map[disk.DiskFormat]int)
}

func in(f disk.DiskFormat) {
	cm.Lock()
	defer cm.Unlock()
	indisk[f]++
}

func out(f disk.DiskFormat) {
	cm.Lock()
	defer cm.Unlock()
	outdisk[f]++
}

// walk ingests every disk image under dir on a worker pool, then prints
// the per format tally.
func walk(dir string) {

	start := time.Now()

	indisk = make(map[disk.DiskFormat]int)
	outdisk = make(map[disk.DiskFormat]int)

	incoming := make(chan string, 16)
	var processed, errorcount int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < loaderWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			l := loggy.Get(id)

			for filename := range incoming {
				panic.Do(
					func() {
						analyze(id, filename)
						mu.Lock()
						processed++
						mu.Unlock()
					},
					func(r interface{}) {
						l.Errorf("Error processing volume: %s", filename)
						l.Errorf(string(debug.Stack()))
						mu.Lock()
						errorcount++
						mu.Unlock()
					},
				)
			}
		}(1 + i)
	}

	filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			loggy.Get(0).Errorf(err.Error())
			return err
		}
		if diskRegex.MatchString(p) {
			incoming <- p
			mu.Lock()
			n := processed
			mu.Unlock()
			fmt.Printf("\rIngested: %d volumes ...", n)
		}
		return nil
	})

	close(incoming)
	wg.Wait()

	fmt.Printf("\rIngested: %d volumes ...\n", processed)

	duration := time.Since(start)

	fmt.Println("=============================================================")
	fmt.Printf(" RT11m8 process report (%d Workers, %v)\n", loaderWorkers, duration)
	fmt.Println("=============================================================")

	tin, tout := 0, 0
	for f, count := range indisk {
		fmt.Printf("%-30s %6d in %6d out\n", f.String(), count, outdisk[f])
		tin += count
		tout += outdisk[f]
	}

	fmt.Println()
	fmt.Printf("%-30s %6d in %6d out\n", "Total", tin, tout)
	fmt.Println()

	if processed+errorcount > 0 {
		fmt.Printf("%v average time spent per disk.\n", duration/time.Duration(processed+errorcount))
	}
}

// globToRegex turns a filename glob into an end anchored expression.
// * spans greedily, ? matches a single character.
func globToRegex(pattern string) string {
	return strings.NewReplacer(".", "[.]", "?", ".", "*", ".+").Replace(pattern) + "$"
}

// resolvePathfilters narrows a datastore scan to the given paths. A
// directory keeps everything under it matching the glob; a file keeps
// only fingerprints whose name hash matches that file.
func resolvePathfilters(base string, pathfilter []string, pattern string) []*regexp.Regexp {

	glob := globToRegex(pattern)
	base = strings.Replace(base, "\\", "/", -1)

	var out []*regexp.Regexp
	for _, p := range pathfilter {

		if runtime.GOOS == "windows" {
			p = strings.Replace(p, "\\", "/", -1)
		}

		p, err := filepath.Abs(p)
		if err != nil {
			continue
		}

		info, err := os.Stat(p)
		if err != nil {
			continue
		}

		if runtime.GOOS == "windows" {
			p = strings.Replace(p, ":", "", -1)
			p = strings.Replace(p, "\\", "/", -1)
		}

		var realpath string
		if info.IsDir() {
			realpath = base + "/" + strings.Trim(p, "/") + "/" + glob
		} else {
			sum := md5.Sum([]byte(strings.Trim(filepath.Base(p), " /")))
			realpath = base + "/" + strings.Trim(filepath.Dir(p), "/") + "/.+_.+_.+_" + hex.EncodeToString(sum[:]) + "[.]fgp$"
		}

		out = append(out, regexp.MustCompile(realpath))
	}

	return out
}

// existsPattern walks the datastore for fingerprints matching the glob,
// optionally narrowed to the filter paths.
func existsPattern(base string, filters []string, pattern string) (bool, []string) {

	fileRxp := regexp.MustCompile("(?i)" + globToRegex(pattern))

	var out []string
	filepath.Walk(base, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			loggy.Get(0).Errorf(err.Error())
			return err
		}
		if fileRxp.MatchString(filepath.Base(p)) {
			out = append(out, p)
		}
		return nil
	})

	keep := resolvePathfilters(base, filters, pattern)
	if len(keep) == 0 {
		return len(out) > 0, out
	}

	filtered := make([]string, 0, len(out))
	for _, p := range out {
		if runtime.GOOS == "windows" {
			p = strings.Replace(p, "\\", "/", -1)
		}
		for _, rxp := range keep {
			if rxp.MatchString(p) {
				filtered = append(filtered, p)
				break
			}
		}
	}

	return len(filtered) > 0, filtered
}

func analyze(id int, filename string) (*Disk, error) {

	l := loggy.Get(id)

	if abspath, err := filepath.Abs(filename); err == nil {
		filename = abspath
	}

	dskInfo := &Disk{
		Filename: path.Base(filename),
		FullPath: path.Clean(filename),
	}

	l.Logf("Reading disk image from file source %s", filename)

	dsk, err := disk.NewDSKWrapper(l, filename)
	if err != nil {
		l.Errorf("Disk read failed: %s", err)
		return dskInfo, err
	}
	defer dsk.Close()

	dsk.Strict = *strictMode
	l.Log("Load is OK.")

	if sum, err := dsk.ChecksumDisk(); err == nil {
		dskInfo.SHA256 = sum
	}
	l.Logf("SHA256 is %s", dskInfo.SHA256)

	dskInfo.Format = dsk.Format.String()
	dskInfo.FormatID = dsk.Format
	l.Logf("Format is %s", dskInfo.Format)

	if magic, err := dsk.ReadRange(0, 32); err == nil {
		l.Debugf("Image magic: %v", hex.EncodeToString(magic))
	}

	segblocks := make([]int, 0, len(dsk.RT11Segments))
	for _, h := range dsk.RT11Segments {
		segblocks = append(segblocks, h.Block)
	}
	l.Logf("Directory hunt says: %v", segblocks)

	in(dsk.Format)

	dskInfo.IngestMode = *ingestMode
	dskInfo.IngestID = sessionID

	switch dsk.Format.ID {
	case disk.DF_RT11:
		analyzeRT11(id, dsk, dskInfo)
	default:
		analyzeNONE(id, dsk, dskInfo)
	}

	return dskInfo, nil
}
