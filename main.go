package main

/*
RT11m8 recovers file inventories from RT-11 disk images, including images
whose directories are damaged or stored away from the canonical layout.

It provides command line tools for cataloguing large collections of
images, fingerprinting their contents and detecting duplicate or similar
volumes, plus an interactive shell for working with a single disk.
*/

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"

	"github.com/paleotronic/rt11m8/disk"
	"github.com/paleotronic/rt11m8/loggy"
	"github.com/paleotronic/rt11m8/panic"
)

const VERSION = "0.1.0"

func usage() {
	fmt.Printf(`%s <options>

Tool inventories RT-11 disk images, fingerprints their contents and
checks for duplicate or similar volumes.

`, path.Base(os.Args[0]))
	flag.PrintDefaults()
}

func banner() {
	fmt.Printf("rt11m8 %s - RT-11 disk image inventory and recovery\n\n", VERSION)
}

func binpath() string {

	if runtime.GOOS == "windows" {
		return os.Getenv("USERPROFILE") + "/RT11M8"
	}
	return os.Getenv("HOME") + "/.rt11m8"

}

func init() {
	loggy.LogFolder = binpath() + "/logs/"
}

var sessionID = uuid.NewString()

var dskName = flag.String("ingest", "", "Disk image or directory of images to ingest")
var dskInfo = flag.String("query", "", "Disk image to analyze and report on")
var baseName = flag.String("datastore", binpath()+"/fingerprints", "Location of the fingerprint datastore")
var verbose = flag.Bool("verbose", false, "Echo log output to stderr")
var strictMode = flag.Bool("strict", false, "Fail catalog recovery on out of range block reads")
var fileDupes = flag.Bool("file-dupes", false, "Report files duplicated across the datastore")
var wholeDupes = flag.Bool("whole-dupes", false, "Report byte identical disk images")
var activeDupes = flag.Bool("ab-dupes", false, "Report images whose active blocks match")
var abPartial = flag.Bool("ab-partial", false, "Active block match for one disk against the datastore (-ingest required)")
var similarity = flag.Float64("similarity", 0.90, "Match threshold for the -*-partial reports")
var minSame = flag.Int("min-same", 0, "Keep -all-file-partial pairs sharing at least this many files")
var maxDiff = flag.Int("max-diff", 0, "Keep -all-file-partial pairs differing by at most this many files")
var filePartial = flag.Bool("file-partial", false, "File match for one disk against the datastore (-ingest required)")
var fileMatch = flag.String("file", "", "Find other disks holding a copy of this file")
var dir = flag.Bool("dir", false, "Print a directory of the disk (needs -ingest or -query)")
var dirFormat = flag.String("dir-format", "{filename} {type} {size:kb} Checksum: {sha256}", "Template for -dir output lines")
var preCache = flag.Bool("c", true, "Preload fingerprints into memory before comparisons")
var allFilePartial = flag.Bool("all-file-partial", false, "File match across every pair of disks")
var allBlockPartial = flag.Bool("all-block-partial", false, "Non-zero block match across every pair of disks")
var activeBlockPartial = flag.Bool("active-block-partial", false, "Active block match across every pair of disks")
var allFileSubset = flag.Bool("all-file-subset", false, "Find disks whose files all appear on another disk")
var activeBlockSubset = flag.Bool("active-block-subset", false, "Find disks whose active blocks all appear on another disk")
var allBlockSubset = flag.Bool("all-block-subset", false, "Find disks whose non-zero blocks all appear on another disk")
var filterPath = flag.Bool("select", false, "Limit analysis or search to the paths given as arguments")
var csvOut = flag.Bool("csv", false, "Write overlap reports as CSV")
var reportFile = flag.String("out", "", "Report file (empty for stdout)")
var catDupes = flag.Bool("cat-dupes", false, "Report disks with identical recovered catalogs")
var searchFilename = flag.String("search-filename", "", "Find fingerprinted files by name")
var searchSHA = flag.String("search-sha", "", "Find fingerprinted files by content checksum")
var searchTEXT = flag.String("search-text", "", "Find fingerprinted files containing text")
var forceIngest = flag.Bool("force", false, "Re-ingest disks already in the datastore")
var ingestMode = flag.Int("ingest-mode", 1, "Ingest mode:\n\t0=Fingerprints only\n\t1=Fingerprints + file data\n\t2=Fingerprints + block data\n\t3=All")
var extract = flag.String("extract", "", "Extract files/disks matched in searches ('#'=extract disk, '@'=extract files)")
var adornedCP = flag.Bool("adorned", true, "Extract files named with start block adornment")
var shell = flag.Bool("shell", false, "Start interactive mode")
var shellBatch = flag.String("shell-batch", "", "Execute shell command(s) from file and exit")
var withDisk = flag.String("with-disk", "", "Perform disk operation (-file-extract,-catalog)")
var fileExtract = flag.String("file-extract", "", "File to extract from disk (-with-disk)")
var fileCatalog = flag.Bool("catalog", false, "List disk contents (-with-disk)")
var pdfReport = flag.String("pdf-report", "", "Write recovery report PDF for queried disk (-query)")
var configFile = flag.String("config", "", "Config file (default "+binpath()+"/config.yml)")

// runDiskOp drives a single shell command against one image, for scripted
// use without the interactive loop.
func runDiskOp(path string) {

	dsk, err := disk.NewDSKWrapper(loggy.Get(0), path)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	dsk.Strict = *strictMode
	commandVolumes[0] = dsk
	commandTarget = 0

	switch {
	case *fileExtract != "":
		shellProcess("extract " + *fileExtract)
	case *fileCatalog:
		shellProcess("cat ")
	default:
		os.Stderr.WriteString("Additional flag required\n")
		os.Exit(3)
	}
}

// runBatch feeds shell commands from a file, or stdin when src is the
// literal "stdin". The first failing line stops the script.
func runBatch(src string) {

	var data []byte
	var err error

	if src == "stdin" {
		data, err = ioutil.ReadAll(os.Stdin)
	} else {
		data, err = ioutil.ReadFile(src)
	}
	if err != nil {
		os.Stderr.WriteString("Failed to read commands: " + err.Error() + "\n")
		os.Exit(1)
	}

	for i, l := range strings.Split(string(data), "\n") {
		switch shellProcess(l) {
		case -1:
			os.Stderr.WriteString(fmt.Sprintf("Script failed at line %d: %s\n", i+1, l))
			os.Exit(2)
		case shellExit:
			os.Stderr.WriteString("Script terminated\n")
			return
		}
	}
}

// startShell opens the interactive shell, mounting the first selected
// path when one was given.
func startShell(filterpath []string) {

	var dsk *disk.DSKWrapper

	if len(filterpath) > 0 {
		fmt.Printf("Trying to load %s\n", filterpath[0])
		var err error
		dsk, err = disk.NewDSKWrapper(loggy.Get(0), filterpath[0])
		if err != nil {
			fmt.Println("Error: " + err.Error())
			os.Exit(1)
		}
	}

	shellDo(dsk)
}

func main() {

	runtime.GOMAXPROCS(8)

	banner()

	flag.Usage = usage
	flag.Parse()

	applyConfig(loadConfig())

	var filterpath []string
	if *filterPath || *shell {
		for _, v := range flag.Args() {
			filterpath = append(filterpath, filepath.Clean(v))
		}
	}

	loggy.ECHO = *verbose
	if !*verbose {
		loggy.MinLevel = loggy.LevelInfo
	}

	if *withDisk != "" {
		runDiskOp(*withDisk)
		return
	}

	if *shellBatch != "" {
		runBatch(*shellBatch)
		return
	}

	if *shell {
		startShell(filterpath)
		return
	}

	defer func() {
		if fileExtractCounter > 0 {
			os.Stderr.WriteString(fmt.Sprintf("%d files were extracted\n", fileExtractCounter))
		}
	}()

	searches := []struct {
		term string
		run  func(string, []string)
	}{
		{*searchFilename, searchForFilename},
		{*searchSHA, searchForSHA256},
		{*searchTEXT, searchForTEXT},
	}
	for _, s := range searches {
		if s.term != "" {
			s.run(s.term, filterpath)
			return
		}
	}

	if *dir && *dskName == "" && *dskInfo == "" {
		directory(filterpath, *dirFormat)
		return
	}

	reports := []struct {
		when bool
		run  func()
	}{
		{*allFileSubset, func() { allFilesSubsetReport(filterpath) }},
		{*activeBlockSubset, func() { activeBlocksSubsetReport(filterpath) }},
		{*allBlockSubset, func() { allBlocksSubsetReport(filterpath) }},
		{*catDupes, func() { allFilesPartialReport(1.0, filterpath, "DUPLICATE CATALOG REPORT") }},
		{*allFilePartial, func() {
			switch {
			case *minSame > 0:
				allFilesCustomReport(keeperAtLeastNSame, filterpath, fmt.Sprintf("AT LEAST %d FILES MATCH", *minSame))
			case *maxDiff > 0:
				allFilesCustomReport(keeperMaximumNDiff, filterpath, fmt.Sprintf("NO MORE THAN %d FILES DIFFER", *maxDiff))
			default:
				allFilesPartialReport(*similarity, filterpath, "")
			}
		}},
		{*allBlockPartial, func() { allBlocksPartialReport(*similarity, filterpath) }},
		{*activeBlockPartial, func() { activeBlocksPartialReport(*similarity, filterpath) }},
		{*fileDupes, func() { fileDupeReport(filterpath) }},
		{*wholeDupes, func() { wholeDupeReport(filterpath) }},
		{*activeDupes, func() { activeDupeReport(filterpath) }},
	}
	for _, r := range reports {
		if r.when {
			r.run()
			return
		}
	}

	if !exists(*baseName) {
		loggy.Get(0).Logf("Creating path %s", *baseName)
		os.MkdirAll(*baseName, 0755)
	}

	if *dskInfo != "" {
		queryDisk(*dskInfo)
		return
	}

	if *dskName == "" {
		startShell(filterpath)
		return
	}

	if *preCache && (*abPartial || *filePartial || *fileMatch != "") {
		cache = CreateCache(fingerprintGlob, filterpath)
	}

	info, err := os.Stat(*dskName)
	if err != nil {
		loggy.Get(0).Errorf("Error stating file: %s", err.Error())
		os.Exit(2)
	}

	if info.IsDir() {
		walk(*dskName)
		return
	}

	indisk = make(map[disk.DiskFormat]int)
	outdisk = make(map[disk.DiskFormat]int)

	panic.Do(
		func() {
			dsk, err := analyze(0, *dskName)
			if err != nil {
				return
			}
			switch {
			case *abPartial:
				abPartialReport(dsk, *similarity, *reportFile, filterpath)
			case *filePartial:
				filePartialReport(dsk, *similarity, *reportFile, filterpath)
			case *fileMatch != "":
				fileMatchReport(dsk, *fileMatch, filterpath)
			case *dir:
				fmt.Printf("Directory of %s:\n\n", dsk.Filename)
				fmt.Println(dsk.GetDirectory(*dirFormat))
			}
		},
		func(r interface{}) {
			loggy.Get(0).Errorf("Error processing volume: %s", *dskName)
			loggy.Get(0).Errorf(string(debug.Stack()))
		},
	)
}

// queryDisk analyzes a single image and prints what was recovered.
// -dir and -pdf-report hang off this path.
func queryDisk(filename string) {

	dsk, err := analyze(0, filename)
	if err != nil {
		loggy.Get(0).Errorf("Error processing volume: %s", err.Error())
		os.Exit(2)
	}

	fmt.Printf("Format     : %s\n", dsk.FormatID)
	fmt.Printf("Blocks     : %d\n", dsk.Blocks)
	fmt.Printf("Files      : %d\n", len(dsk.Files))
	fmt.Printf("Segments at: %v\n", dsk.SegmentBlocks)
	fmt.Printf("SHA256     : %s\n", dsk.SHA256)
	fmt.Printf("Active     : %s\n", dsk.SHA256Active)
	if dsk.Variant {
		fmt.Printf("Directory recovered away from canonical block %d\n", disk.RT11_CATALOG_BLOCK)
	}

	if *dir {
		fmt.Printf("\nDirectory of %s:\n\n", dsk.Filename)
		fmt.Println(dsk.GetDirectory(*dirFormat))
	}

	if *pdfReport != "" {
		var segs []disk.RT11SegmentHeader
		wrapper, err := disk.NewDSKWrapper(loggy.Get(0), filename)
		if err == nil {
			segs, _ = wrapper.RT11HuntSegments()
			wrapper.Close()
		}
		if err := pdfRecoveryReport(dsk, segs, *pdfReport); err != nil {
			loggy.Get(0).Errorf("Failed to write %s: %s", *pdfReport, err.Error())
			os.Exit(2)
		}
		fmt.Println("Wrote " + *pdfReport)
	}

}
