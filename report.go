package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/paleotronic/rt11m8/loggy"
)

type DuplicateSource struct {
	Fullpath    string
	Filename    string
	GSHA        string
	fingerprint string
}

type DuplicateFileCollection struct {
	data map[string][]DuplicateSource
}

type DuplicateWholeDiskCollection struct {
	data map[string][]DuplicateSource
}

type DuplicateActiveBlockDiskCollection struct {
	data map[string][]DuplicateSource
}

func (dfc *DuplicateFileCollection) Add(checksum, fullpath, filename, fgp string) {
	if dfc.data == nil {
		dfc.data = make(map[string][]DuplicateSource)
	}
	dfc.data[checksum] = append(dfc.data[checksum], DuplicateSource{Fullpath: fullpath, Filename: filename, fingerprint: fgp})
}

func (dfc *DuplicateWholeDiskCollection) Add(checksum, fullpath, fgp string) {
	if dfc.data == nil {
		dfc.data = make(map[string][]DuplicateSource)
	}
	dfc.data[checksum] = append(dfc.data[checksum], DuplicateSource{Fullpath: fullpath, fingerprint: fgp})
}

func (dfc *DuplicateActiveBlockDiskCollection) Add(checksum, achecksum, fullpath, fgp string) {
	if dfc.data == nil {
		dfc.data = make(map[string][]DuplicateSource)
	}
	dfc.data[achecksum] = append(dfc.data[achecksum], DuplicateSource{Fullpath: fullpath, GSHA: checksum, fingerprint: fgp})
}

func AggregateDuplicateFiles(d *Disk, collection interface{}) {
	for _, f := range d.Files {
		collection.(*DuplicateFileCollection).Add(f.SHA256, d.FullPath, f.GetName(), d.source)
	}
}

func AggregateDuplicateWholeDisks(d *Disk, collection interface{}) {
	collection.(*DuplicateWholeDiskCollection).Add(d.SHA256, d.FullPath, d.source)
}

func AggregateDuplicateActiveBlockDisks(d *Disk, collection interface{}) {
	collection.(*DuplicateActiveBlockDiskCollection).Add(d.SHA256, d.SHA256Active, d.FullPath, d.source)
}

// reportWriter opens the report target, or hands back the fallback stream
// when no filename was given. Call done when finished writing.
func reportWriter(filename string, fallback io.Writer) (w io.Writer, done func(), err error) {

	if filename == "" {
		return fallback, func() {}, nil
	}

	f, err := os.Create(filename)
	if err != nil {
		loggy.Get(0).Errorf("Cannot create report file %s: %v", filename, err)
		return nil, nil, err
	}

	return f, func() {
		f.Close()
		fmt.Println("\nWrote " + filename + "\n")
	}, nil
}

func (dfc *DuplicateFileCollection) Report(filename string) {

	w, done, err := reportWriter(filename, os.Stdout)
	if err != nil {
		return
	}
	defer done()

	for sha256, list := range dfc.data {
		if len(list) < 2 {
			continue
		}
		fmt.Fprintf(w, "\nChecksum %s duplicated %d times:\n", sha256, len(list))
		for i, v := range list {
			fmt.Fprintf(w, " %d) %s >> %s\n", i, v.Fullpath, v.Filename)
		}
	}
}

func writeDupeSummary(w io.Writer, disksWithDupes, extras int) {
	fmt.Fprintf(w, "\nSUMMARY\n=======\n")
	fmt.Fprintf(w, "Total disks which have duplicates: %d\n", disksWithDupes)
	fmt.Fprintf(w, "Total redundant copies found     : %d\n", extras)
}

func (dfc *DuplicateWholeDiskCollection) Report(filename string) {

	w, done, err := reportWriter(filename, os.Stdout)
	if err != nil {
		return
	}
	defer done()

	var disksWithDupes, extras int

	for sha256, list := range dfc.data {
		if len(list) < 2 {
			continue
		}

		disksWithDupes++
		original, dupes := list[0], list[1:]

		fmt.Fprintf(w, "\nVolume %s has %d duplicate(s):\n", original.Fullpath, len(dupes))
		for _, v := range dupes {
			fmt.Fprintf(w, " %s (sha256: %s)\n", v.Fullpath, sha256)
			fmt.Fprintf(w, "   fingerprint: %s\n", v.fingerprint)
			extras++
		}
	}

	writeDupeSummary(w, disksWithDupes, extras)
}

func (dfc *DuplicateActiveBlockDiskCollection) Report(filename string) {

	w, done, err := reportWriter(filename, os.Stdout)
	if err != nil {
		return
	}
	defer done()

	var disksWithDupes, extras int

	for sha256, list := range dfc.data {
		if len(list) < 2 {
			continue
		}

		// Same active data everywhere, and at least one image differs in
		// its full checksum. All-identical groups belong to the whole
		// disk report instead.
		identical := true
		for _, v := range list[1:] {
			if v.GSHA != list[0].GSHA {
				identical = false
				break
			}
		}
		if identical {
			continue
		}

		disksWithDupes++
		original, dupes := list[0], list[1:]

		fmt.Fprintf(w, "\n--------------------------------------\n")
		fmt.Fprintf(w, "Volume       : %s\n", original.Fullpath)
		fmt.Fprintf(w, "Active SHA256: %s\n", sha256)
		fmt.Fprintf(w, "Global SHA256: %s\n", original.GSHA)
		fmt.Fprintf(w, "# Duplicates : %d\n", len(dupes))
		for i, v := range dupes {
			fmt.Fprintf(w, "\n Duplicate #%d\n", i+1)
			fmt.Fprintf(w, " = Volume       : %s\n", v.Fullpath)
			fmt.Fprintf(w, " = Active SHA256: %s\n", sha256)
			fmt.Fprintf(w, " = Global SHA256: %s\n", v.GSHA)
			extras++
		}
		fmt.Fprintln(w)
	}

	writeDupeSummary(w, disksWithDupes, extras)
}

func abPartialReport(d *Disk, t float64, filename string, pathfilter []string) {

	matches := d.GetPartialMatchesWithThreshold(t, pathfilter)

	w, done, err := reportWriter(filename, os.Stdout)
	if err != nil {
		return
	}
	defer done()

	fmt.Fprintf(w, "PARTIAL ACTIVE BLOCK MATCH REPORT FOR %s (Above %.2f%%)\n\n", d.Filename, 100*t)

	sort.Sort(sort.Reverse(ByMatchFactor(matches)))

	fmt.Fprintf(w, "%d matches found\n\n", len(matches))
	for _, v := range matches {
		fmt.Fprintf(w, "%.2f%%\t%s\n", v.MatchFactor*100, v.FullPath)
	}
}

func filePartialReport(d *Disk, t float64, filename string, pathfilter []string) {

	matches := d.GetPartialFileMatchesWithThreshold(t, pathfilter)

	w, done, err := reportWriter(filename, os.Stdout)
	if err != nil {
		return
	}
	defer done()

	fmt.Fprintf(w, "PARTIAL FILE MATCH REPORT FOR %s (Above %.2f%%)\n\n", d.Filename, 100*t)

	sort.Sort(sort.Reverse(ByMatchFactor(matches)))

	fmt.Fprintf(w, "%d matches found\n\n", len(matches))
	for _, v := range matches {
		fmt.Fprintf(w, "%.2f%%\t%s (%d missing, %d extras)\n", v.MatchFactor*100, v.FullPath, len(v.MissingFiles), len(v.ExtraFiles))
		for f1, f2 := range v.MatchFiles {
			fmt.Fprintf(w, "\t == %s -> %s\n", f1.GetName(), f2.GetName())
		}
		for _, f := range v.MissingFiles {
			fmt.Fprintf(w, "\t -- %s\n", f.GetName())
		}
		for _, f := range v.ExtraFiles {
			fmt.Fprintf(w, "\t ++ %s\n", f.GetName())
		}
	}
}

func fileMatchReport(d *Disk, filename string, pathfilter []string) {

	matches := d.GetFileMatches(filename, pathfilter)

	w, done, err := reportWriter(*reportFile, os.Stdout)
	if err != nil {
		return
	}
	defer done()

	fmt.Fprintf(w, "PARTIAL FILE MATCH REPORT FOR %s (File: %s)\n\n", d.Filename, filename)

	fmt.Fprintf(w, "%d matches found\n\n", len(matches))
	for i, v := range matches {
		fmt.Fprintf(w, "%d)\t%s\n", i, v.FullPath)
		for f1, f2 := range v.MatchFiles {
			fmt.Fprintf(w, "\t == %s -> %s\n", f1.GetName(), f2.GetName())
		}
	}
}

func fileDupeReport(filter []string) {

	dfc := &DuplicateFileCollection{}
	Aggregate(AggregateDuplicateFiles, dfc, filter)

	fmt.Println("DUPLICATE FILE REPORT")
	fmt.Println()

	dfc.Report(*reportFile)
}

func wholeDupeReport(filter []string) {

	dfc := &DuplicateWholeDiskCollection{}
	Aggregate(AggregateDuplicateWholeDisks, dfc, filter)

	fmt.Println("DUPLICATE WHOLE DISK REPORT")
	fmt.Println()

	dfc.Report(*reportFile)
}

func activeDupeReport(filter []string) {

	dfc := &DuplicateActiveBlockDiskCollection{}
	Aggregate(AggregateDuplicateActiveBlockDisks, dfc, filter)

	fmt.Println("DUPLICATE ACTIVE BLOCKS DISK REPORT")
	fmt.Println()

	dfc.Report(*reportFile)
}

// printFileOverlaps renders one section per reference disk, with the
// matched, missing and extra files for every kept counterpart.
func printFileOverlaps(matches map[string]*FileOverlapRecord, describe func(other string, v *FileOverlapRecord) string) {

	fmt.Printf("%d matches found\n\n", len(matches))

	for volume, v := range matches {
		fmt.Printf("Disk: %s\n", volume)

		for other := range v.percent {
			fmt.Printf("\n  :: %s\n", describe(other, v))
			for f1, f2 := range v.files[other] {
				fmt.Printf("     == %s -> %s\n", f1.GetName(), f2.GetName())
			}
			for _, f := range v.missing[other] {
				fmt.Printf("     -- %s\n", f.GetName())
			}
			for _, f := range v.extras[other] {
				fmt.Printf("     ++ %s\n", f.GetName())
			}
			fmt.Println()
		}

		fmt.Println()
	}

	fmt.Println()
}

func printBlockOverlaps(matches map[string]*BlockOverlapRecord, describe func(other string, v *BlockOverlapRecord) string) {

	fmt.Printf("%d matches found\n\n", len(matches))

	for volume, v := range matches {
		fmt.Printf("Disk: %s\n", volume)

		for other := range v.percent {
			fmt.Printf("\n  :: %s\n", describe(other, v))
			fmt.Printf("     == %d Blocks matched\n", len(v.same[other]))
			if n := len(v.missing[other]); n > 0 {
				fmt.Printf("     -- %d Blocks missing\n", n)
			}
			if n := len(v.extras[other]); n > 0 {
				fmt.Printf("     ++ %d Blocks extra\n", n)
			}
			fmt.Println()
		}

		fmt.Println()
	}

	fmt.Println()
}

func allFilesPartialReport(t float64, filter []string, oheading string) {

	matches := CollectFilesOverlapsAboveThreshold(t, filter)

	if *csvOut {
		dumpFileOverlapCSV(matches, *reportFile)
		return
	}

	if oheading == "" {
		oheading = fmt.Sprintf("PARTIAL ALL FILE MATCH REPORT (Above %.2f%%)", 100*t)
	}
	fmt.Println(oheading + "\n")

	printFileOverlaps(matches, func(other string, v *FileOverlapRecord) string {
		return fmt.Sprintf("%.2f%% Match to %s", 100*v.percent[other], other)
	})
}

func allFilesCustomReport(keep func(d1, d2 string, v *FileOverlapRecord) bool, filter []string, oheading string) {

	matches := CollectFilesOverlapsCustom(keep, filter)

	if *csvOut {
		dumpFileOverlapCSV(matches, *reportFile)
		return
	}

	fmt.Println(oheading + "\n")

	printFileOverlaps(matches, func(other string, v *FileOverlapRecord) string {
		return fmt.Sprintf("%.2f%% Match to %s", 100*v.percent[other], other)
	})
}

func allFilesSubsetReport(filter []string) {

	matches := CollectFileSubsets(filter)

	if *csvOut {
		dumpFileOverlapCSV(matches, *reportFile)
		return
	}

	fmt.Printf("SUBSET DISK FILE MATCH REPORT\n\n")

	printFileOverlaps(matches, func(other string, v *FileOverlapRecord) string {
		return "Is a file subset of " + other
	})
}

func blocksPartialReport(t float64, filter []string, heading string, ff blockLoader) {

	matches := CollectBlockOverlapsAboveThreshold(t, filter, ff)

	if *csvOut {
		dumpBlockOverlapCSV(matches, *reportFile)
		return
	}

	fmt.Printf("%s (Above %.2f%%)\n\n", heading, 100*t)

	printBlockOverlaps(matches, func(other string, v *BlockOverlapRecord) string {
		return fmt.Sprintf("%.2f%% Match to %s", 100*v.percent[other], other)
	})
}

func allBlocksPartialReport(t float64, filter []string) {
	blocksPartialReport(t, filter, "NON-ZERO BLOCK MATCH REPORT", GetAllDiskBlocks)
}

func activeBlocksPartialReport(t float64, filter []string) {
	blocksPartialReport(t, filter, "PARTIAL ACTIVE BLOCK MATCH REPORT", GetActiveDiskBlocks)
}

func blocksSubsetReport(filter []string, heading, basis string, ff blockLoader) {

	matches := CollectBlockSubsets(filter, ff)

	if *csvOut {
		dumpBlockOverlapCSV(matches, *reportFile)
		return
	}

	fmt.Printf("%s\n\n", heading)

	printBlockOverlaps(matches, func(other string, v *BlockOverlapRecord) string {
		return fmt.Sprintf("Is a subset (based on %s) of %s", basis, other)
	})
}

func activeBlocksSubsetReport(filter []string) {
	blocksSubsetReport(filter, "ACTIVE BLOCK SUBSET MATCH REPORT", "active blocks", GetActiveDiskBlocks)
}

func allBlocksSubsetReport(filter []string) {
	blocksSubsetReport(filter, "NON-ZERO BLOCK SUBSET MATCH REPORT", "non-zero blocks", GetAllDiskBlocks)
}

func dumpFileOverlapCSV(matches map[string]*FileOverlapRecord, filename string) {

	w, done, err := reportWriter(filename, os.Stderr)
	if err != nil {
		return
	}
	defer done()

	cw := csv.NewWriter(w)
	defer cw.Flush()

	cw.Write([]string{"MATCH", "DISK1", "FILENAME1", "DISK2", "FILENAME2", "EXISTS"})
	for disk1, v := range matches {
		for disk2, match := range v.percent {
			pc := fmt.Sprintf("%.2f", match)
			for f1, f2 := range v.files[disk2] {
				cw.Write([]string{pc, disk1, f1.GetName(), disk2, f2.GetName(), "Y"})
			}
			for _, f := range v.missing[disk2] {
				cw.Write([]string{pc, disk1, f.GetName(), disk2, "", "N"})
			}
			for _, f := range v.extras[disk2] {
				cw.Write([]string{pc, disk1, "", disk2, f.GetName(), "N"})
			}
		}
	}
}

func dumpBlockOverlapCSV(matches map[string]*BlockOverlapRecord, filename string) {

	w, done, err := reportWriter(filename, os.Stderr)
	if err != nil {
		return
	}
	defer done()

	cw := csv.NewWriter(w)
	defer cw.Flush()

	cw.Write([]string{"MATCH", "DISK1", "DISK2", "SAME", "MISSING", "EXTRA"})
	for disk1, v := range matches {
		for disk2, match := range v.percent {
			cw.Write([]string{
				fmt.Sprintf("%.2f", match),
				disk1,
				disk2,
				fmt.Sprintf("%d", len(v.same[disk2])),
				fmt.Sprintf("%d", len(v.missing[disk2])),
				fmt.Sprintf("%d", len(v.extras[disk2])),
			})
		}
	}
}

func keeperAtLeastNSame(d1, d2 string, v *FileOverlapRecord) bool {
	return len(v.files[d2]) >= *minSame
}

func keeperMaximumNDiff(d1, d2 string, v *FileOverlapRecord) bool {
	return len(v.files[d2]) > 0 && (len(v.missing[d2])+len(v.extras[d2])) <= *maxDiff
}
