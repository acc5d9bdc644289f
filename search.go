package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/paleotronic/rt11m8/disk"
)

// searchHit is the match predicate for a catalog scan.
type searchHit func(f *DiskFile) bool

// searchCatalog walks every fingerprinted catalog under the filter and
// prints the entries the predicate accepts. The -x flag is honored per
// hit.
func searchCatalog(heading string, filter []string, hit searchHit) {

	fd := GetAllFiles(fingerprintGlob, filter)

	if len(filter) > 0 {
		fmt.Printf("Filter: %s\n", filter)
	}

	fmt.Printf("\n\n%s\n\n", heading)

	for diskname, list := range fd {
		for _, f := range list {
			if !hit(f) {
				continue
			}
			fmt.Printf("%32s:\n  %s (%s, %d bytes, sha: %s)\n\n", diskname, f.GetName(), f.Type, f.Size, f.SHA256)
			extractPerFlag(diskname, f)
		}
	}
}

// extractPerFlag applies the -x flag to a scan hit: @ pulls the file,
// # pulls the whole image.
func extractPerFlag(diskname string, f *DiskFile) {
	switch *extract {
	case "@":
		ExtractFile(diskname, f, *adornedCP, false)
	case "#":
		ExtractDisk(diskname)
	}
}

func searchForFilename(filename string, filter []string) {
	want := strings.ToLower(filename)
	searchCatalog(fmt.Sprintf("SEARCH RESULTS FOR '%s'", filename), filter, func(f *DiskFile) bool {
		return strings.Contains(strings.ToLower(f.GetName()), want)
	})
}

func searchForSHA256(sha string, filter []string) {
	searchCatalog(fmt.Sprintf("SEARCH RESULTS FOR SHA256 '%s'", sha), filter, func(f *DiskFile) bool {
		return f.SHA256 == sha
	})
}

func searchForTEXT(text string, filter []string) {
	want := strings.ToLower(text)
	searchCatalog(fmt.Sprintf("SEARCH RESULTS FOR TEXT CONTENT '%s'", text), filter, func(f *DiskFile) bool {
		return strings.Contains(strings.ToLower(string(f.Text)), want)
	})
}

// directory lists every catalog under the filter using the -dir-format
// template.
func directory(filter []string, format string) {

	fd := GetAllFiles(fingerprintGlob, filter)

	fmt.Println()

	for diskname, list := range fd {
		fmt.Printf("CATALOG RESULTS FOR '%s'\n", diskname)

		var out strings.Builder
		for _, file := range list {
			out.WriteString(catalogLine(file, format))
			out.WriteByte('\n')
			extractPerFlag(diskname, file)
		}

		fmt.Println(out.String() + "\n")
	}
}

var fileExtractCounter int

// ExtractFile writes one recovered file under the extract tree, or under
// the working directory when local is set. Text bearing types also land
// as a decoded .ASC sidecar.
func ExtractFile(diskname string, fd *DiskFile, adorned bool, local bool) error {

	name := fd.GetName()
	if adorned {
		name = fd.GetNameAdorned()
	}

	dir := binpath() + "/extract" + diskname
	if local {
		base := filepath.Base(diskname)
		dir = "./" + strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	write := func(name string, data []byte) error {
		target := dir + "/" + name
		if err := ioutil.WriteFile(target, data, 0644); err != nil {
			return err
		}
		os.Stderr.WriteString("Extracted file to " + target + "\n")
		return nil
	}

	if err := write(name, fd.Data); err != nil {
		return err
	}

	if disk.RT11IsTextType(fd.Ext) && len(fd.Text) > 0 {
		if err := write(name+".ASC", fd.Text); err != nil {
			return err
		}
	}

	fileExtractCounter++

	return nil
}

// ExtractDisk copies the source image itself into the extract tree.
func ExtractDisk(diskname string) error {

	dir := binpath() + "/extract" + diskname

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := ioutil.ReadFile(diskname)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(dir+"/"+filepath.Base(diskname), data, 0755)
}
