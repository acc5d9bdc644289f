package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/paleotronic/rt11m8/disk"
	"github.com/paleotronic/rt11m8/loggy"
)

const MAXVOL = 8

// shellExit from a command handler ends the session.
const shellExit = 999

var commandList map[string]*shellCommand
var commandVolumes [MAXVOL]*disk.DSKWrapper
var commandTarget int = -1

func noMount() bool {
	return commandTarget < 0 || commandVolumes[commandTarget] == nil
}

// mountVolume places the image in the first free slot. Mounting the same
// file twice lands back on the existing slot.
func mountVolume(dsk *disk.DSKWrapper) (int, error) {

	free := -1
	for i, d := range commandVolumes {
		switch {
		case d == nil:
			if free == -1 {
				free = i
			}
		case d.Filename == dsk.Filename:
			return i, nil
		}
	}

	if free == -1 {
		return -1, errors.New("no free slots")
	}

	commandVolumes[free] = dsk
	return free, nil
}

// splitArgs tokenizes a command line. Double quotes group words, and a
// backslash escapes the next character.
func splitArgs(line string) (string, []string) {

	var tokens []string
	var cur strings.Builder
	var quoted, escaped bool

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, ch := range line {
		switch {
		case escaped:
			cur.WriteRune(ch)
			escaped = false
		case ch == '\\' && !quoted:
			escaped = true
		case ch == '"':
			quoted = !quoted
			flush()
		case ch == ' ' && !quoted:
			flush()
		default:
			cur.WriteRune(ch)
		}
	}
	flush()

	if len(tokens) == 0 {
		return "", nil
	}
	return tokens[0], tokens[1:]
}

func getPrompt(t int) string {
	if t < 0 || commandVolumes[t] == nil {
		return "rt11:0:<no mount>> "
	}
	return fmt.Sprintf("rt11:%d:%s> ", t, filepath.Base(commandVolumes[t].Filename))
}

type shellCommand struct {
	Name             string
	Description      string
	MinArgs, MaxArgs int
	Code             func(args []string) int
	NeedsMount       bool
	Context          shellCommandContext
	Text             []string
}

// shellCommandContext tells the completer what a command's arguments are.
type shellCommandContext int

const (
	sccNone shellCommandContext = 1 << iota
	sccLocal
	sccDiskFile
	sccCommand
	sccReportName
)

var reportNames = []string{"ab-dupes", "file-dupes", "whole-dupes", "pdf"}

type shellCompleter struct {
}

// completionContext extracts the command verb and the word being completed
// at pos. The verb only counts once the cursor is past it, so completing
// inside the first word still offers command names. Backslash-escaped
// spaces stay inside the word.
func completionContext(line []rune, pos int) (verb, word string) {

	full := string(line)
	if i := strings.IndexRune(full, ' '); i >= 0 && pos > i {
		verb = full[:i]
	}

	var cur strings.Builder
	escaped := false
	for _, ch := range line[:pos] {
		switch {
		case escaped:
			cur.WriteRune(ch)
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == ' ':
			cur.Reset()
		default:
			cur.WriteRune(ch)
		}
	}
	return verb, cur.String()
}

func (sc *shellCompleter) Do(line []rune, pos int) ([][]rune, int) {

	verb, word := completionContext(line, pos)

	context := sccCommand
	if cmd, ok := commandList[strings.ToLower(verb)]; ok {
		context = cmd.Context
	}

	var names []string

	switch context {
	case sccCommand:
		for name := range commandList {
			names = append(names, name)
		}
	case sccReportName:
		names = reportNames
	case sccDiskFile:
		if noMount() {
			return nil, 0
		}
		files, err := globDisk(commandTarget, "*")
		if err != nil {
			return nil, 0
		}
		for _, f := range files {
			names = append(names, f.GetName())
		}
	case sccLocal:
		matches, err := filepath.Glob(word + "*")
		if err != nil {
			return nil, 0
		}
		names = matches
	}

	var out [][]rune
	for _, n := range names {
		if strings.HasPrefix(n, word) {
			out = append(out, escapeSpaces(n[len(word):]))
		}
	}

	if len(out) == 0 {
		return nil, 0
	}
	return out, len(word)
}

func escapeSpaces(s string) []rune {
	var out []rune
	for _, ch := range s {
		if ch == ' ' {
			out = append(out, '\\')
		}
		out = append(out, ch)
	}
	return out
}

func init() {
	commandList = map[string]*shellCommand{
		"mount": {
			Description: "Mount a disk image",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellMount,
			Context:     sccLocal,
			Text: []string{
				"mount <diskfile>",
				"",
				"Mounts the image and makes its slot current.",
			},
		},
		"unmount": {
			Description: "Unmount a disk image",
			MinArgs:     0,
			MaxArgs:     1,
			Code:        shellUnmount,
			NeedsMount:  true,
			Context:     sccLocal,
			Text: []string{
				"unmount [<slot>]",
				"",
				"Unmounts the given slot, or the current one.",
			},
		},
		"extract": {
			Description: "Extract files from the current disk",
			MinArgs:     1,
			MaxArgs:     -1,
			Code:        shellExtract,
			NeedsMount:  true,
			Context:     sccDiskFile,
			Text: []string{
				"extract <filename|pattern>...",
				"",
				"Extracts every matching recovered file.",
			},
		},
		"extractall": {
			Description: "Extract every file plus the raw image",
			MinArgs:     0,
			MaxArgs:     0,
			Code:        shellExtractAll,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"extractall",
				"",
				"Extracts all recovered files from the current disk,",
				"then drops a copy of the raw image alongside them.",
			},
		},
		"help": {
			Description: "Shows this help",
			MinArgs:     0,
			MaxArgs:     1,
			Code:        shellHelp,
			Context:     sccCommand,
			Text: []string{
				"help [<command>]",
				"",
				"Details for one command, or the full list.",
			},
		},
		"info": {
			Description: "Information about the current disk",
			MinArgs:     -1,
			MaxArgs:     -1,
			Code:        shellInfo,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"info",
				"",
				"Path, format, geometry and backing of the current disk.",
			},
		},
		"analyze": {
			Description: "Process disk using rt11m8 analytics",
			MinArgs:     -1,
			MaxArgs:     -1,
			Code:        shellAnalyze,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"analyze",
				"",
				"Full recovery pass over the current disk with checksums.",
			},
		},
		"segments": {
			Description: "Audit of recovered directory segments",
			MinArgs:     -1,
			MaxArgs:     -1,
			Code:        shellSegments,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"segments",
				"",
				"Hunt for directory segments on the current disk and",
				"show the header fields of every accepted candidate.",
			},
		},
		"dump": {
			Description: "Hex dump of a block",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellDump,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"dump <block>",
				"",
				"Hex dump of a single 512 byte block.",
			},
		},
		"type": {
			Description: "Show a text file",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellType,
			NeedsMount:  true,
			Context:     sccDiskFile,
			Text: []string{
				"type <filename|pattern>",
				"",
				"Print the contents of a text file from the current disk.",
			},
		},
		"quit": {
			Description: "Exit the shell",
			MinArgs:     -1,
			MaxArgs:     -1,
			Code:        shellQuit,
			Context:     sccNone,
		},
		"cat": {
			Description: "Catalog of the current disk",
			MinArgs:     0,
			MaxArgs:     1,
			Code:        shellCat,
			NeedsMount:  true,
			Context:     sccNone,
			Text: []string{
				"cat [<pattern>]",
				"",
				"List files on the current disk. Wildcards work.",
			},
		},
		"dir": {
			Description: "Formatted catalog of ingested disks",
			MinArgs:     0,
			MaxArgs:     999,
			Code:        shellDir,
			Context:     sccLocal,
			Text: []string{
				"dir [<pathfilter>...]",
				"",
				"Formatted catalog of fingerprinted disks in the datastore.",
			},
		},
		"ls": {
			Description: "List local files",
			MinArgs:     0,
			MaxArgs:     999,
			Code:        shellListFiles,
			Context:     sccLocal,
			Text: []string{
				"ls [<pattern>...]",
				"",
				"List files in the local filesystem.",
			},
		},
		"cd": {
			Description: "Change local path",
			MinArgs:     0,
			MaxArgs:     1,
			Code:        shellCd,
			Context:     sccLocal,
			Text: []string{
				"cd <path>",
				"",
				"Change the local working directory.",
			},
		},
		"disks": {
			Description: "List mounted volumes",
			MinArgs:     0,
			MaxArgs:     0,
			Code:        shellDisks,
			Context:     sccNone,
			Text: []string{
				"disks",
				"",
				"Slot numbers and paths of every mounted volume.",
			},
		},
		"target": {
			Description: "Select mounted volume as default",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellTarget,
			Context:     sccNone,
			Text: []string{
				"target <slot>",
				"",
				"Make the given slot current for disk commands.",
			},
		},
		"dupes": {
			Description: "Find datastore copies of the current disk",
			MinArgs:     0,
			MaxArgs:     999,
			Code:        shellDupes,
			NeedsMount:  true,
			Context:     sccLocal,
			Text: []string{
				"dupes [<pathfilter>...]",
				"",
				"Checks the fingerprint datastore for byte identical copies,",
				"images with the same active data, and images whose blocks",
				"contain or are contained by the current disk.",
			},
		},
		"report": {
			Description: "Run a report",
			MinArgs:     1,
			MaxArgs:     999,
			Code:        shellReport,
			Context:     sccReportName,
			Text: []string{
				"report <name> [<path>]",
				"",
				"Reports:",
				"ab-dupes       Active block dupes report (-ab-dupes at command line)",
				"file-dupes     File dupes report (-file-dupes at command line)",
				"whole-dupes    Whole disk dupes report (-whole-dupes at command line)",
				"pdf <file>     Recovery report PDF for the current disk",
			},
		},
		"search": {
			Description: "Run a search",
			MinArgs:     2,
			MaxArgs:     999,
			Code:        shellSearch,
			Context:     sccNone,
			Text: []string{
				"search <type> <term> [<path>...]",
				"",
				"Searches:",
				"filename       Search by filename",
				"text           Search for files containing text",
				"hash           Search for files with hash",
			},
		},
	}

	for name, cmd := range commandList {
		cmd.Name = name
	}
}

func shellProcess(line string) int {

	verb, args := splitArgs(strings.TrimSpace(line))
	if verb == "" {
		return 0
	}

	verb = strings.ToLower(verb)
	command, ok := commandList[verb]
	if !ok {
		os.Stderr.WriteString("Unrecognized command: " + verb + "\n")
		return -1
	}

	if command.MinArgs != -1 && len(args) < command.MinArgs {
		os.Stderr.WriteString(fmt.Sprintf("%s expects at least %d arguments\n", verb, command.MinArgs))
		return -1
	}
	if command.MaxArgs != -1 && len(args) > command.MaxArgs {
		os.Stderr.WriteString(fmt.Sprintf("%s expects at most %d arguments\n", verb, command.MaxArgs))
		return -1
	}
	if command.NeedsMount && noMount() {
		os.Stderr.WriteString(verb + " only works on mounted disks\n")
		return -1
	}

	fmt.Println()
	r := command.Code(args)
	fmt.Println()
	return r
}

func shellDo(dsk *disk.DSKWrapper) {

	if dsk != nil {
		if slot, err := mountVolume(dsk); err == nil {
			commandTarget = slot
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:       getPrompt(commandTarget),
		HistoryFile:  binpath() + "/.shell_history",
		AutoComplete: &shellCompleter{},
	})
	if err != nil {
		os.Exit(2)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			return
		}
		if shellProcess(line) == shellExit {
			return
		}
		rl.SetPrompt(getPrompt(commandTarget))
	}
}

func shellMount(args []string) int {

	dsk, err := disk.NewDSKWrapper(loggy.Get(0), args[0])
	if err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return -1
	}

	slot, err := mountVolume(dsk)
	if err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return -1
	}

	commandTarget = slot
	os.Stderr.WriteString(fmt.Sprintf("Mounted disk in slot %d\n", slot))
	return 0
}

func shellUnmount(args []string) int {

	if len(args) > 0 {
		if shellTarget(args) == -1 {
			return -1
		}
	}

	if commandVolumes[commandTarget] != nil {
		commandVolumes[commandTarget].Close()
		commandVolumes[commandTarget] = nil
		os.Stderr.WriteString("Unmounted volume\n")
	}

	return 0
}

func shellHelp(args []string) int {

	if len(args) > 0 {
		name := strings.ToLower(args[0])
		details, ok := commandList[name]
		if !ok || details.Text == nil {
			os.Stderr.WriteString("No help available for " + name + "\n")
			return -1
		}
		for _, l := range details.Text {
			fmt.Println(l)
		}
		return 0
	}

	keys := make([]string, 0, len(commandList))
	for k := range commandList {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-10s %s\n", k, commandList[k].Description)
	}
	return 0
}

func shellInfo(args []string) int {

	dsk := commandVolumes[commandTarget]
	fullpath, _ := filepath.Abs(dsk.Filename)

	backing := "resident"
	if dsk.Mapped() {
		backing = "mapped"
	}

	fmt.Printf("Disk path : %s\n", fullpath)
	fmt.Printf("Disk type : %s\n", dsk.Format.String())
	fmt.Printf("Blocks    : %d\n", dsk.Blocks())
	fmt.Printf("Size      : %d bytes\n", dsk.Len())
	fmt.Printf("Backing   : %s\n", backing)

	return 0
}

func shellQuit(args []string) int {
	return shellExit
}

func shellCat(args []string) int {

	if commandVolumes[commandTarget].Format.ID != disk.DF_RT11 {
		os.Stderr.WriteString("No catalog on " + commandVolumes[commandTarget].Format.String() + " volumes\n")
		return -1
	}

	fullpath, _ := filepath.Abs(commandVolumes[commandTarget].Filename)

	info, err := analyze(0, fullpath)
	if err != nil {
		return -1
	}

	pattern := "*"
	if len(args) > 0 {
		pattern = args[0]
	}

	files, err := globDisk(commandTarget, pattern)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		return -1
	}

	fmt.Printf("Catalog of %s\n\n", filepath.Base(fullpath))

	fmt.Printf("%-12s  %6s  %2s  %-18s  %-11s  %5s  %s\n", "NAME", "BLOCKS", "RO", "TYPE", "KIND", "START", "DATE")
	for _, f := range files {
		locked := " "
		if f.Locked {
			locked = "Y"
		}
		date := "<no date>"
		if f.HasDate {
			date = f.Created.Format("02-Jan-2006")
		}
		blocks := (f.Size + disk.RT11_BLOCK_SIZE - 1) / disk.RT11_BLOCK_SIZE
		fmt.Printf("%-12s  %6d  %2s  %-18s  %-11s  @%04d  %s\n", f.GetName(), blocks, locked, f.Type, f.Kind, f.StartBlock, date)
	}

	free := 0
	used := 0
	for _, v := range info.Bitmap {
		if v {
			used++
		} else {
			free++
		}
	}

	fmt.Printf("\nUSED: %-20d FREE: %-20d\n", used, free)

	return 0
}

func shellDir(args []string) int {
	directory(args, *dirFormat)
	return 0
}

func shellCd(args []string) int {

	if len(args) > 0 {
		if err := os.Chdir(args[0]); err != nil {
			os.Stderr.WriteString("Change directory failed: " + err.Error() + "\n")
			return -1
		}
	}

	wd, _ := os.Getwd()
	os.Stderr.WriteString("Working directory is now " + wd + "\n")
	return 0
}

func shellListFiles(args []string) int {

	bs := disk.RT11_BLOCK_SIZE

	if len(args) == 0 {
		wd, _ := os.Getwd()
		args = append(args, wd+"/*.*")
	}

	for _, a := range args {

		files, err := filepath.Glob(a)
		if err != nil {
			os.Stderr.WriteString("Error reading path " + a + ": " + err.Error() + "\n")
			continue
		}

		fmt.Printf("%6s  %2s  %-23s  %s\n", "BLOCKS", "RO", "KIND", "NAME")
		for _, f := range files {
			fi, err := os.Stat(f)
			if err != nil {
				continue
			}
			locked := " "
			if fi.Mode().Perm()&0100 != 0100 {
				locked = "Y"
			}
			fmt.Printf("%6d  %2s  %-23s  %s\n", (int(fi.Size())/bs)+1, locked, "Local file", fi.Name())
		}
	}

	return 0
}

func shellAnalyze(args []string) int {

	fullpath, _ := filepath.Abs(commandVolumes[commandTarget].Filename)

	info, err := analyze(0, fullpath)
	if err != nil {
		return -1
	}

	fmt.Printf("Format     : %s\n", info.FormatID)
	fmt.Printf("Blocks     : %d\n", info.Blocks)
	fmt.Printf("Files      : %d\n", len(info.Files))
	fmt.Printf("Segments at: %v\n", info.SegmentBlocks)
	fmt.Printf("SHA256     : %s\n", info.SHA256)
	fmt.Printf("Active     : %s\n", info.SHA256Active)
	if info.Variant {
		fmt.Printf("Directory recovered away from canonical block %d\n", disk.RT11_CATALOG_BLOCK)
	}

	return 0
}

func shellSegments(args []string) int {

	segs, err := commandVolumes[commandTarget].RT11HuntSegments()
	if err != nil {
		os.Stderr.WriteString("Segment hunt failed: " + err.Error() + "\n")
		return -1
	}

	fmt.Printf("%d directory segment(s) recovered\n\n", len(segs))

	fmt.Printf("%3s  %6s  %6s  %5s  %8s  %6s  %6s\n", "#", "BLOCK", "AVAIL", "NEXT", "HIGHEST", "EXTRA", "START")
	variant := false
	for i, s := range segs {
		fmt.Printf("%3d  %6d  %6d  %5d  %8d  %6d  %6d\n", i, s.Block, s.SegmentsAvailable, s.NextSegment, s.HighestSegment, s.ExtraBytes, s.StartBlock)
		if s.Block != disk.RT11_CATALOG_BLOCK {
			variant = true
		}
	}

	if variant {
		fmt.Printf("\nDirectory recovered away from canonical block %d\n", disk.RT11_CATALOG_BLOCK)
	}

	return 0
}

func shellDump(args []string) int {

	block, err := strconv.Atoi(args[0])
	if err != nil {
		os.Stderr.WriteString("Invalid block number: " + args[0] + "\n")
		return -1
	}

	data, err := commandVolumes[commandTarget].GetBlock(block)
	if err != nil {
		os.Stderr.WriteString("Read failed: " + err.Error() + "\n")
		return -1
	}

	for i := 0; i < len(data); i += 16 {
		hexs := ""
		ascii := ""
		for j := i; j < i+16 && j < len(data); j++ {
			hexs += fmt.Sprintf("%02x ", data[j])
			if data[j] >= 32 && data[j] < 127 {
				ascii += string(rune(data[j]))
			} else {
				ascii += "."
			}
		}
		fmt.Printf("%06x: %-48s %s\n", block*disk.RT11_BLOCK_SIZE+i, hexs, ascii)
	}

	return 0
}

func shellType(args []string) int {

	// Catalog access stays format agnostic here; unidentified volumes fail
	// with the no-directory error rather than a format check.
	var vol disk.DiskImage = commandVolumes[commandTarget]

	cat, err := vol.GetCatalog(args[0])
	if err != nil {
		os.Stderr.WriteString("Catalog failed: " + err.Error() + "\n")
		return -1
	}

	if len(cat) == 0 {
		os.Stderr.WriteString("No match for " + args[0] + "\n")
		return -1
	}

	for _, fd := range cat {

		if !disk.RT11IsTextType(fd.Type()) {
			os.Stderr.WriteString(fd.Name() + " is not a text type, try dump\n")
			continue
		}

		data, err := vol.ReadFile(fd)
		if err != nil {
			os.Stderr.WriteString("Read failed: " + err.Error() + "\n")
			return -1
		}

		fmt.Println(string(disk.RT11NormalizeText(data)))
	}

	return 0
}

func shellExtract(args []string) int {

	fullpath, _ := filepath.Abs(commandVolumes[commandTarget].Filename)

	extracted := 0
	for _, pattern := range args {

		files, err := globDisk(commandTarget, pattern)
		if err != nil {
			os.Stderr.WriteString(err.Error() + "\n")
			return -1
		}
		if len(files) == 0 {
			os.Stderr.WriteString("No match for " + pattern + "\n")
			continue
		}

		for _, f := range files {
			if err := ExtractFile(fullpath, f, true, true); err != nil {
				os.Stderr.WriteString("Extract failed: " + err.Error() + "\n")
				return -1
			}
			fmt.Println("Extracted " + f.GetName())
			extracted++
		}
	}

	fmt.Printf("Extracted %d file(s)\n", extracted)
	return 0
}

func shellExtractAll(args []string) int {

	fullpath, _ := filepath.Abs(commandVolumes[commandTarget].Filename)

	files, err := globDisk(commandTarget, "*")
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		return -1
	}

	for _, f := range files {
		if err := ExtractFile(fullpath, f, true, true); err != nil {
			os.Stderr.WriteString("Extract failed: " + err.Error() + "\n")
			return -1
		}
	}

	if err := ExtractDisk(fullpath); err != nil {
		os.Stderr.WriteString("Image copy failed: " + err.Error() + "\n")
		return -1
	}

	fmt.Printf("Extracted %d file(s)\n", len(files))
	return 0
}

func shellDisks(args []string) int {

	fmt.Println("Mounted Volumes")
	for i, d := range commandVolumes {
		if d != nil {
			fmt.Printf("%d:%s\n", i, d.Filename)
		}
	}

	return 0
}

func shellTarget(args []string) int {

	slot, err := strconv.Atoi(args[0])
	if err != nil || slot < 0 || slot >= MAXVOL {
		os.Stderr.WriteString(fmt.Sprintf("Valid slots are %d to %d.\n", 0, MAXVOL-1))
		return -1
	}

	if commandVolumes[slot] == nil {
		os.Stderr.WriteString(fmt.Sprintf("Nothing mounted in slot %d (use disks to see mounts)\n", slot))
		return -1
	}

	commandTarget = slot
	return 0
}

func shellDupes(args []string) int {

	fullpath, _ := filepath.Abs(commandVolumes[commandTarget].Filename)

	info, err := analyze(0, fullpath)
	if err != nil {
		return -1
	}

	printDisks := func(label string, disks []*Disk) {
		fmt.Printf("%s: %d\n", label, len(disks))
		for _, m := range disks {
			fmt.Printf("  %s\n", m.FullPath)
		}
	}

	printDisks("Byte identical", info.GetExactBinaryMatches(args))
	printDisks("Same active data", info.GetActiveBinaryMatches(args))

	superset, subset, identical := info.GetPartialMatches(args)
	printDisks("Block for block identical", identical)
	printDisks("Containing this disk", superset)
	printDisks("Contained by this disk", subset)

	return 0
}

// globDisk matches the pattern against the recovered catalog of the
// mounted slot. ? and * work the usual way, case does not matter.
func globDisk(slot int, pattern string) ([]*DiskFile, error) {

	if slot < 0 || commandVolumes[slot] == nil {
		return nil, fmt.Errorf("nothing mounted in slot %d", slot)
	}

	fullpath, _ := filepath.Abs(commandVolumes[slot].Filename)

	dsk, err := analyze(0, fullpath)
	if err != nil {
		return nil, fmt.Errorf("problem reading volume: %v", err)
	}

	r := strings.NewReplacer(".", "[.]", "?", ".", "*", ".*").Replace(pattern)
	rx, err := regexp.Compile("(?i)^" + r + "$")
	if err != nil {
		return nil, fmt.Errorf("bad pattern %s", pattern)
	}

	var files []*DiskFile
	for _, f := range dsk.Files {
		if rx.MatchString(f.GetName()) {
			files = append(files, f)
		}
	}

	return files, nil
}

func shellReport(args []string) int {

	switch args[0] {
	case "ab-dupes":
		activeDupeReport(args[1:])
	case "file-dupes":
		fileDupeReport(args[1:])
	case "whole-dupes":
		wholeDupeReport(args[1:])
	case "pdf":
		if noMount() {
			os.Stderr.WriteString("pdf report needs a mounted disk\n")
			return -1
		}
		out := "recovery.pdf"
		if len(args) > 1 {
			out = args[1]
		}
		fullpath, _ := filepath.Abs(commandVolumes[commandTarget].Filename)
		info, err := analyze(0, fullpath)
		if err != nil {
			return -1
		}
		segs, _ := commandVolumes[commandTarget].RT11HuntSegments()
		if err := pdfRecoveryReport(info, segs, out); err != nil {
			os.Stderr.WriteString("Failed to write report: " + err.Error() + "\n")
			return -1
		}
		fmt.Println("Wrote " + out)
	default:
		os.Stderr.WriteString("Unknown report (try " + strings.Join(reportNames, ", ") + ")\n")
		return -1
	}

	return 0
}

func shellSearch(args []string) int {

	switch args[0] {
	case "text":
		searchForTEXT(args[1], args[2:])
	case "filename":
		searchForFilename(args[1], args[2:])
	case "hash":
		searchForSHA256(args[1], args[2:])
	default:
		os.Stderr.WriteString("Unknown search type: " + args[0] + "\n")
		return -1
	}

	return 0
}
