package efiboot

import (
	"regexp"

	"github.com/LeoCommon/efiboot/pkg/log"
	"github.com/LeoCommon/efiboot/pkg/misc"
	"go.uber.org/zap"
)

var (
	regexNumber = regexp.MustCompile(`[0-9]+`)

	regexBootCurrent = regexp.MustCompile(`BootCurrent: [0-9]*`)
	regexBootNext    = regexp.MustCompile(`BootNext: [0-9]*?\n`)
	regexBootOrder   = regexp.MustCompile(`BootOrder: [0-9, ]*?\n`)
	regexBootEntries = regexp.MustCompile(`Boot[0-9]+.*?\n`)

	// Applied to a single entry line
	regexLineNumber = regexp.MustCompile(`Boot[0-9].*?\*`)
	regexLineName   = regexp.MustCompile(`\* (.*?)\t`)
	regexLinePath   = regexp.MustCompile(`\t(.*)`)
)

// Output is the captured text of one tool invocation.
// Depending on locale and tool version the interesting lines end up on either stream,
// every rule searches stdout first and only falls back to stderr if stdout has no match.
type Output struct {
	Stdout string
	Stderr string
}

func (o Output) find(re *regexp.Regexp) (string, bool) {
	if m := re.FindString(o.Stdout); m != "" {
		return m, true
	}
	if m := re.FindString(o.Stderr); m != "" {
		return m, true
	}
	return "", false
}

func (o Output) findAll(re *regexp.Regexp) []string {
	if m := re.FindAllString(o.Stdout, -1); len(m) > 0 {
		return m
	}
	return re.FindAllString(o.Stderr, -1)
}

// firstNumber returns the first digit run in s or Unknown if there is none
func firstNumber(s string, field string) int {
	digits := regexNumber.FindString(s)
	if digits == "" {
		return Unknown
	}
	return misc.ParseInt(digits, Unknown, field)
}

func allNumbers(s string, field string) []int {
	runs := regexNumber.FindAllString(s, -1)
	out := make([]int, 0, len(runs))
	for _, digits := range runs {
		out = append(out, misc.ParseInt(digits, Unknown, field))
	}
	return out
}

// ParseCurrent extracts BootCurrent, Unknown if the line is missing
func ParseCurrent(out Output) int {
	line, ok := out.find(regexBootCurrent)
	if !ok {
		log.Warn("bootcurrent not found")
		return Unknown
	}

	current := firstNumber(line, "BootCurrent")
	log.Debug("bootcurrent", zap.Int("number", current))
	return current
}

// ParseNext extracts BootNext, pending is true whenever the line exists
func ParseNext(out Output) (next int, pending bool) {
	line, ok := out.find(regexBootNext)
	if !ok {
		log.Warn("bootnext not found")
		return Unknown, false
	}

	next = firstNumber(line, "BootNext")
	if next == Unknown {
		log.Warn("bootnext line without a number", zap.String("line", line))
	}
	return next, true
}

// ParseOrder extracts BootOrder keeping the printed sequence including duplicates
func ParseOrder(out Output) []int {
	line, ok := out.find(regexBootOrder)
	if !ok {
		log.Warn("bootorder not found")
		return []int{}
	}
	return allNumbers(line, "BootOrder")
}

// ParseEntryLine turns one "Boot0001* Name\tPath" line into an entry.
// ok is false if the line carries no usable boot number.
func ParseEntryLine(line string) (entry BootEntry, ok bool) {
	numPart := regexLineNumber.FindString(line)
	if numPart == "" {
		log.Warn("boot entry line without number marker", zap.String("line", line))
		return BootEntry{}, false
	}

	entry.Number = firstNumber(numPart, "Boot")
	if entry.Number == Unknown {
		log.Warn("boot entry number not parsable", zap.String("line", line))
		return BootEntry{}, false
	}

	entry.Name = unmatchedName
	if m := regexLineName.FindStringSubmatch(line); m != nil {
		entry.Name = m[1]
	} else {
		log.Warn("boot entry name not found", zap.String("line", line))
	}

	if m := regexLinePath.FindStringSubmatch(line); m != nil {
		entry.Path = m[1]
	}

	return entry, true
}

// ParseEntries extracts all boot entry lines. If none yields an entry the
// result holds exactly the sentinel entry keyed Unknown.
func ParseEntries(out Output) Entries {
	entries := Entries{}
	for _, line := range out.findAll(regexBootEntries) {
		entry, ok := ParseEntryLine(line)
		if !ok {
			continue
		}
		entries[entry.Number] = entry
	}

	if len(entries) == 0 {
		log.Warn("no boot entries found")
		entries[sentinelEntry.Number] = sentinelEntry
	}

	return entries
}

// ParseBootState applies every efibootmgr rule. The firmware fields are left unset.
func ParseBootState(out Output) BootState {
	state := newBootState()
	state.Current = ParseCurrent(out)
	state.Next, state.HasPendingNext = ParseNext(out)
	state.Order = ParseOrder(out)
	state.Entries = ParseEntries(out)
	return state
}
