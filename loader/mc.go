package loader

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/sarchlab/rvsim/timing/pipeline"
)

// ParseMC reads an .mc image: one "address word" pair of hexadecimal numbers
// per line, with optional 0x prefixes and trailing commas. Blank lines and lines starting with
// '#' are skipped, as is anything after the second field. Entries are
// returned in file order; ordering and alignment are checked by the core.
func ParseMC(r io.Reader) ([]pipeline.ImageEntry, error) {
	var entries []pipeline.ImageEntry

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, err := parseMCLine(line)
		if err != nil {
			return nil, ErrSyntax{LineNo: lineNo, Line: line, Err: err}
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading .mc image")
	}

	return entries, nil
}

func parseMCLine(line string) (pipeline.ImageEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return pipeline.ImageEntry{}, ErrFieldCount
	}

	addr, err := parseHex(fields[0], 64)
	if err != nil {
		return pipeline.ImageEntry{}, err
	}

	word, err := parseHex(fields[1], 32)
	if err != nil {
		return pipeline.ImageEntry{}, err
	}

	return pipeline.ImageEntry{Addr: addr, Word: uint32(word)}, nil
}

func parseHex(field string, bits int) (uint64, error) {
	digits := strings.TrimSuffix(field, ",")
	digits = strings.TrimPrefix(strings.TrimPrefix(digits, "0x"), "0X")
	value, err := strconv.ParseUint(digits, 16, bits)
	if err != nil {
		return 0, ErrParseNumber(field)
	}
	return value, nil
}

// LoadMC reads and parses the .mc image at path.
func LoadMC(path string) ([]pipeline.ImageEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening .mc image")
	}
	defer func() { _ = file.Close() }()

	entries, err := ParseMC(file)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return entries, nil
}
