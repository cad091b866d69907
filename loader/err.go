package loader

import (
	"errors"

	"github.com/sarchlab/rvsim/internal/translate"
)

var f = translate.From

var (
	// ErrFieldCount is returned for .mc lines without an address and a word.
	ErrFieldCount = errors.New(f("expected address and word"))
	// ErrNotELF64 is returned for ELF files that are not 64-bit.
	ErrNotELF64 = errors.New(f("not a 64-bit ELF file"))
	// ErrNotRISCV is returned for ELF files built for another machine.
	ErrNotRISCV = errors.New(f("not a RISC-V ELF file"))
	// ErrEntryNotFirst is returned when the ELF entry point is not the
	// lowest executable address.
	ErrEntryNotFirst = errors.New(f("entry point is not the first code address"))
)

// ErrParseNumber reports a field that is not a hexadecimal number of the
// expected width.
type ErrParseNumber string

func (err ErrParseNumber) Error() string {
	return f("'%v' is not a hexadecimal number", string(err))
}

// ErrSyntax locates a parse error in an .mc file.
type ErrSyntax struct {
	LineNo int
	Line   string
	Err    error
}

func (err ErrSyntax) Error() string {
	return f("line %d '%v' %v", err.LineNo, err.Line, err.Err)
}

func (err ErrSyntax) Unwrap() error {
	return err.Err
}
