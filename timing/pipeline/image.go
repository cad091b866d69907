package pipeline

// ImageEntry is one (address, word) pair of a program or data image.
type ImageEntry struct {
	Addr uint64
	Word uint32
}

// ProgramImage is the immutable instruction memory of a run. Fetch reads it
// directly; it is never visible to loads and stores.
type ProgramImage struct {
	words map[uint64]uint32
	addrs []uint64
}

// NewProgramImage builds an image from entries in address order. The entries
// are expected to be validated by the caller.
func NewProgramImage(entries []ImageEntry) *ProgramImage {
	img := &ProgramImage{
		words: make(map[uint64]uint32, len(entries)),
		addrs: make([]uint64, 0, len(entries)),
	}
	for _, e := range entries {
		img.words[e.Addr] = e.Word
		img.addrs = append(img.addrs, e.Addr)
	}
	return img
}

// Word returns the instruction word at addr.
func (img *ProgramImage) Word(addr uint64) (uint32, bool) {
	word, ok := img.words[addr]
	return word, ok
}

// Entry returns the lowest address of the image, where execution starts.
func (img *ProgramImage) Entry() uint64 {
	if len(img.addrs) == 0 {
		return 0
	}
	return img.addrs[0]
}
