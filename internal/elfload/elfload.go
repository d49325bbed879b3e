// Package elfload maps an ELF executable into a fresh address space and
// builds the initial user stack execve(2) hands control to: argv and envp
// strings, the auxv vector, the pointer tables, and argc, 16-byte aligned
// at the deepest element. The loader needs only random access to program
// headers and segment bytes, so it reads through an io.ReaderAt.
package elfload

import (
	"debug/elf"
	"errors"
	"io"

	"rvcore/internal/abi"
	"rvcore/internal/addr"
	"rvcore/internal/pagetable"
	"rvcore/internal/vmm"
)

// Image is a parsed, mapped ELF executable ready for BuildStack.
type Image struct {
	Entry     addr.VA
	PhdrVA    addr.VA // address of the program header table once mapped
	Phentsize int
	Phnum     int
}

// auxv type constants, the standard Linux numbering every psABI shares.
const (
	atNull   = 0
	atPhdr   = 3
	atPhent  = 4
	atPhnum  = 5
	atPagesz = 6
	atBase   = 7
	atEntry  = 9
)

// chkELF validates that f looks like an executable this loader can map:
// 64-bit, little-endian, executable type, riscv64 machine.
func chkELF(f *elf.File) error {
	if f.Class != elf.ELFCLASS64 {
		return errors.New("elfload: not a 64-bit elf")
	}
	if f.Data != elf.ELFDATA2LSB {
		return errors.New("elfload: not little-endian")
	}
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return errors.New("elfload: not an executable elf")
	}
	if f.Machine != elf.EM_RISCV {
		return errors.New("elfload: not a riscv64 elf")
	}
	return nil
}

// Validate parses r's ELF header without mapping anything, so callers
// (execve) can reject a bad binary before tearing down the caller's
// current address space.
func Validate(r io.ReaderAt) error {
	f, err := elf.NewFile(r)
	if err != nil {
		return err
	}
	if err := chkELF(f); err != nil {
		return err
	}
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			return nil
		}
	}
	return errors.New("elfload: no PT_LOAD segments")
}

func phentsize(f *elf.File) int {
	if f.Class == elf.ELFCLASS64 {
		return 56
	}
	return 32
}

func progFlags(p *elf.Prog) pagetable.Flags {
	flags := pagetable.USER
	if p.Flags&elf.PF_R != 0 {
		flags |= pagetable.READABLE
	}
	if p.Flags&elf.PF_W != 0 {
		flags |= pagetable.WRITABLE
	}
	if p.Flags&elf.PF_X != 0 {
		flags |= pagetable.EXECUTABLE
	}
	return flags
}

// mapSegment installs p as a private anonymous mapping sized to its
// page-aligned virtual extent and copies its file contents in, leaving
// the tail between Filesz and Memsz zero (anonymous pages start zeroed,
// matching the ELF .bss convention). Segment bytes are copied in here,
// at map time, like every other region in this kernel.
func mapSegment(as *vmm.AddressSpace, p *elf.Prog) error {
	start := addr.VA(p.Vaddr).Base()
	endVA := addr.VA(p.Vaddr + p.Memsz)
	if as.AddAnon(start, int(endVA.Ceil().ToVA()-start), progFlags(p)) == nil {
		return errors.New("elfload: out of memory mapping segment")
	}

	if p.Filesz == 0 {
		return nil
	}
	data := make([]byte, p.Filesz)
	if _, err := io.ReadFull(p.Open(), data); err != nil {
		return err
	}
	if werr := as.CopyOut(addr.VA(p.Vaddr), data); werr != 0 {
		return werr
	}
	return nil
}

// Load maps every PT_LOAD segment of r into as and returns the resulting
// Image with Entry/PhdrVA populated for BuildStack's auxv.
func Load(as *vmm.AddressSpace, r io.ReaderAt) (*Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	if err := chkELF(f); err != nil {
		return nil, err
	}

	img := &Image{
		Entry:     addr.VA(f.Entry),
		Phentsize: phentsize(f),
		Phnum:     len(f.Progs),
	}

	var firstLoad *elf.Prog
	for _, p := range f.Progs {
		switch p.Type {
		case elf.PT_LOAD:
			if err := mapSegment(as, p); err != nil {
				return nil, err
			}
			if firstLoad == nil || p.Vaddr < firstLoad.Vaddr {
				firstLoad = p
			}
		case elf.PT_PHDR:
			img.PhdrVA = addr.VA(p.Vaddr)
		}
	}
	if img.PhdrVA == 0 && firstLoad != nil {
		// No explicit PT_PHDR (common for statically linked, non-PIE
		// images): the header table still lives at the start of the
		// lowest segment's file image, per the ELF layout convention.
		img.PhdrVA = addr.VA(firstLoad.Vaddr)
	}
	return img, nil
}

// BuildStack lays out the initial user stack from stackTop downward:
// argv strings, envp strings, alignment padding, the auxv vector, the
// envp pointer table, the argv pointer table, then argc — leaving sp
// pointing at argc, ready for the trapframe's a0/a1/a2/a3 convention
// (argc, argv, envp, auxv).
func BuildStack(as *vmm.AddressSpace, stackTop addr.VA, argv, envp []string, img *Image) (addr.VA, abi.Err_t) {
	sp := stackTop
	var ferr abi.Err_t

	pushString := func(s string) addr.VA {
		b := append([]byte(s), 0)
		sp -= addr.VA(len(b))
		if err := as.CopyOut(sp, b); err != 0 && ferr == 0 {
			ferr = err
		}
		return sp
	}

	argvPtrs := make([]uint64, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		argvPtrs[i] = uint64(pushString(argv[i]))
	}
	envpPtrs := make([]uint64, len(envp))
	for i := len(envp) - 1; i >= 0; i-- {
		envpPtrs[i] = uint64(pushString(envp[i]))
	}
	if ferr != 0 {
		return 0, ferr
	}

	sp = addr.VA(uint64(sp) &^ 0xf)

	auxv := []uint64{
		atPhdr, uint64(img.PhdrVA),
		atPhent, uint64(img.Phentsize),
		atPhnum, uint64(img.Phnum),
		atPagesz, uint64(addr.PageSize),
		atBase, 0,
		atEntry, uint64(img.Entry),
		atNull, 0,
	}
	// Pad one word when the words still to be pushed (auxv, both pointer
	// tables with their NULLs, argc) are odd in number, so sp ends 16-byte
	// aligned at argc.
	if (len(auxv)+len(envp)+1+len(argv)+1+1)%2 != 0 {
		sp -= 8
	}
	var err abi.Err_t
	sp, err = pushUint64Vector(as, sp, auxv)
	if err != 0 {
		return 0, err
	}

	envTable := append(envpPtrs, 0)
	sp, err = pushUint64Vector(as, sp, envTable)
	if err != 0 {
		return 0, err
	}

	argTable := append(argvPtrs, 0)
	sp, err = pushUint64Vector(as, sp, argTable)
	if err != 0 {
		return 0, err
	}

	sp -= 8
	if err := as.WriteUint(sp, 8, uint64(len(argv))); err != 0 {
		return 0, err
	}
	return sp, 0
}

// pushUint64Vector writes vals just below sp, in order, and returns the
// new stack pointer sitting at the first written word.
func pushUint64Vector(as *vmm.AddressSpace, sp addr.VA, vals []uint64) (addr.VA, abi.Err_t) {
	sp -= addr.VA(len(vals) * 8)
	for i, v := range vals {
		if err := as.WriteUint(sp.Add(int64(i*8)), 8, v); err != 0 {
			return 0, err
		}
	}
	return sp, 0
}
