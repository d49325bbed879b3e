package main

import (
	"rvcore/internal/board"
)

// hardwareHooks must come from the real RISC-V supervisor-mode
// primitives board.HardwareHooks names: the ecall instruction, sstatus
// CSR access, satp writes, the running hart's ID. None of these are
// expressible in portable Go; a real boot image links this against a
// small assembly entry stub. Nothing in this tree provides one, so main
// documents the gap rather than fabricating hooks that would silently do
// nothing on real hardware.
func hardwareHooks() board.HardwareHooks {
	panic("cmd/kernel: no RISC-V hardware hooks linked into this build")
}

func main() {
	cfg := board.QEMUVirt()
	k := Boot(cfg, hardwareHooks(), nil)
	stop := make(chan struct{})
	k.Start(stop)
	select {}
}
