// Package syscall implements the kernel's system-call dispatcher: decode
// a7 into a syscall number, pull arguments from a0..a5, run the matching
// handler, write the result back into a0. User and system cycle
// accounting brackets every call.
package syscall

// Syscall numbers, the generic 64-bit Linux ABI riscv64 uses unmodified
// (the "generic" table introduced with arm64 and adopted by every
// 64-bit-only port since, including riscv64).
const (
	sysGetcwd       = 17
	sysDup          = 23
	sysDup3         = 24
	sysFcntl        = 25
	sysMkdirat      = 34
	sysUnlinkat     = 35
	sysMount        = 40
	sysUmount2      = 39
	sysChdir        = 49
	sysOpenat       = 56
	sysClose        = 57
	sysPipe2        = 59
	sysGetdents64   = 61
	sysLseek        = 62
	sysRead         = 63
	sysWrite        = 64
	sysWritev       = 66
	sysSendfile     = 71
	sysFstatat      = 79
	sysFstat        = 80
	sysExit         = 93
	sysNanosleep    = 101
	sysClockGettime = 113
	sysSchedYield   = 124
	sysSetTidAddr   = 96
	sysClone        = 220
	sysExecve       = 221
	sysMmap         = 222
	sysMprotect     = 226
	sysMunmap       = 215
	sysWait4        = 260
	sysGettimeofday = 169
	sysGetuid       = 174
	sysGeteuid      = 175
	sysGetgid       = 176
	sysGetegid      = 177
	sysGetppid      = 173
	sysGetpid       = 172
	sysBrk          = 214
	sysUname        = 160
	sysFaccessat    = 48
	sysTimes        = 153
)
