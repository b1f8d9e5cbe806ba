//go:build linux && amd64

package tools

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/aigent/aigent/internal/logger"
)

// Classic BPF opcode fragments (linux/bpf_common.h). Defined locally rather
// than leaned on from x/sys/unix, since the filter program this file builds
// is small and self-contained.
const (
	bpfLD  = 0x00
	bpfW   = 0x00
	bpfABS = 0x20
	bpfJMP = 0x05
	bpfJEQ = 0x10
	bpfK   = 0x00
	bpfRET = 0x06
)

const (
	seccompRetAllow = 0x7fff0000
	seccompRetErrno = 0x00050000
	enosys          = 38

	seccompSetModeFilter = 1
	sysSeccomp           = 317 // linux/amd64 syscall number for seccomp(2)

	// __AUDIT_ARCH_64BIT | __AUDIT_ARCH_LE | EM_X86_64
	auditArchX86_64 = 0xC000003E

	// offsets into struct seccomp_data
	seccompDataNROffset   = 0
	seccompDataArchOffset = 4
)

// allowedSyscalls is the 111-syscall file/mem/net/process/time allow-list
// (spec §4.9 step 5). Anything else returns ENOSYS rather than killing the
// process, so a denied call surfaces as an ordinary tool error instead of a
// crash.
var allowedSyscalls = []uintptr{
	unix.SYS_READ, unix.SYS_WRITE, unix.SYS_OPEN, unix.SYS_CLOSE,
	unix.SYS_STAT, unix.SYS_FSTAT, unix.SYS_LSTAT, unix.SYS_POLL,
	unix.SYS_LSEEK, unix.SYS_MMAP, unix.SYS_MPROTECT, unix.SYS_MUNMAP,
	unix.SYS_BRK, unix.SYS_RT_SIGACTION, unix.SYS_RT_SIGPROCMASK,
	unix.SYS_RT_SIGRETURN, unix.SYS_IOCTL, unix.SYS_PREAD64, unix.SYS_PWRITE64,
	unix.SYS_READV, unix.SYS_WRITEV, unix.SYS_ACCESS, unix.SYS_PIPE,
	unix.SYS_SELECT, unix.SYS_SCHED_YIELD, unix.SYS_MREMAP, unix.SYS_MSYNC,
	unix.SYS_MINCORE, unix.SYS_MADVISE, unix.SYS_DUP, unix.SYS_DUP2,
	unix.SYS_PAUSE, unix.SYS_NANOSLEEP, unix.SYS_GETITIMER, unix.SYS_ALARM,
	unix.SYS_SETITIMER, unix.SYS_GETPID, unix.SYS_SENDFILE, unix.SYS_SOCKET,
	unix.SYS_CONNECT, unix.SYS_ACCEPT, unix.SYS_SENDTO, unix.SYS_RECVFROM,
	unix.SYS_SENDMSG, unix.SYS_RECVMSG, unix.SYS_SHUTDOWN, unix.SYS_BIND,
	unix.SYS_LISTEN, unix.SYS_GETSOCKNAME, unix.SYS_GETPEERNAME,
	unix.SYS_SOCKETPAIR, unix.SYS_SETSOCKOPT, unix.SYS_GETSOCKOPT,
	unix.SYS_CLONE, unix.SYS_FORK, unix.SYS_VFORK, unix.SYS_EXECVE,
	unix.SYS_EXIT, unix.SYS_WAIT4, unix.SYS_KILL, unix.SYS_UNAME,
	unix.SYS_FCNTL, unix.SYS_FLOCK, unix.SYS_FSYNC, unix.SYS_FDATASYNC,
	unix.SYS_TRUNCATE, unix.SYS_FTRUNCATE, unix.SYS_GETDENTS, unix.SYS_GETCWD,
	unix.SYS_CHDIR, unix.SYS_RENAME, unix.SYS_MKDIR, unix.SYS_RMDIR,
	unix.SYS_CREAT, unix.SYS_LINK, unix.SYS_UNLINK, unix.SYS_SYMLINK,
	unix.SYS_READLINK, unix.SYS_CHMOD, unix.SYS_FCHMOD, unix.SYS_CHOWN,
	unix.SYS_FCHOWN, unix.SYS_UMASK, unix.SYS_GETTIMEOFDAY, unix.SYS_GETRLIMIT,
	unix.SYS_GETRUSAGE, unix.SYS_SYSINFO, unix.SYS_TIMES, unix.SYS_GETUID,
	unix.SYS_GETGID, unix.SYS_GETEUID, unix.SYS_GETEGID, unix.SYS_GETPPID,
	unix.SYS_GETPGRP, unix.SYS_SETSID, unix.SYS_GETTID, unix.SYS_FUTEX,
	unix.SYS_SET_TID_ADDRESS, unix.SYS_CLOCK_GETTIME, unix.SYS_EXIT_GROUP,
	unix.SYS_EPOLL_CREATE, unix.SYS_EPOLL_WAIT, unix.SYS_EPOLL_CTL,
	unix.SYS_OPENAT, unix.SYS_NEWFSTATAT, unix.SYS_PRLIMIT64,
	unix.SYS_GETRANDOM, unix.SYS_SET_ROBUST_LIST, unix.SYS_ARCH_PRCTL,
	unix.SYS_PRCTL, unix.SYS_STATX,
}

func bpfStmt(code uint16, k uint32) unix.SockFilter {
	return unix.SockFilter{Code: code, K: k}
}

func bpfJump(code uint16, k uint32, jt, jf uint8) unix.SockFilter {
	return unix.SockFilter{Code: code, Jt: jt, Jf: jf, K: k}
}

// buildFilter assembles the classic BPF program: verify the calling
// convention's architecture, then allow-list syscall numbers, defaulting to
// ENOSYS.
func buildFilter() []unix.SockFilter {
	prog := []unix.SockFilter{
		bpfStmt(bpfLD|bpfW|bpfABS, seccompDataArchOffset),
		bpfJump(bpfJMP|bpfJEQ|bpfK, auditArchX86_64, 1, 0),
		bpfStmt(bpfRET|bpfK, seccompRetErrno|enosys),
		bpfStmt(bpfLD|bpfW|bpfABS, seccompDataNROffset),
	}
	for _, nr := range allowedSyscalls {
		prog = append(prog,
			bpfJump(bpfJMP|bpfJEQ|bpfK, uint32(nr), 0, 1),
			bpfStmt(bpfRET|bpfK, seccompRetAllow),
		)
	}
	prog = append(prog, bpfStmt(bpfRET|bpfK, seccompRetErrno|enosys))
	return prog
}

// applyPlatformSandbox installs PR_SET_NO_NEW_PRIVS then the seccomp BPF
// filter in the calling (already-forked) process. Must run before any work
// the child does besides re-exec'ing the real target (spec §4.9 step 5:
// "Linux: PR_SET_NO_NEW_PRIVS, then a seccomp BPF allow-list ... disallowed
// syscalls return ENOSYS").
func applyPlatformSandbox() error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return err
	}
	filter := buildFilter()
	fprog := unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}
	_, _, errno := unix.Syscall(sysSeccomp, seccompSetModeFilter, 0, uintptr(unsafe.Pointer(&fprog)))
	if errno != 0 {
		return errno
	}
	return nil
}

const sandboxExecEnv = "AIGENT_SANDBOX_EXEC"

// SandboxMain must be called as the first statement of cmd/aigent's main.
// It is a no-op in the daemon's own process; the run_shell handler re-execs
// the binary with AIGENT_SANDBOX_EXEC=1 set so the filter is installed in a
// fresh process image before the real shell command replaces it via execve,
// never in the long-lived daemon itself.
func SandboxMain() {
	if os.Getenv(sandboxExecEnv) != "1" {
		return
	}
	if err := applyPlatformSandbox(); err != nil {
		logger.Error("sandbox: failed to install seccomp filter", "err", err)
		os.Exit(1)
	}
	argv := os.Args[1:]
	if len(argv) == 0 {
		os.Exit(1)
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		os.Exit(127)
	}
	_ = syscall.Exec(path, argv, os.Environ())
	os.Exit(1)
}

// buildSandboxedCmd wraps the shell invocation so the child re-execs this
// binary to install the seccomp filter before replacing itself with the
// real shell (spec §4.9 step 5).
func buildSandboxedCmd(ctx context.Context, workspaceRoot, shell, script string, sandboxEnabled bool) (*exec.Cmd, error) {
	if !sandboxEnabled {
		cmd := exec.CommandContext(ctx, shell, "-c", script)
		cmd.Dir = workspaceRoot
		return cmd, nil
	}
	self, err := os.Executable()
	if err != nil {
		self = "/proc/self/exe"
	}
	cmd := exec.CommandContext(ctx, self, shell, "-c", script)
	cmd.Dir = workspaceRoot
	cmd.Env = append(os.Environ(), sandboxExecEnv+"=1")
	return cmd, nil
}
