package procutil

import (
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/fluffypony/llm-proxifier/pkg/config"
)

// BuildCommand constructs the llama-server argv for cfg, in the exact
// order the child process expects: the binary name, then the flags named
// in §4.A, then any additional_args appended verbatim. argv[0] is the
// binary name, matching exec.Cmd's convention of not repeating it in Args.
func BuildCommand(cfg config.ModelConfig) []string {
	argv := []string{
		"llama-server",
		"--model", cfg.ModelPath,
		"--port", strconv.Itoa(cfg.Port),
		"--ctx-size", strconv.Itoa(cfg.ContextLength),
		"--n-gpu-layers", strconv.Itoa(cfg.GPULayers),
		"--chat-template", cfg.ChatFormat,
		"--host", "127.0.0.1",
	}
	argv = append(argv, cfg.AdditionalArgs...)
	return argv
}

// GracefulStop sends SIGTERM to proc and waits up to timeout for exited to
// be closed (by the caller's process-wait goroutine). If the process has
// not exited by then, it sends SIGKILL and blocks until exited closes.
// Returns true iff the graceful phase (SIGTERM alone) sufficed.
func GracefulStop(proc *os.Process, exited <-chan struct{}, timeout time.Duration) bool {
	if proc == nil {
		return true
	}

	_ = proc.Signal(syscall.SIGTERM)

	select {
	case <-exited:
		return true
	case <-time.After(timeout):
	}

	_ = proc.Signal(syscall.SIGKILL)
	<-exited
	return false
}
