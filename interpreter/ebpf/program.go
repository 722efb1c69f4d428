package ebpf

import (
	"fmt"

	"github.com/cilium/ebpf"
)

// program adapts a loaded *ebpf.Program to interpreter.Program.
type program struct {
	name string
	prog *ebpf.Program
}

func (p *program) Name() string { return p.name }

func (p *program) FD() int { return p.prog.FD() }

// Run test-runs a syscall program. The kernel copies the context in
// before execution and back out afterwards, so any field the program
// writes (a return status, a link fd) is visible in ctx on return.
func (p *program) Run(ctx []byte) error {
	out := make([]byte, len(ctx))
	if _, err := p.prog.Run(&ebpf.RunOptions{
		Context:    ctx,
		ContextOut: out,
	}); err != nil {
		return fmt.Errorf("run program %q: %w", p.name, err)
	}
	copy(ctx, out)
	return nil
}
