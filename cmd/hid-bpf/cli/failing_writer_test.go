package cli_test

import (
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frobware/go-hidbpf/cmd/hid-bpf/cli"
)

// failingWriter succeeds for the first budget bytes, then fails with
// failErr. With shortWriteEvery > 0 every Nth call writes one byte and
// returns a nil error.
type failingWriter struct {
	budget          int
	failErr         error
	shortWriteEvery int
	writes          int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++

	if w.shortWriteEvery > 0 && w.writes%w.shortWriteEvery == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 1, nil
	}

	if w.budget <= 0 {
		return 0, w.failErr
	}
	if len(p) <= w.budget {
		w.budget -= len(p)
		return len(p), nil
	}

	n := w.budget
	w.budget = 0
	return n, w.failErr
}

var _ io.Writer = (*failingWriter)(nil)

func TestCLIWriteOut_PropagatesENOSPC(t *testing.T) {
	c := &cli.CLI{Out: &failingWriter{budget: 0, failErr: syscall.ENOSPC}}
	require.ErrorIs(t, c.WriteOut([]byte("x")), syscall.ENOSPC)
}

func TestCLIWriteOut_TreatsShortWriteAsError(t *testing.T) {
	c := &cli.CLI{Out: &failingWriter{budget: 10, failErr: syscall.ENOSPC, shortWriteEvery: 1}}
	require.ErrorIs(t, c.WriteOut([]byte("hello")), io.ErrShortWrite)
}

func TestCLIWriteOut_PartialThenFailReturnsENOSPC(t *testing.T) {
	c := &cli.CLI{Out: &failingWriter{budget: 3, failErr: syscall.ENOSPC}}
	require.ErrorIs(t, c.WriteOut([]byte("hello")), syscall.ENOSPC)
}

func TestCLIPrintOutf_PropagatesError(t *testing.T) {
	c := &cli.CLI{Out: &failingWriter{budget: 0, failErr: syscall.EPIPE}}
	require.ErrorIs(t, c.PrintOutf("Removed %s\n", "0003:045E:07A5.000B"), syscall.EPIPE)
}
