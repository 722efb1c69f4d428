package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/frobware/go-hidbpf/interpreter"
)

// Submit runs a syscall program once with data as its context and
// returns the context as the program left it. T must be a fixed-size
// value as understood by encoding/binary; it is laid out in native
// byte order, matching the C struct the program declares.
func Submit[T any](prog interpreter.Program, data T) (T, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, data); err != nil {
		return data, fmt.Errorf("encode context for %s: %w", prog.Name(), err)
	}

	ctx := buf.Bytes()
	if err := prog.Run(ctx); err != nil {
		return data, fmt.Errorf("test-run %s: %w", prog.Name(), err)
	}

	var out T
	if err := binary.Read(bytes.NewReader(ctx), binary.NativeEndian, &out); err != nil {
		return data, fmt.Errorf("decode context of %s: %w", prog.Name(), err)
	}
	return out, nil
}

// errnoOf returns the errno carried by err, or zero.
func errnoOf(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}
