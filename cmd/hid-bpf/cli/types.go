package cli

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/frobware/go-hidbpf"
)

// KeyValue is a NAME=VALUE property given on the command line.
type KeyValue struct {
	Key   string
	Value string
}

// ParseKeyValue parses a NAME=VALUE string. The value may be empty
// and may itself contain '='.
func ParseKeyValue(s string) (KeyValue, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return KeyValue{}, fmt.Errorf("invalid format %q: expected NAME=VALUE", s)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return KeyValue{}, fmt.Errorf("invalid format %q: name cannot be empty", s)
	}
	return KeyValue{Key: key, Value: value}, nil
}

func keyValueMapper() kong.MapperFunc {
	return func(ctx *kong.DecodeContext, target reflect.Value) error {
		var s string
		if err := ctx.Scan.PopValueInto("name=value", &s); err != nil {
			return err
		}
		kv, err := ParseKeyValue(s)
		if err != nil {
			return err
		}
		target.Set(reflect.ValueOf(kv))
		return nil
	}
}

// Properties converts command-line pairs to properties, keeping their
// order.
func Properties(kvs []KeyValue) []hidbpf.Property {
	props := make([]hidbpf.Property, 0, len(kvs))
	for _, kv := range kvs {
		props = append(props, hidbpf.Property{Name: kv.Key, Value: kv.Value})
	}
	return props
}

// SysnameOf returns the sysname named by a device path or a bare
// sysname. The path is not resolved, so a device that has already
// gone away can still be named.
func SysnameOf(devpathOrSysname string) string {
	return filepath.Base(filepath.Clean(devpathOrSysname))
}
