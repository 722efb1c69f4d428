package loader

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/interpreter"
)

// propertyPrefix marks global variables that receive a device
// property: UDEV_PROP_<NAME> receives property NAME.
const propertyPrefix = "UDEV_PROP_"

// dataSections are the global data sections searched for property
// slots, in order.
var dataSections = []string{".bss", ".data"}

// slot is a property variable with the value it will receive.
type slot struct {
	name   string
	offset uint32
	size   uint32
	value  []byte
}

// sectionBuffer is a bounds-checked view of a data section's value.
type sectionBuffer struct {
	b []byte
}

// write copies value into the slot at [offset, offset+capacity). A
// value that is not strictly shorter than capacity is skipped and
// reported as not written. A slot that does not lie within the buffer
// is an error.
func (s sectionBuffer) write(offset, capacity uint32, value []byte) (bool, error) {
	if uint64(offset)+uint64(capacity) > uint64(len(s.b)) {
		return false, fmt.Errorf("slot [%d, %d) outside section of %d bytes", offset, uint64(offset)+uint64(capacity), len(s.b))
	}
	if uint64(len(value)) >= uint64(capacity) {
		return false, nil
	}
	copy(s.b[offset:], value)
	return true, nil
}

// injectProperties writes matching properties into the property slots
// of the object's data sections, for every instance of every map
// backing those sections.
func injectProperties(ctx context.Context, obj interpreter.Object, objName string, props []hidbpf.Property, logger *slog.Logger) error {
	for _, section := range dataSections {
		if err := injectSection(ctx, obj, objName, section, props, logger); err != nil {
			return &hidbpf.LoaderError{Object: objName, Op: "inject properties", Err: err}
		}
	}
	return nil
}

func injectSection(ctx context.Context, obj interpreter.Object, objName, section string, props []hidbpf.Property, logger *slog.Logger) error {
	vars, ok := obj.DataSection(section)
	if !ok {
		return nil
	}

	slots := matchSlots(vars, props)
	if len(slots) == 0 {
		return nil
	}

	for _, m := range obj.Maps() {
		if !strings.HasSuffix(m.Name, section) {
			continue
		}

		keys, err := obj.MapKeys(m.Name)
		if err != nil {
			return err
		}

		for _, key := range keys {
			data, err := obj.Lookup(m.Name, key)
			if err != nil {
				return err
			}

			buf := sectionBuffer{b: data}
			written := false
			for _, s := range slots {
				ok, err := buf.write(s.offset, s.size, s.value)
				if err != nil {
					return fmt.Errorf("%s%s in map %s: %w", propertyPrefix, s.name, m.Name, err)
				}
				if !ok {
					logger.DebugContext(ctx, "property too long for slot",
						"property", s.name, "map", m.Name, "len", len(s.value), "size", s.size)
					continue
				}
				logger.DebugContext(ctx, "injected property",
					"property", s.name, "value", string(s.value), "map", m.Name)
				written = true
			}

			if !written {
				continue
			}
			if err := obj.Update(m.Name, key, data); err != nil {
				return err
			}
		}
	}
	return nil
}

// matchSlots pairs every property variable with the property of the
// same name, dropping variables that have no matching property.
func matchSlots(vars []interpreter.SectionVar, props []hidbpf.Property) []slot {
	var slots []slot
	for _, v := range vars {
		name, ok := strings.CutPrefix(v.Name, propertyPrefix)
		if !ok {
			continue
		}
		p, ok := hidbpf.LookupProperty(props, name)
		if !ok {
			continue
		}
		slots = append(slots, slot{
			name:   name,
			offset: v.Offset,
			size:   v.Size,
			value:  []byte(p.Value),
		})
	}
	return slots
}
