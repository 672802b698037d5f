package software

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

type table struct {
	desc    gpu.TableDesc
	layout  gpu.LayoutHandle
	set     gpu.SetHandle
	entries []gpu.DescriptorWrite
	bound   []bool
}

func (d *Device) CreateTable(desc gpu.TableDesc) (gpu.TableHandle, error) {
	if desc.Capacity == 0 || desc.Capacity > d.features.MaxBindlessTextures {
		return 0, fmt.Errorf("%w: descriptor table '%s' capacity %d, device limit %d",
			core.ErrResourceExhausted, desc.Label, desc.Capacity, d.features.MaxBindlessTextures)
	}
	h := gpu.TableHandle(d.handle())
	d.tables[h] = &table{
		desc:    desc,
		layout:  gpu.LayoutHandle(d.handle()),
		set:     gpu.SetHandle(d.handle()),
		entries: make([]gpu.DescriptorWrite, desc.Capacity),
		bound:   make([]bool, desc.Capacity),
	}
	return h, nil
}

func (d *Device) DestroyTable(h gpu.TableHandle) {
	delete(d.tables, h)
}

// WriteTable validates the whole batch before applying any of it.
func (d *Device) WriteTable(h gpu.TableHandle, writes []gpu.DescriptorWrite) error {
	t, ok := d.tables[h]
	if !ok {
		return fmt.Errorf("write descriptor table %d: %w", h, core.ErrInvalidHandle)
	}
	for _, w := range writes {
		if w.Slot >= t.desc.Capacity {
			return fmt.Errorf("slot %d of '%s': %w", w.Slot, t.desc.Label, core.ErrInvalidSlot)
		}
		if _, ok := d.views[w.View]; !ok {
			return fmt.Errorf("slot %d view %d: %w", w.Slot, w.View, core.ErrInvalidHandle)
		}
		if _, ok := d.samplers[w.Sampler]; !ok {
			return fmt.Errorf("slot %d sampler %d: %w", w.Slot, w.Sampler, core.ErrInvalidHandle)
		}
	}
	for _, w := range writes {
		t.entries[w.Slot] = w
		t.bound[w.Slot] = true
	}
	d.stats.DescriptorWriteBatches++
	d.stats.DescriptorWrites += uint64(len(writes))
	return nil
}

func (d *Device) TableLayout(h gpu.TableHandle) gpu.LayoutHandle {
	if t, ok := d.tables[h]; ok {
		return t.layout
	}
	return 0
}

func (d *Device) TableSet(h gpu.TableHandle) gpu.SetHandle {
	if t, ok := d.tables[h]; ok {
		return t.set
	}
	return 0
}

// Descriptor returns what a shader would read from slot.
func (d *Device) Descriptor(h gpu.TableHandle, slot uint32) (gpu.DescriptorWrite, bool) {
	t, ok := d.tables[h]
	if !ok || slot >= t.desc.Capacity || !t.bound[slot] {
		return gpu.DescriptorWrite{}, false
	}
	return t.entries[slot], true
}
