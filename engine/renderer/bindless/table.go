package bindless

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/containers"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

const (
	/** @brief The descriptor set index pipelines bind the table at. */
	SetIndex uint32 = 0
	/** @brief The binding of the texture array inside the set. */
	TextureBinding uint32 = 0
	DefaultCapacity uint32 = 1024
)

/**
 * @brief Table is the global array of textures every shader indexes by slot.
 *
 * Slots are handed out in increasing order and never recycled. Registrations
 * are queued and reach the device only at UpdateSets, which callers run once
 * per frame before submitting work that reads new slots. The table keeps a
 * reference to every texture it holds.
 */
type Table struct {
	ctx      *gpu.Context
	handle   gpu.TableHandle
	capacity uint32
	label    string

	textures []*gpu.Texture
	pending  *containers.PendingWrites[uint32, *gpu.Texture]
	// Replaced textures, released once the write that replaced them is applied.
	retired []*gpu.Texture
}

func NewTable(ctx *gpu.Context, capacity uint32) (*Table, error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	features := ctx.Features()
	if !features.UpdateAfterBind {
		core.LogWarn("device '%s' lacks update-after-bind; the bindless table must only be updated while idle", ctx.Device.Name())
	}
	label := "bindless-textures"
	h, err := ctx.Device.CreateTable(gpu.TableDesc{Capacity: capacity, Label: label})
	if err != nil {
		err = fmt.Errorf("failed to create bindless table with %d slots: %w", capacity, err)
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("bindless table created with %d slots", capacity)
	return &Table{
		ctx:      ctx,
		handle:   h,
		capacity: capacity,
		label:    label,
		textures: make([]*gpu.Texture, 0, capacity),
		pending:  containers.NewPendingWrites[uint32, *gpu.Texture](),
	}, nil
}

/**
 * @brief Registers tex in the next slot and returns the slot id. The id is
 * usable immediately; the descriptor is written at the next UpdateSets.
 * A full table is a sizing error and fails with core.ErrResourceExhausted.
 */
func (t *Table) AddTexture(tex *gpu.Texture) (uint32, error) {
	if tex == nil {
		return 0, fmt.Errorf("add nil texture: %w", core.ErrInvalidHandle)
	}
	if uint32(len(t.textures)) >= t.capacity {
		err := fmt.Errorf("%w: bindless table is full (%d slots), cannot add '%s'", core.ErrResourceExhausted, t.capacity, tex.Label())
		core.LogError(err.Error())
		return 0, err
	}
	slot := uint32(len(t.textures))
	t.textures = append(t.textures, tex.Retain())
	t.pending.Set(slot, tex)
	return slot, nil
}

/**
 * @brief Replaces the texture in an assigned slot, e.g. after a render
 * target is recreated. A write already pending for the slot is overwritten.
 */
func (t *Table) SetTexture(slot uint32, tex *gpu.Texture) error {
	if tex == nil {
		return fmt.Errorf("set nil texture: %w", core.ErrInvalidHandle)
	}
	if slot >= uint32(len(t.textures)) {
		err := fmt.Errorf("%w: slot %d has not been assigned (%d in use)", core.ErrInvalidSlot, slot, len(t.textures))
		core.LogError(err.Error())
		return err
	}
	old := t.textures[slot]
	t.textures[slot] = tex.Retain()
	t.retired = append(t.retired, old)
	t.pending.Set(slot, tex)
	return nil
}

/**
 * @brief Applies every pending write in one batched descriptor update and
 * clears the queue. Does nothing when nothing is pending. On failure the
 * writes stay queued.
 */
func (t *Table) UpdateSets() error {
	if !t.pending.Dirty() {
		return nil
	}
	entries := t.pending.Drain()
	writes := make([]gpu.DescriptorWrite, len(entries))
	for i, e := range entries {
		writes[i] = gpu.DescriptorWrite{Slot: e.Key, View: e.Value.View(), Sampler: e.Value.Sampler()}
	}
	if err := t.ctx.Device.WriteTable(t.handle, writes); err != nil {
		for _, e := range entries {
			t.pending.Set(e.Key, e.Value)
		}
		err = fmt.Errorf("failed to update bindless table: %w", err)
		core.LogError(err.Error())
		return err
	}
	for _, tex := range t.retired {
		tex.Release()
	}
	t.retired = t.retired[:0]
	return nil
}

func (t *Table) Handle() gpu.TableHandle  { return t.handle }
func (t *Table) Layout() gpu.LayoutHandle { return t.ctx.Device.TableLayout(t.handle) }
func (t *Table) Set() gpu.SetHandle       { return t.ctx.Device.TableSet(t.handle) }

// Len returns the number of assigned slots.
func (t *Table) Len() int         { return len(t.textures) }
func (t *Table) Capacity() uint32 { return t.capacity }
func (t *Table) Pending() int     { return t.pending.Len() }

// Texture returns the texture currently assigned to slot.
func (t *Table) Texture(slot uint32) (*gpu.Texture, bool) {
	if slot >= uint32(len(t.textures)) {
		return nil, false
	}
	return t.textures[slot], true
}

// Destroy releases every held texture and the device table. The GPU must be idle.
func (t *Table) Destroy() {
	if t.handle == 0 {
		return
	}
	t.pending.Reset()
	for _, tex := range t.retired {
		tex.Release()
	}
	for _, tex := range t.textures {
		tex.Release()
	}
	t.retired = nil
	t.textures = nil
	t.ctx.Device.DestroyTable(t.handle)
	t.handle = 0
}
