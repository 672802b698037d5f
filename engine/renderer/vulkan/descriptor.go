package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

/**
 * @brief One descriptor set holding a single unbounded array of combined
 * image samplers at binding 0, allocated from its own update-after-bind pool.
 */
type vulkanTable struct {
	desc   gpu.TableDesc
	layout vk.DescriptorSetLayout
	pool   vk.DescriptorPool
	set    vk.DescriptorSet

	layoutHandle gpu.LayoutHandle
	setHandle    gpu.SetHandle
}

const bindlessStages = vk.ShaderStageFragmentBit | vk.ShaderStageComputeBit

func (b *Backend) CreateTable(desc gpu.TableDesc) (gpu.TableHandle, error) {
	if desc.Capacity == 0 || desc.Capacity > b.features.MaxBindlessTextures {
		err := fmt.Errorf("bindless table of %d textures exceeds the device limit of %d: %w", desc.Capacity, b.features.MaxBindlessTextures, core.ErrResourceExhausted)
		core.LogError(err.Error())
		return 0, err
	}

	table := &vulkanTable{desc: desc}
	err := b.context.Locks.SafeCall(DescriptorManagement, func() error {
		return b.createTable(table)
	})
	if err != nil {
		b.destroyTable(table)
		return 0, err
	}

	h := gpu.TableHandle(b.handle())
	table.layoutHandle = gpu.LayoutHandle(b.handle())
	table.setHandle = gpu.SetHandle(b.handle())
	b.tables[h] = table
	core.LogDebug("created bindless table '%s' with %d slots", desc.Label, desc.Capacity)
	return h, nil
}

func (b *Backend) createTable(table *vulkanTable) error {
	binding := vk.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: table.desc.Capacity,
		StageFlags:      vk.ShaderStageFlags(bindlessStages),
	}
	bindingFlags := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
		SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
		BindingCount:  1,
		PBindingFlags: []vk.DescriptorBindingFlags{vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit | vk.DescriptorBindingUpdateAfterBindBit | vk.DescriptorBindingUpdateUnusedWhilePendingBit)},
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		Flags:        vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreateUpdateAfterBindPoolBit),
		BindingCount: 1,
		PBindings:    []vk.DescriptorSetLayoutBinding{binding},
		PNext:        unsafe.Pointer(&bindingFlags),
	}
	if res := vk.CreateDescriptorSetLayout(b.device(), &layoutInfo, b.context.Allocator, &table.layout); res != vk.Success {
		return vulkanError("vkCreateDescriptorSetLayout", res)
	}

	poolSizes := []vk.DescriptorPoolSize{{
		Type:            vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: table.desc.Capacity,
	}}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateUpdateAfterBindBit),
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if res := vk.CreateDescriptorPool(b.device(), &poolInfo, b.context.Allocator, &table.pool); res != vk.Success {
		return vulkanError("vkCreateDescriptorPool", res)
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     table.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{table.layout},
	}
	if res := vk.AllocateDescriptorSets(b.device(), &allocInfo, &table.set); res != vk.Success {
		return vulkanError("vkAllocateDescriptorSets", res)
	}
	return nil
}

func (b *Backend) DestroyTable(h gpu.TableHandle) {
	table, ok := b.tables[h]
	if !ok {
		return
	}
	b.destroyTable(table)
	delete(b.tables, h)
}

func (b *Backend) destroyTable(table *vulkanTable) {
	// the set is freed with its pool
	if table.pool != nil {
		vk.DestroyDescriptorPool(b.device(), table.pool, b.context.Allocator)
		table.pool = nil
	}
	if table.layout != nil {
		vk.DestroyDescriptorSetLayout(b.device(), table.layout, b.context.Allocator)
		table.layout = nil
	}
}

/**
 * @brief Validates the whole batch first so a bad write leaves the set
 * untouched, then issues a single vkUpdateDescriptorSets.
 */
func (b *Backend) WriteTable(h gpu.TableHandle, writes []gpu.DescriptorWrite) error {
	table, ok := b.tables[h]
	if !ok {
		return invalidHandle("table", uint64(h))
	}
	if len(writes) == 0 {
		return nil
	}

	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		if w.Slot >= table.desc.Capacity {
			err := fmt.Errorf("slot %d of a %d-slot table: %w", w.Slot, table.desc.Capacity, core.ErrInvalidSlot)
			core.LogError(err.Error())
			return err
		}
		view, ok := b.views[w.View]
		if !ok {
			return invalidHandle("view", uint64(w.View))
		}
		sampler, ok := b.samplers[w.Sampler]
		if !ok {
			return invalidHandle("sampler", uint64(w.Sampler))
		}
		vkWrites = append(vkWrites, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          table.set,
			DstBinding:      0,
			DstArrayElement: w.Slot,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			PImageInfo: []vk.DescriptorImageInfo{{
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				ImageView:   view,
				Sampler:     sampler,
			}},
		})
	}

	return b.context.Locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(b.device(), uint32(len(vkWrites)), vkWrites, 0, nil)
		return nil
	})
}

func (b *Backend) TableLayout(h gpu.TableHandle) gpu.LayoutHandle {
	if table, ok := b.tables[h]; ok {
		return table.layoutHandle
	}
	return 0
}

func (b *Backend) TableSet(h gpu.TableHandle) gpu.SetHandle {
	if table, ok := b.tables[h]; ok {
		return table.setHandle
	}
	return 0
}

// DescriptorSet resolves a table's set for vkCmdBindDescriptorSets.
func (b *Backend) DescriptorSet(h gpu.SetHandle) (vk.DescriptorSet, vk.DescriptorSetLayout, bool) {
	for _, table := range b.tables {
		if table.setHandle == h {
			return table.set, table.layout, true
		}
	}
	return nil, nil, false
}
