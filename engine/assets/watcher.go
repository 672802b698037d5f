package assets

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/bindless"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-rt/engine/systems"
)

/**
 * @brief TextureWatcher reloads texture files into the bindless slots they
 * were registered in. File events are collected on a background goroutine;
 * the reloads themselves happen in Poll, on the render thread, before the
 * table's UpdateSets. Changed files are decoded on the job system when one
 * is given; uploads always stay on the calling goroutine.
 */
type TextureWatcher struct {
	ctx   *gpu.Context
	table *bindless.Table
	opts  TextureOptions
	jobs  *systems.JobSystem

	mutex   sync.Mutex
	slots   map[string]uint32
	dirs    map[string]int
	pending map[string]struct{}

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

// NewTextureWatcher starts watching. jobs may be nil to decode on the caller.
func NewTextureWatcher(ctx *gpu.Context, table *bindless.Table, opts TextureOptions, jobs *systems.JobSystem) (*TextureWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &TextureWatcher{
		ctx:      ctx,
		table:    table,
		opts:     opts,
		jobs:     jobs,
		slots:    make(map[string]uint32),
		dirs:     make(map[string]int),
		pending:  make(map[string]struct{}),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

/**
 * @brief Loads the texture, registers it in the next bindless slot and
 * watches the file. The table holds the only reference to the texture.
 */
func (w *TextureWatcher) LoadAndWatch(path string) (uint32, error) {
	tex, err := LoadTexture(w.ctx, path, w.opts)
	if err != nil {
		return 0, err
	}
	defer tex.Release()

	slot, err := w.table.AddTexture(tex)
	if err != nil {
		return 0, err
	}
	if err := w.Watch(path, slot); err != nil {
		return slot, err
	}
	return slot, nil
}

// Watch reloads path into slot whenever the file is written.
func (w *TextureWatcher) Watch(path string, slot uint32) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.isClosed {
		return errors.New("texture watcher already closed")
	}
	if _, ok := w.slots[abs]; ok {
		w.slots[abs] = slot
		return nil
	}
	// editors often replace files, so watch the directory rather than the file
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fsnotify.Add(dir); err != nil {
			return fmt.Errorf("failed to watch '%s': %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.slots[abs] = slot
	return nil
}

/**
 * @brief Reloads every texture whose file changed since the last call and
 * queues it into its slot with SetTexture. Returns how many were reloaded.
 * A file that fails to load keeps its previous texture.
 */
func (w *TextureWatcher) Poll() (int, error) {
	w.mutex.Lock()
	if len(w.pending) == 0 {
		w.mutex.Unlock()
		return 0, nil
	}
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	clear(w.pending)
	w.mutex.Unlock()

	images, errs := w.decode(paths)

	reloaded := 0
	for i, path := range paths {
		if images[i] == nil {
			continue
		}
		w.mutex.Lock()
		slot := w.slots[path]
		w.mutex.Unlock()

		tex, err := UploadImage(w.ctx, images[i], filepath.Base(path), w.opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		err = w.table.SetTexture(slot, tex)
		tex.Release()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		core.LogInfo("reloaded texture '%s' into slot %d", filepath.Base(path), slot)
		reloaded++
	}
	return reloaded, errors.Join(errs...)
}

// decode loads every path, in parallel when a job system is set. Failed paths get a nil image.
func (w *TextureWatcher) decode(paths []string) ([]*Image, []error) {
	images := make([]*Image, len(paths))
	failures := make([]error, len(paths))
	tasks := make([]systems.JobTask, len(paths))
	for i, path := range paths {
		tasks[i] = systems.JobTask{
			Name: "decode " + filepath.Base(path),
			OnStart: func() error {
				img, err := LoadImage(path, w.opts.FlipY)
				images[i] = img
				return err
			},
			OnFailure: func(err error) { failures[i] = err },
		}
	}
	w.jobs.RunBatch(tasks)

	var errs []error
	for _, err := range failures {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return images, errs
}

func (w *TextureWatcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return nil
	}
	w.isClosed = true
	w.mutex.Unlock()

	close(w.done)
	w.wg.Wait()
	return w.fsnotify.Close()
}

func (w *TextureWatcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.markDirty(e.Name)
			}
		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("texture watcher: %s", err)
		case <-w.done:
			return
		}
	}
}

func (w *TextureWatcher) markDirty(name string) {
	path := filepath.Clean(name)
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if _, ok := w.slots[path]; ok {
		w.pending[path] = struct{}{}
	}
}
