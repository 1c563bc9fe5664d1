// Package wasm runs an inpainting filter compiled to WebAssembly inside a
// pool of WasmEdge VMs.
//
// The module must export:
//
//	alloc(len i32) -> ptr i32
//	dealloc(ptr i32, len i32)
//	inpaint(img i32, imgLen i32, mask i32, maskLen i32, size i32, params i32) -> len i32
//
// Tensors cross the boundary as little-endian float32 in the same layout as
// inpaint.TileInput. inpaint writes the output pointer and byte length as two
// little-endian i32 at params and returns the length, or 0 on failure.
package wasm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/second-state/WasmEdge-go/wasmedge"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/inpaint"
)

// ErrClosed is returned by Transform after Close.
var ErrClosed = errors.New("wasm: pool closed")

var loadPlugins sync.Once

type instance struct {
	conf *wasmedge.Configure
	vm   *wasmedge.VM
}

// Pool holds ready VMs. A VM serves one tile at a time.
type Pool struct {
	vms  chan *instance
	all  []*instance
	size int

	mu     sync.RWMutex
	closed bool
}

var _ inpaint.Transformer = (*Pool)(nil)

// NewPool instantiates n VMs from the module at path. size is the tile edge
// the module expects; zero leaves it to the pipeline configuration.
func NewPool(path string, n, size int) (*Pool, error) {
	loadPlugins.Do(func() {
		wasmedge.SetLogErrorLevel()
		wasmedge.LoadPluginDefaultPaths()
	})
	if n < 1 {
		n = 1
	}
	p := &Pool{vms: make(chan *instance, n), size: size}
	for i := 0; i < n; i++ {
		inst, err := newInstance(path)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.all = append(p.all, inst)
		p.vms <- inst
	}
	return p, nil
}

func newInstance(path string) (*instance, error) {
	conf := wasmedge.NewConfigure(wasmedge.WASI)
	vm := wasmedge.NewVMWithConfig(conf)
	inst := &instance{conf: conf, vm: vm}
	if err := vm.LoadWasmFile(path); err != nil {
		inst.release()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := vm.Validate(); err != nil {
		inst.release()
		return nil, fmt.Errorf("validate: %w", err)
	}
	if err := vm.Instantiate(); err != nil {
		inst.release()
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	return inst, nil
}

func (i *instance) release() {
	i.vm.Release()
	i.conf.Release()
}

// TileSize returns the size passed to NewPool.
func (p *Pool) TileSize() int { return p.size }

// Transform borrows a VM, runs the module's inpaint export and returns it.
func (p *Pool) Transform(ctx context.Context, in inpaint.TileInput) ([]float32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}

	var inst *instance
	select {
	case inst = <-p.vms:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { p.vms <- inst }()

	return runTile(inst.vm, in)
}

func runTile(vm *wasmedge.VM, in inpaint.TileInput) ([]float32, error) {
	imgPtr, imgLen, err := write(vm, inpaint.EncodeFloats(in.Image))
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	defer vm.Execute("dealloc", imgPtr, imgLen)

	maskPtr, maskLen, err := write(vm, inpaint.EncodeFloats(in.Mask))
	if err != nil {
		return nil, fmt.Errorf("mask: %w", err)
	}
	defer vm.Execute("dealloc", maskPtr, maskLen)

	paramsRes, err := vm.Execute("alloc", int32(8))
	if err != nil {
		return nil, fmt.Errorf("alloc params: %w", err)
	}
	paramsPtr := paramsRes[0].(int32)
	defer vm.Execute("dealloc", paramsPtr, int32(8))

	lenRes, err := vm.Execute("inpaint", imgPtr, imgLen, maskPtr, maskLen, int32(in.Size), paramsPtr)
	if err != nil {
		return nil, fmt.Errorf("inpaint: %w", err)
	}
	if lenRes[0].(int32) == 0 {
		return nil, errors.New("zero length output")
	}

	mem := vm.GetActiveModule().FindMemory("memory")
	params, err := mem.GetData(uint(paramsPtr), 8)
	if err != nil {
		return nil, fmt.Errorf("mem params: %w", err)
	}
	outPtr, outLen := decodeParams(params)
	defer vm.Execute("dealloc", outPtr, outLen)

	data, err := mem.GetData(uint(outPtr), uint(outLen))
	if err != nil {
		return nil, fmt.Errorf("mem output: %w", err)
	}
	return inpaint.DecodeFloats(data), nil
}

// write copies b into a fresh module allocation.
func write(vm *wasmedge.VM, b []byte) (int32, int32, error) {
	n := int32(len(b))
	res, err := vm.Execute("alloc", n)
	if err != nil {
		return 0, 0, fmt.Errorf("alloc: %w", err)
	}
	ptr := res[0].(int32)
	mem := vm.GetActiveModule().FindMemory("memory")
	dst, err := mem.GetData(uint(ptr), uint(n))
	if err != nil {
		vm.Execute("dealloc", ptr, n)
		return 0, 0, fmt.Errorf("mem: %w", err)
	}
	copy(dst, b)
	return ptr, n, nil
}

func decodeParams(b []byte) (ptr, n int32) {
	return int32(binary.LittleEndian.Uint32(b[0:4])), int32(binary.LittleEndian.Uint32(b[4:8]))
}

// Close releases every VM. In-flight calls finish first.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, inst := range p.all {
		inst.release()
	}
	return nil
}
