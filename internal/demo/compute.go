package demo

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkq"
	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/internal/shaders"
)

// MultiplyResult is the output of one multiply run.
type MultiplyResult struct {
	Values  []uint32
	Groups  int
	Elapsed time.Duration
}

// Sequence returns 0, 1, ..., n-1.
func Sequence(n int) []uint32 {
	s := make([]uint32, n)
	for i := range s {
		s[i] = uint32(i)
	}
	return s
}

// Multiply uploads in, scales every element by k on the device and reads
// the result back. timeout bounds the wait for the dispatch.
func Multiply(d *vkq.Device, in []uint32, k uint32, timeout time.Duration) (MultiplyResult, error) {
	var res releaser
	defer res.release()

	data, err := vkq.CreateBufferFrom(d, "multiply data", hal.BufferStorage, in)
	if err != nil {
		return MultiplyResult{}, err
	}
	res.add(data)
	params, err := vkq.CreateBufferFrom(d, "multiply params", hal.BufferUniform, []uint32{k})
	if err != nil {
		return MultiplyResult{}, err
	}
	res.add(params)

	mod, err := shaders.Load(d, shaders.Multiply)
	if err != nil {
		return MultiplyResult{}, err
	}
	res.add(mod)
	entry, err := mod.Entry("main")
	if err != nil {
		return MultiplyResult{}, err
	}
	p, err := vkq.BuildComputePipeline(d, "multiply", entry)
	if err != nil {
		return MultiplyResult{}, err
	}
	res.add(p)
	set, err := vkq.BindDescriptorSet(p, 0, vkq.BufferBinding(0, data), vkq.BufferBinding(1, params))
	if err != nil {
		return MultiplyResult{}, err
	}
	res.add(set)

	groups := (len(in) + shaders.MultiplyWorkgroupSize - 1) / shaders.MultiplyWorkgroupSize
	cl, err := vkq.NewCommandListBuilder(d, d.Family()).
		Dispatch(p, [3]int{groups, 1, 1}, set).
		Build()
	if err != nil {
		return MultiplyResult{}, err
	}
	res.add(cl)

	start := time.Now()
	f, err := d.Queue().Submit(cl, nil)
	if err != nil {
		return MultiplyResult{}, err
	}
	if err := f.Wait(timeout); err != nil {
		if errors.Is(err, vkq.ErrTimeout) {
			// Resources are still referenced by the dispatch.
			err = errors.CombineErrors(err, d.WaitIdle())
		}
		return MultiplyResult{}, err
	}
	elapsed := time.Since(start)

	out, err := vkq.ReadElements[uint32](data)
	if err != nil {
		return MultiplyResult{}, err
	}
	vkq.Logger().Info("demo: multiply done", "elements", len(out), "groups", groups, "elapsed", elapsed)
	return MultiplyResult{Values: out, Groups: groups, Elapsed: elapsed}, nil
}

// VerifyMultiply checks out[i] == in[i]*k and reports the first mismatch.
func VerifyMultiply(in, out []uint32, k uint32) error {
	if len(in) != len(out) {
		return errors.Newf("multiply: %d results for %d inputs", len(out), len(in))
	}
	for i := range in {
		if want := in[i] * k; out[i] != want {
			return errors.Newf("multiply: element %d is %d, want %d", i, out[i], want)
		}
	}
	return nil
}
