package vkq_test

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkq"
	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/hal/soft"
)

// paintModule writes 0xab over the storage image at binding 0, one
// texel per invocation, and faults once the first texel is written.
func paintModule() *soft.Module {
	return &soft.Module{
		Name: "paint",
		Compute: map[string]soft.ComputeFunc{
			"paint": func(inv *soft.Invocation) {
				i := int(inv.GlobalID[0])
				copy(inv.Image(0, 0)[4*i:4*i+4], []byte{0xab, 0xab, 0xab, 0xab})
				if i == 0 {
					panic("paint fault")
				}
			},
		},
	}
}

func faultingPaint(t *testing.T, d *vkq.Device, img *vkq.Image) *vkq.CommandList {
	t.Helper()
	m, err := vkq.LoadShaderModule(d, vkq.ShaderModuleDesc{
		Code: soft.ModuleBlob("paint"),
		Entries: []vkq.EntryPoint{{
			Name:          "paint",
			Stage:         hal.StageCompute,
			Descriptors:   []hal.DescriptorDecl{{Set: 0, Binding: 0, Type: hal.DescStorageImage}},
			WorkgroupSize: [3]int{1, 1, 1},
		}},
	})
	require.NoError(t, err)
	p, err := vkq.BuildComputePipeline(d, "paint", m.MustEntry("paint"))
	require.NoError(t, err)
	set, err := vkq.BindDescriptorSet(p, 0, vkq.ImageBinding(0, img))
	require.NoError(t, err)
	texels := img.Extent().Width * img.Extent().Height
	cl, err := vkq.Record(d, nil, vkq.Dispatch{Pipeline: p, DescriptorSets: []*vkq.DescriptorSet{set}, GroupCounts: [3]int{texels, 1, 1}})
	require.NoError(t, err)
	return cl
}

func clearList(t *testing.T, d *vkq.Device, img *vkq.Image, color hal.ClearValue) *vkq.CommandList {
	t.Helper()
	pass, err := vkq.CreateRenderPass(d, vkq.SinglePass(img.Format(), hal.LayoutTransferSrc))
	require.NoError(t, err)
	fb, err := vkq.CreateFramebuffer(d, "", pass, img)
	require.NoError(t, err)
	cl, err := vkq.NewCommandListBuilder(d, nil).BeginRenderPass(fb, color).EndRenderPass().Build()
	require.NoError(t, err)
	return cl
}

func submitAndWait(t *testing.T, q *vkq.Queue, cl *vkq.CommandList, after *vkq.Future) error {
	t.Helper()
	f, err := q.Submit(cl, after)
	require.NoError(t, err)
	return f.Wait(vkq.Forever)
}

func TestFaultedImageIsNotReadBack(t *testing.T) {
	d, q := open(t, nil, soft.WithModules(paintModule()))
	img, err := vkq.CreateImage(d, vkq.ImageDesc{
		Label:  "canvas",
		Extent: hal.Extent2D(2, 2),
		Format: hal.FormatRGBA8Unorm,
		Usage:  hal.ImageStorage | hal.ImageTransferSrc | hal.ImageColorAttachment,
	}, nil)
	require.NoError(t, err)

	f, err := q.Submit(faultingPaint(t, d, img), nil)
	require.NoError(t, err)
	err = f.Wait(vkq.Forever)
	require.True(t, errors.Is(err, vkq.ErrSubmissionFaulted), "%v", err)
	st, _ := f.Status()
	assert.Equal(t, vkq.FutureFaulted, st)
	assert.True(t, img.Undefined())

	pixels, err := vkq.ReadbackImage(img, nil)
	assert.True(t, errors.Is(err, vkq.ErrSubmissionFaulted), "%v", err)
	assert.Nil(t, pixels)

	// A copy that succeeds carries the undefined contents with it.
	rb, err := vkq.CreateBuffer(d, vkq.BufferDesc{Usage: hal.BufferTransferDst, HostVisible: true, Size: img.ByteSize()})
	require.NoError(t, err)
	copyList, err := vkq.Record(d, nil, vkq.CopyImageToBuffer{Image: img, Buffer: rb})
	require.NoError(t, err)
	require.NoError(t, submitAndWait(t, q, copyList, nil))
	assert.True(t, rb.Undefined())
	_, err = rb.Read()
	assert.True(t, errors.Is(err, vkq.ErrSubmissionFaulted), "%v", err)

	// Clearing the whole image defines it again, and the same copy now
	// defines the buffer.
	require.NoError(t, submitAndWait(t, q, clearList(t, d, img, hal.ClearValue{0, 1, 0, 1}), nil))
	assert.False(t, img.Undefined())
	pixels, err = vkq.ReadbackImage(img, nil)
	require.NoError(t, err)
	green := bytes.Repeat([]byte{0, 255, 0, 255}, 4)
	assert.Equal(t, green, pixels)

	require.NoError(t, submitAndWait(t, q, copyList, nil))
	assert.False(t, rb.Undefined())
	data, err := rb.Read()
	require.NoError(t, err)
	assert.Equal(t, green, data)
}

func TestSuccessfulResubmitDefinesCopyDestination(t *testing.T) {
	s := newScene(t, 8)
	q := s.d.Queue()
	bad := newKernelJob(t, s.d, s.k.load(t, s.d), "fault", sequence(4))
	copyList, err := vkq.Record(s.d, nil, vkq.CopyImageToBuffer{Image: s.img, Buffer: s.readback})
	require.NoError(t, err)

	// A readback larger than the image is never fully rewritten by it.
	wide, err := vkq.CreateBuffer(s.d, vkq.BufferDesc{Usage: hal.BufferTransferDst, HostVisible: true, Size: 2 * s.img.ByteSize()})
	require.NoError(t, err)
	wideCopy, err := vkq.Record(s.d, nil, vkq.CopyImageToBuffer{Image: s.img, Buffer: wide})
	require.NoError(t, err)

	require.NoError(t, submitAndWait(t, q, clearList(t, s.d, s.img, hal.ClearValue{1, 1, 0, 1}), nil))

	f, err := q.Submit(bad.list, nil)
	require.NoError(t, err)
	f, err = f.ThenExecute(copyList)
	require.NoError(t, err)
	f, err = f.ThenExecute(wideCopy)
	require.NoError(t, err)
	err = f.Wait(vkq.Forever)
	require.True(t, errors.Is(err, vkq.ErrSubmissionFaulted), "%v", err)
	assert.False(t, s.img.Undefined(), "the faulting kernel never wrote the image")
	_, err = s.readback.Read()
	require.True(t, errors.Is(err, vkq.ErrSubmissionFaulted), "%v", err)

	// Resubmitting the copy alone recovers.
	require.NoError(t, submitAndWait(t, q, copyList, nil))
	data, err := s.readback.Read()
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{255, 255, 0, 255}, 64), data)

	require.NoError(t, submitAndWait(t, q, wideCopy, nil))
	assert.True(t, wide.Undefined(), "bytes past the image were not rewritten")
}
