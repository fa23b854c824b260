/*
Package vkq is a small GPU command-submission layer. It picks a device, allocates
buffers and images on it, builds pipelines, records immutable command lists and
submits them to a queue, and gives the host a way to wait for the results so
computed buffers can be read back or rendered frames presented.

The package does not talk to a driver directly. Every device operation goes
through the hal package, which has a Vulkan implementation (hal/vulkan) and a
CPU implementation (hal/soft). The CPU backend makes the whole layer usable and
testable on machines without a GPU.

Lifecycle

 1. Pick a backend (hal.Open or hal.Default) and call ResolveDevice
 2. Create buffers and images on the returned Device
 3. Load shader modules and build pipelines
 4. Bind descriptor sets for the pipeline's declared slots
 5. Record a CommandList with Record or a CommandListBuilder
 6. Submit it on the Queue and Wait on the returned Future
 7. Read buffers back, or present the image and repeat

# Ownership

The Device is the longest-lived owner. Resources may be destroyed individually,
but anything still alive when Device.Destroy runs is torn down there in reverse
dependency order. Pipelines are shared by reference counting.

A resource referenced by a submitted CommandList is in flight until the Future
of that submission is observed to have retired (Wait, WaitContext, Status or
Queue.WaitIdle). Host access to an in-flight buffer and destruction of an
in-flight resource fail with ErrResourceBusy.

# Sequencing

Submissions return a Future. Futures chain: an "image acquired" future is
followed by a submission, which is followed by a present, which is followed by
a fence signal. Each stage starts on the device once its predecessor is
scheduled; only Wait blocks the host.

# Errors

Every failure is classified by one of the Err* sentinels and carries the stage
and resource it came from, so errors.Is works on the result of any call.
*/
package vkq
