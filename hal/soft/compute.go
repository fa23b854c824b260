package soft

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// parallel splits [0, n) into contiguous chunks and runs fn on up to
// workers goroutines. A panic in fn is reported as a device fault.
func parallel(n, workers int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunks := min(n, workers*4)
	size := (n + chunks - 1) / chunks

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = faultf("soft: kernel panicked: %v", r)
				}
			}()
			return fn(lo, hi)
		})
	}
	return g.Wait()
}

// dispatch runs groups[0]*groups[1]*groups[2] workgroups of the bound
// compute pipeline. Invocations inside a workgroup run sequentially.
func (s *execState) dispatch(groups [3]int) error {
	p := s.cp
	wg := p.desc.WorkgroupSize
	total := groups[0] * groups[1] * groups[2]
	sets := s.sets
	return parallel(total, s.dev.workers(), func(lo, hi int) error {
		inv := Invocation{sets: sets}
		for g := lo; g < hi; g++ {
			gid := [3]uint32{
				uint32(g % groups[0]),
				uint32(g / groups[0] % groups[1]),
				uint32(g / (groups[0] * groups[1])),
			}
			inv.WorkgroupID = gid
			for z := 0; z < wg[2]; z++ {
				for y := 0; y < wg[1]; y++ {
					for x := 0; x < wg[0]; x++ {
						inv.LocalID = [3]uint32{uint32(x), uint32(y), uint32(z)}
						inv.GlobalID = [3]uint32{
							gid[0]*uint32(wg[0]) + uint32(x),
							gid[1]*uint32(wg[1]) + uint32(y),
							gid[2]*uint32(wg[2]) + uint32(z),
						}
						p.kernel(&inv)
					}
				}
			}
		}
		return nil
	})
}
