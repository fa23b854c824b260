// Package demo holds the scenarios the command line runs: the compute
// multiply, the offscreen triangle and the presented triangle. Each one
// works on any backend; the tests drive them on the software backend.
package demo

import (
	"github.com/celer/vkq"
)

type destroyer interface {
	Destroy() error
}

// releaser destroys what it holds in reverse order of adding.
type releaser []destroyer

func (r *releaser) add(d destroyer) { *r = append(*r, d) }

func (r *releaser) release() {
	for i := len(*r) - 1; i >= 0; i-- {
		if err := (*r)[i].Destroy(); err != nil {
			vkq.Logger().Warn("demo: release", "err", err)
		}
	}
	*r = nil
}
