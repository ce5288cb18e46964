package subprocess

import (
	"io"

	"github.com/jrepp/prism-subprocess/pkg/pipe"
)

// pump moves bytes between one caller-owned object and one parent pipe end.
// It owns that end and closes it exactly once, however it finishes.
type pump struct {
	stream stream
	run    func() (int64, error)
}

// sourcePump copies src into h, then closes h so the child sees EOF.
func sourcePump(s stream, h pipe.Handle, src io.Reader) pump {
	return pump{
		stream: s,
		run: func() (int64, error) {
			defer pipe.Close(h)
			return io.Copy(pipe.NewWriter(h), src)
		},
	}
}

// sinkPump copies h into dst until the child closes its end, then closes h.
func sinkPump(s stream, h pipe.Handle, dst io.Writer) pump {
	return pump{
		stream: s,
		run: func() (int64, error) {
			defer pipe.Close(h)
			return io.Copy(dst, pipe.NewReader(h))
		},
	}
}

// startPumps launches one goroutine per pump. Transfer errors only mean the
// stream closed early, so they are logged and otherwise dropped.
func (p *Process) startPumps(pumps []pump) {
	for _, pm := range pumps {
		p.pumps.Add(1)
		go func(pm pump) {
			defer p.pumps.Done()

			n, err := pm.run()
			p.metrics.BytesPumped(p.program, pm.stream.String(), n)
			if err != nil {
				p.logger.Debug("stream pump stopped early",
					"process_id", p.ID,
					"stream", pm.stream.String(),
					"bytes", n,
					"error", err)
			}
		}(pm)
	}
}
