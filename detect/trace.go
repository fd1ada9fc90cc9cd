package detect

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/disintegration/imaging"
)

// trace writes a PNG of the current working grid to the trace directory.
// Called for frames that open a new excursion. Failures are logged, never
// fatal; tracing is a debugging aid.
func (d *detector) trace(ts time.Time, samples []float64) {
	img := image.NewGray16(image.Rect(0, 0, d.width, d.height))
	for i, v := range samples {
		s := int(v)
		if s < 0 {
			s = 0
		}
		if s > 0xffff {
			s = 0xffff
		}
		img.Pix[2*i] = uint8(s >> 8)
		img.Pix[2*i+1] = uint8(s)
	}

	// Upscale tiny sensor grids so the trace is viewable.
	var out image.Image = img
	if d.width < 128 && d.height < 128 {
		scale := 128 / d.width
		if 128/d.height > scale {
			scale = 128 / d.height
		}
		out = imaging.Resize(img, d.width*scale, d.height*scale, imaging.NearestNeighbor)
	}

	d.traceN++
	path := fmt.Sprintf("%s/excursion-%04d-%d.png", d.cfg.TraceDir, d.traceN, ts.UnixNano())
	f, err := os.Create(path)
	if err != nil {
		d.logf("trace, creating %s: %v", path, err)
		return
	}
	defer f.Close()
	if err := png.Encode(f, out); err != nil {
		d.logf("trace, encoding png: %v", err)
		return
	}
	d.logf("trace %s", path)
}
