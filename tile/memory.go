package tile

import (
	"fmt"

	"github.com/wgdzlh/segtile/grid"
)

// 内存影像，像素按行优先存放，每个波段一个切片
type Memory struct {
	meta Meta
	pix  [][]float64
}

func NewMemory(meta Meta, pix [][]float64) (*Memory, error) {
	if len(pix) != meta.Bands {
		return nil, fmt.Errorf("%w: %d bands for %d declared", ErrShortRead, len(pix), meta.Bands)
	}
	for i, b := range pix {
		if len(b) != meta.Width*meta.Height {
			return nil, fmt.Errorf("%w: band %d", ErrTemplateSize, i+1)
		}
	}
	return &Memory{meta: meta, pix: pix}, nil
}

func (m *Memory) Meta() Meta {
	return m.meta
}

func (m *Memory) ReadWindow(w grid.Window, bands []int) ([][]float64, error) {
	out := make([][]float64, len(bands))
	for i, b := range bands {
		if b < 1 || b > m.meta.Bands {
			return nil, fmt.Errorf("%w: %d", ErrBandIndex, b)
		}
		src := m.pix[b-1]
		dst := make([]float64, 0, w.Width*w.Height)
		for y := w.YOff; y < w.YOff+w.Height; y++ {
			row := y * m.meta.Width
			dst = append(dst, src[row+w.XOff:row+w.XOff+w.Width]...)
		}
		out[i] = dst
	}
	return out, nil
}
