package render

// Image is a square row-major float64 raster. Row index follows y, column
// index follows x.
type Image struct {
	N   int
	Pix []float64
}

// NewImage allocates a zeroed n×n image.
func NewImage(n int) *Image {
	return &Image{N: n, Pix: make([]float64, n*n)}
}

// At returns the value at row r, column c.
func (m *Image) At(r, c int) float64 { return m.Pix[r*m.N+c] }

// Clear zeroes every pixel.
func (m *Image) Clear() {
	clear(m.Pix)
}

// Sum returns the total mass in the image.
func (m *Image) Sum() float64 {
	var s float64
	for _, v := range m.Pix {
		s += v
	}
	return s
}

// Max returns the largest pixel value, or 0 for an empty image.
func (m *Image) Max() float64 {
	var mx float64
	for _, v := range m.Pix {
		if v > mx {
			mx = v
		}
	}
	return mx
}
