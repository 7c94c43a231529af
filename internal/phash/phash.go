// Package phash reduces rendered pages to DCT perceptual fingerprints.
//
// The image is reduced to 8-bit luminance (alpha is ignored), resampled
// with a Lanczos-3 filter to a square of side 4*hashSize, transformed with a 2-D DCT-II and the
// top-left hashSize x hashSize block of coefficients is thresholded at its
// median, one bit per coefficient in row-major order.
package phash

import (
	"fmt"
	"image"
	"math"
	"math/bits"
	"sort"
	"strings"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/toricodesthings/docmatch/internal/raster"
)

const (
	DefaultHashSize = 16
	highFreqFactor  = 4
	hexDigits       = "0123456789abcdef"
)

// Lanczos3 is the windowed-sinc filter PIL uses for its LANCZOS resample.
// draw.Kernel widens the support when shrinking, which gives the same
// antialiasing as PIL's reduce path.
var Lanczos3 = &draw.Kernel{Support: 3, At: lanczos3}

func lanczos3(t float64) float64 {
	if t < 0 {
		t = -t
	}
	if t >= 3 {
		return 0
	}
	return sinc(t) * sinc(t/3)
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	x *= math.Pi
	return math.Sin(x) / x
}

// Fingerprint is a hashSize² bit vector. Fingerprints are only comparable
// when they share a hash size.
type Fingerprint struct {
	size  int
	words []uint64
}

func wordsFor(size int) int {
	return (size*size + 63) / 64
}

// New builds a fingerprint from packed words (bit 0 is the MSB of words[0]).
func New(size int, words []uint64) (Fingerprint, error) {
	if size < 2 {
		return Fingerprint{}, fmt.Errorf("hash size must be >= 2, got %d", size)
	}
	if len(words) != wordsFor(size) {
		return Fingerprint{}, fmt.Errorf("hash size %d needs %d words, got %d", size, wordsFor(size), len(words))
	}
	w := append([]uint64(nil), words...)
	// clear padding past the last bit
	if rem := (size * size) % 64; rem != 0 {
		w[len(w)-1] &^= uint64(1)<<(64-rem) - 1
	}
	return Fingerprint{size: size, words: w}, nil
}

// HashSize returns the side length the fingerprint was built with.
func (f Fingerprint) HashSize() int { return f.size }

// Len returns the number of bits.
func (f Fingerprint) Len() int { return f.size * f.size }

func (f Fingerprint) Bit(i int) bool {
	return f.words[i/64]>>(63-uint(i%64))&1 == 1
}

// Flip returns a copy with bit i inverted.
func (f Fingerprint) Flip(i int) Fingerprint {
	w := append([]uint64(nil), f.words...)
	w[i/64] ^= 1 << (63 - uint(i%64))
	return Fingerprint{size: f.size, words: w}
}

// String renders the bits as hex, most significant nibble first.
func (f Fingerprint) String() string {
	n := f.Len()
	var b strings.Builder
	for i := 0; i < n; i += 4 {
		var nib byte
		for j := 0; j < 4; j++ {
			nib <<= 1
			if i+j < n && f.Bit(i+j) {
				nib |= 1
			}
		}
		b.WriteByte(hexDigits[nib])
	}
	return b.String()
}

// Parse is the inverse of String.
func Parse(s string, size int) (Fingerprint, error) {
	if size < 2 {
		return Fingerprint{}, fmt.Errorf("hash size must be >= 2, got %d", size)
	}
	n := size * size
	if len(s) != (n+3)/4 {
		return Fingerprint{}, fmt.Errorf("fingerprint %q has wrong length for hash size %d", s, size)
	}
	words := make([]uint64, wordsFor(size))
	for i := 0; i < len(s); i++ {
		v := strings.IndexByte(hexDigits, lower(s[i]))
		if v < 0 {
			return Fingerprint{}, fmt.Errorf("invalid hex digit %q", s[i])
		}
		for j := 0; j < 4; j++ {
			bit := i*4 + j
			if bit >= n {
				break
			}
			if v&(8>>j) != 0 {
				words[bit/64] |= 1 << (63 - uint(bit%64))
			}
		}
	}
	return New(size, words)
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'F' {
		return c + ('a' - 'A')
	}
	return c
}

// Distance is the Hamming distance between a and b.
func Distance(a, b Fingerprint) (int, error) {
	if a.size != b.size || len(a.words) != len(b.words) {
		return 0, fmt.Errorf("fingerprint sizes differ: %d vs %d", a.size, b.size)
	}
	d := 0
	for i := range a.words {
		d += bits.OnesCount64(a.words[i] ^ b.words[i])
	}
	return d, nil
}

// Hash computes the perceptual fingerprint of img.
func Hash(img raster.PageImage, hashSize int) (Fingerprint, error) {
	if hashSize < 2 {
		return Fingerprint{}, fmt.Errorf("hash size must be >= 2, got %d", hashSize)
	}
	gray, err := luminance(img)
	if err != nil {
		return Fingerprint{}, err
	}

	n := hashSize * highFreqFactor
	small := image.NewGray(image.Rect(0, 0, n, n))
	Lanczos3.Scale(small, small.Bounds(), gray, gray.Bounds(), draw.Src, nil)

	coef := make([]float64, n*n)
	for y := 0; y < n; y++ {
		row := small.Pix[y*small.Stride : y*small.Stride+n]
		for x, v := range row {
			coef[y*n+x] = float64(v)
		}
	}
	dct2(coef, n)

	low := make([]float64, 0, hashSize*hashSize)
	for y := 0; y < hashSize; y++ {
		low = append(low, coef[y*n:y*n+hashSize]...)
	}
	med := median(low)

	words := make([]uint64, wordsFor(hashSize))
	for i, c := range low {
		if c > med {
			words[i/64] |= 1 << (63 - uint(i%64))
		}
	}
	return Fingerprint{size: hashSize, words: words}, nil
}

// luminance converts to 8-bit gray with ITU-R 601-2 weights. The alpha
// channel is dropped so RGB and RGBA renders of the same pixels agree.
func luminance(img raster.PageImage) (*image.Gray, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("empty image %dx%d", img.Width, img.Height)
	}
	ch := img.Channels
	if ch != 3 && ch != 4 {
		return nil, fmt.Errorf("unsupported channel count %d", ch)
	}
	if len(img.Pix) < img.Width*img.Height*ch {
		return nil, fmt.Errorf("pixel buffer too short: %d < %d", len(img.Pix), img.Width*img.Height*ch)
	}

	gray := image.NewGray(image.Rect(0, 0, img.Width, img.Height))
	for i, j := 0, 0; j < len(gray.Pix); i, j = i+ch, j+1 {
		r, g, b := uint32(img.Pix[i]), uint32(img.Pix[i+1]), uint32(img.Pix[i+2])
		gray.Pix[j] = uint8((r*19595 + g*38470 + b*7471 + 1<<15) >> 16)
	}
	return gray, nil
}

// dct2 applies a separable DCT-II in place to an n x n row-major matrix.
func dct2(m []float64, n int) {
	t := fourier.NewDCT(n)
	src := make([]float64, n)
	dst := make([]float64, n)

	for y := 0; y < n; y++ {
		copy(src, m[y*n:(y+1)*n])
		t.Transform(dst, src)
		copy(m[y*n:(y+1)*n], dst)
	}
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			src[y] = m[y*n+x]
		}
		t.Transform(dst, src)
		for y := 0; y < n; y++ {
			m[y*n+x] = dst[y]
		}
	}
}

func median(v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	k := len(s) / 2
	if len(s)%2 == 0 {
		return (s[k-1] + s[k]) / 2
	}
	return s[k]
}
