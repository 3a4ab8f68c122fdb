package vision

import (
	"image"
	"math"
)

// BlurSigma is the standard deviation of the 3x3 Gaussian applied after sharpening.
const BlurSigma = 0.5

// sharpenKernel is the 3x3 sharpening kernel, row-major.
var sharpenKernel = [9]int{
	-1, -1, -1,
	-1, 9, -1,
	-1, -1, -1,
}

// Enhance prepares a grayscale frame for the recognition model:
// histogram equalization, 3x3 sharpening, then a 3x3 Gaussian blur (sigma 0.5).
// The recognizer was trained on frames with these statistics; keep the order and kernels.
// src is not modified.
func Enhance(src *image.Gray) *image.Gray {
	return GaussianBlur3x3(Sharpen(EqualizeHist(src)), BlurSigma)
}

// EqualizeHist stretches the frame's intensity histogram over 0..255 using its CDF.
// A single-intensity frame is returned unchanged.
func EqualizeHist(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	total := w * h
	if total == 0 {
		return dst
	}

	var hist [256]int
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for _, v := range row {
			hist[v]++
		}
	}

	first := 0
	for hist[first] == 0 {
		first++
	}

	var lut [256]uint8
	if hist[first] == total {
		for i := range lut {
			lut[i] = uint8(first)
		}
	} else {
		scale := 255.0 / float64(total-hist[first])
		sum := 0
		for i := first + 1; i < 256; i++ {
			sum += hist[i]
			lut[i] = clampRound(float64(sum) * scale)
		}
	}

	for y := 0; y < h; y++ {
		in := src.Pix[y*src.Stride : y*src.Stride+w]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x, v := range in {
			out[x] = lut[v]
		}
	}
	return dst
}

// Sharpen convolves with the 9/-1 kernel, saturating to 0..255.
func Sharpen(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0
			k := 0
			for dy := -1; dy <= 1; dy++ {
				sy := reflect101(y+dy, h)
				for dx := -1; dx <= 1; dx++ {
					sx := reflect101(x+dx, w)
					acc += sharpenKernel[k] * int(src.Pix[sy*src.Stride+sx])
					k++
				}
			}
			dst.Pix[y*dst.Stride+x] = clampInt(acc)
		}
	}
	return dst
}

// GaussianBlur3x3 applies a separable 3x3 Gaussian with the given sigma.
func GaussianBlur3x3(src *image.Gray, sigma float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}
	k := GaussianKernel3(sigma)

	// horizontal pass kept in float to round once
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			tmp[y*w+x] = k[0]*float64(row[reflect101(x-1, w)]) +
				k[1]*float64(row[x]) +
				k[2]*float64(row[reflect101(x+1, w)])
		}
	}
	for y := 0; y < h; y++ {
		up, down := reflect101(y-1, h), reflect101(y+1, h)
		for x := 0; x < w; x++ {
			v := k[0]*tmp[up*w+x] + k[1]*tmp[y*w+x] + k[2]*tmp[down*w+x]
			dst.Pix[y*dst.Stride+x] = clampRound(v)
		}
	}
	return dst
}

// GaussianKernel3 returns the normalized 1-D 3-tap Gaussian for sigma.
func GaussianKernel3(sigma float64) [3]float64 {
	side := math.Exp(-1 / (2 * sigma * sigma))
	sum := 1 + 2*side
	return [3]float64{side / sum, 1 / sum, side / sum}
}

// reflect101 mirrors an out-of-range index without repeating the edge (dcb|abcd|cba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		} else {
			i = 2*n - 2 - i
		}
	}
	return i
}

func clampInt(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clampRound(v float64) uint8 {
	return clampInt(int(math.RoundToEven(v)))
}
