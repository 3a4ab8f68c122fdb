package vision

import (
	"bytes"
	"image"
	"math"
	"testing"
)

func grayFrom(w, h int, pix []uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, pix)
	return img
}

func uniform(w, h int, v uint8) *image.Gray {
	pix := make([]uint8, w*h)
	for i := range pix {
		pix[i] = v
	}
	return grayFrom(w, h, pix)
}

func TestEqualizeHist_TwoLevels(t *testing.T) {
	src := grayFrom(4, 1, []uint8{10, 10, 200, 200})
	got := EqualizeHist(src)

	expected := []uint8{0, 0, 255, 255}
	if !bytes.Equal(got.Pix, expected) {
		t.Errorf("Expected %v, got %v", expected, got.Pix)
	}
}

func TestEqualizeHist_ThreeLevels(t *testing.T) {
	// hist: 50->1, 100->2, 150->1; scale = 255/3
	src := grayFrom(4, 1, []uint8{50, 100, 100, 150})
	got := EqualizeHist(src)

	expected := []uint8{0, 170, 170, 255}
	if !bytes.Equal(got.Pix, expected) {
		t.Errorf("Expected %v, got %v", expected, got.Pix)
	}
}

func TestEqualizeHist_Constant(t *testing.T) {
	src := uniform(3, 3, 77)
	got := EqualizeHist(src)
	if !bytes.Equal(got.Pix, src.Pix) {
		t.Errorf("Expected constant frame unchanged, got %v", got.Pix)
	}
}

func TestSharpen_UniformUnchanged(t *testing.T) {
	src := uniform(5, 4, 120)
	got := Sharpen(src)
	if !bytes.Equal(got.Pix, src.Pix) {
		t.Errorf("Expected uniform frame unchanged by sharpening, got %v", got.Pix)
	}
}

func TestSharpen_Saturates(t *testing.T) {
	src := grayFrom(3, 3, []uint8{
		0, 0, 0,
		0, 100, 0,
		0, 0, 0,
	})
	got := Sharpen(src)

	if got.Pix[4] != 255 {
		t.Errorf("Expected center saturated to 255, got %d", got.Pix[4])
	}
	for i, v := range got.Pix {
		if i != 4 && v != 0 {
			t.Errorf("Expected neighbor %d clamped to 0, got %d", i, v)
		}
	}
}

func TestSharpen_Gradient(t *testing.T) {
	// Row 10,20,30 repeated; middle pixel: 9*20 - (10+30)*3 - 20*2 = 20
	src := grayFrom(3, 3, []uint8{
		10, 20, 30,
		10, 20, 30,
		10, 20, 30,
	})
	got := Sharpen(src)
	if got.Pix[4] != 20 {
		t.Errorf("Expected 20 at center, got %d", got.Pix[4])
	}
	// Left edge mirrors column 1: 9*10 - 6*20 - 2*10 = -50, clamped to 0
	if got.Pix[3] != 0 {
		t.Errorf("Expected 0 at left edge, got %d", got.Pix[3])
	}
}

func TestGaussianKernel3(t *testing.T) {
	k := GaussianKernel3(0.5)
	if math.Abs(k[0]+k[1]+k[2]-1) > 1e-12 {
		t.Errorf("Expected kernel to sum to 1, got %v", k)
	}
	if math.Abs(k[0]-0.10650698) > 1e-6 || math.Abs(k[1]-0.78698604) > 1e-6 {
		t.Errorf("Unexpected kernel weights %v", k)
	}
}

func TestGaussianBlur_UniformUnchanged(t *testing.T) {
	src := uniform(4, 4, 200)
	got := GaussianBlur3x3(src, BlurSigma)
	if !bytes.Equal(got.Pix, src.Pix) {
		t.Errorf("Expected uniform frame unchanged by blur, got %v", got.Pix)
	}
}

func TestGaussianBlur_Impulse(t *testing.T) {
	src := grayFrom(3, 3, []uint8{
		0, 0, 0,
		0, 255, 0,
		0, 0, 0,
	})
	got := GaussianBlur3x3(src, BlurSigma)
	// center: 255 * 0.787^2 = 157.9
	if got.Pix[4] != 158 {
		t.Errorf("Expected 158 at center, got %d", got.Pix[4])
	}
	if got.Pix[1] != got.Pix[3] || got.Pix[0] != got.Pix[8] {
		t.Errorf("Expected symmetric blur, got %v", got.Pix)
	}
}

func TestEnhance_Deterministic(t *testing.T) {
	pix := make([]uint8, 32*24)
	for i := range pix {
		pix[i] = uint8((i * 37) % 251)
	}
	src := grayFrom(32, 24, pix)
	orig := append([]uint8(nil), src.Pix...)

	a := Enhance(src)
	b := Enhance(src)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("Expected identical output for identical input")
	}
	if !bytes.Equal(src.Pix, orig) {
		t.Error("Expected source frame untouched")
	}
	if a.Rect != src.Rect {
		t.Errorf("Expected same bounds, got %v", a.Rect)
	}
}

func TestEnhance_SubImage(t *testing.T) {
	full := uniform(8, 8, 0)
	for i := range full.Pix {
		full.Pix[i] = uint8(i * 3)
	}
	sub := full.SubImage(image.Rect(2, 2, 6, 6)).(*image.Gray)
	compact := ToGray(sub)

	a := Enhance(sub)
	b := Enhance(compact)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("Expected sub-image and compacted copy to enhance identically")
	}
}

func TestReflect101(t *testing.T) {
	cases := []struct{ i, n, want int }{
		{-1, 5, 1}, {0, 5, 0}, {5, 5, 3}, {6, 5, 2}, {-1, 1, 0}, {1, 2, 0},
	}
	for _, c := range cases {
		if got := reflect101(c.i, c.n); got != c.want {
			t.Errorf("reflect101(%d, %d) = %d, want %d", c.i, c.n, got, c.want)
		}
	}
}
