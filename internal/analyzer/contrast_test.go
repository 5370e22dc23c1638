package analyzer

import (
	"image"
	"image/color"
	"testing"
)

func TestContrastDetectorFindsHighContrastRegion(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	// White square on black: its border is the only edge content.
	for y := 50; y < 150; y++ {
		for x := 50; x < 150; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	rois, err := NewContrastDetector().Detect(img)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(rois) == 0 {
		t.Fatal("expected at least one region")
	}
	r := rois[0]
	if r.Dx() < 80 || r.Dy() < 80 {
		t.Errorf("region too small: %v", r)
	}
	if !r.In(img.Bounds().Inset(-1)) {
		t.Errorf("region %v outside image bounds", r)
	}
}

func TestContrastDetectorFlatImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 120, 120))
	rois, err := NewContrastDetector().Detect(img)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(rois) != 0 {
		t.Errorf("flat image produced regions: %v", rois)
	}
}

func TestContrastDetectorIgnoresTinySpeckles(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	img.SetGray(20, 20, color.Gray{Y: 255})
	img.SetGray(180, 170, color.Gray{Y: 255})

	d := NewContrastDetector()
	rois, err := d.Detect(img)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range rois {
		if r.Dx()*r.Dy() < d.MinRegionArea {
			t.Errorf("region %v below the minimum area survived", r)
		}
	}
}

func TestNewDetectorVariants(t *testing.T) {
	tests := []struct {
		variant string
		wantErr bool
	}{
		{"contrast", false},
		{"", false},
		{"none", false},
		{"ocr", true},
	}
	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			d, err := New(tt.variant)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) err = %v", tt.variant, err)
			}
			if !tt.wantErr && d == nil {
				t.Error("nil detector")
			}
		})
	}
}

func TestNopDetector(t *testing.T) {
	rois, err := Nop{}.Detect(image.NewGray(image.Rect(0, 0, 10, 10)))
	if err != nil || rois != nil {
		t.Errorf("Nop.Detect = %v, %v", rois, err)
	}
}
