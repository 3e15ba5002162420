package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"runtime"
)

const iconSize = 32

func trayIcon() []byte {
	return iconFor(runtime.GOOS)
}

// iconFor returns PNG bytes, wrapped in an ICO container on Windows.
func iconFor(goos string) []byte {
	img := renderIcon(iconSize)
	if goos == "windows" {
		return wrapICO(img, iconSize)
	}
	return img
}

// renderIcon draws a dark disc with a cyan ring and a cyan core.
func renderIcon(size int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cyan := color.RGBA{R: 0, G: 229, B: 255, A: 255}
	dark := color.RGBA{R: 5, G: 8, B: 12, A: 255}

	c := float64(size) / 2
	outer := c - 1
	ring := outer - float64(size)/10
	core := float64(size) / 6
	for y := range size {
		for x := range size {
			d := math.Hypot(float64(x)+0.5-c, float64(y)+0.5-c)
			switch {
			case d <= core:
				img.Set(x, y, cyan)
			case d <= ring:
				img.Set(x, y, dark)
			case d <= outer:
				img.Set(x, y, cyan)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic("encode tray icon: " + err.Error())
	}
	return buf.Bytes()
}

// wrapICO stores one PNG image in an ICO container.
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	// ICONDIR: reserved, type 1 (icon), one image.
	_ = binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1})

	dim := byte(size)
	if size >= 256 {
		dim = 0
	}
	buf.Write([]byte{dim, dim, 0, 0})
	_ = binary.Write(&buf, binary.LittleEndian, [2]uint16{1, 32})
	_ = binary.Write(&buf, binary.LittleEndian, [2]uint32{uint32(len(pngData)), 6 + 16})
	buf.Write(pngData)
	return buf.Bytes()
}
