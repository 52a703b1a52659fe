//go:build linux

package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/tiff"

	"github.com/gogpu/drmcolor/tonemap"
)

// toneMapTIFF runs one frame through a session on the named driver. The
// frame is packed into XRGB2101010 in a memfd, the way a compositor hands
// a dma-buf to the session.
func toneMapTIFF(ctx context.Context, driver, inPath, outPath string, req tonemap.Request) error {
	img, err := readTIFF(inPath)
	if err != nil {
		return err
	}
	b := img.Bounds()

	drv, err := tonemap.Open(driver)
	if err != nil {
		return err
	}
	session, err := tonemap.NewSession(drv, tonemap.Config{MaxWidth: b.Dx(), MaxHeight: b.Dy()})
	if err != nil {
		return err
	}
	queue := tonemap.NewQueue(session, 1)
	defer func() { _ = queue.Close() }()

	in, err := packFrame(img)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := queue.ToneMap(ctx, in, req)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	res, err := unpackFrame(out)
	if err != nil {
		return err
	}
	return writeTIFF(outPath, res)
}

func readTIFF(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func writeTIFF(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// packFrame copies img into a linear XRGB2101010 buffer backed by a memfd.
func packFrame(img image.Image) (*tonemap.Buffer, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pitch := w * tonemap.BytesPerPixel
	mem := tonemap.SystemMemory{}

	fd, err := mem.Alloc("hdrprobe-frame", pitch*h)
	if err != nil {
		return nil, err
	}
	buf := &tonemap.Buffer{
		Width:     w,
		Height:    h,
		Format:    tonemap.FormatXRGB2101010,
		NumPlanes: 1,
	}
	buf.Planes[0] = tonemap.Plane{Fd: fd, Stride: uint32(pitch)} //nolint:gosec // bounded by the image size

	data, err := mem.Map(fd, pitch*h)
	if err != nil {
		_ = buf.Close()
		return nil, err
	}
	defer func() { _ = mem.Unmap(data) }()

	f := buf.Format
	for y := range h {
		row := data[y*pitch:]
		for x := range w {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			px := f.Pack(uint32(c.R>>6), uint32(c.G>>6), uint32(c.B>>6), 3)
			putPixel(row[x*tonemap.BytesPerPixel:], px)
		}
	}
	return buf, nil
}

// unpackFrame reads a tone-mapped buffer into a 16-bit image.
func unpackFrame(buf *tonemap.Buffer) (image.Image, error) {
	p := buf.Planes[0]
	pitch := int(p.Stride)
	size := int(p.Offset) + pitch*buf.Height
	mem := tonemap.SystemMemory{}
	data, err := mem.Map(p.Fd, size)
	if err != nil {
		return nil, err
	}
	defer func() { _ = mem.Unmap(data) }()

	img := image.NewNRGBA64(image.Rect(0, 0, buf.Width, buf.Height))
	for y := range buf.Height {
		row := data[int(p.Offset)+y*pitch:]
		for x := range buf.Width {
			r, g, b, _ := buf.Format.Unpack(getPixel(row[x*tonemap.BytesPerPixel:]))
			img.SetNRGBA64(x, y, color.NRGBA64{R: expand10(r), G: expand10(g), B: expand10(b), A: 0xffff})
		}
	}
	return img, nil
}

// expand10 widens a 10-bit code to 16 bits by bit replication.
func expand10(v uint32) uint16 {
	return uint16(v<<6 | v>>4) //nolint:gosec // v is a 10-bit code
}

// DRM formats are little-endian regardless of the host.
func putPixel(b []byte, px uint32) { binary.LittleEndian.PutUint32(b, px) }

func getPixel(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
