package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Load reads a .nii or .nii.gz file. Compression is detected from the
// content, not the file name.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open nifti file: %w", err)
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return img, nil
}

// Decode reads a single-file NIfTI-1 image, gzip-compressed or not, from r.
func Decode(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	var src io.Reader = br
	if magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("error opening gzip stream: %w", err)
		}
		defer zr.Close()
		src = bufio.NewReader(zr)
	}

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(src, raw); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}
	h, order, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}

	// Skip the extension block up to vox_offset
	offset := int64(h.VoxOffset)
	if offset < minVoxOffset {
		offset = minVoxOffset
	}
	if _, err := io.CopyN(io.Discard, src, offset-headerSize); err != nil {
		return nil, fmt.Errorf("file has fewer bytes than vox_offset requires: %w", err)
	}

	size, _ := bytesPerVoxel(h.Datatype)
	n, err := h.NumVoxels()
	if err != nil {
		return nil, err
	}
	// The buffer grows with the bytes actually present, so a header that
	// overstates its dims fails on EOF instead of allocating up front.
	buf, err := io.ReadAll(io.LimitReader(src, int64(n*size)))
	if err != nil {
		return nil, fmt.Errorf("error reading %d voxels: %w", n, err)
	}
	if len(buf) != n*size {
		return nil, fmt.Errorf("error reading %d voxels: %w", n, io.ErrUnexpectedEOF)
	}

	data := decodeVoxels(buf, n, h.Datatype, order)
	if h.SclSlope != 0 && !(h.SclSlope == 1 && h.SclInter == 0) {
		slope, inter := float64(h.SclSlope), float64(h.SclInter)
		for i, v := range data {
			data[i] = slope*v + inter
		}
	}

	return &Image{Header: h, Data: data}, nil
}

func decodeVoxels(buf []byte, n int, datatype int16, order binary.ByteOrder) []float64 {
	data := make([]float64, n)
	for i := 0; i < n; i++ {
		switch datatype {
		case DatatypeUint8:
			data[i] = float64(buf[i])
		case DatatypeInt8:
			data[i] = float64(int8(buf[i]))
		case DatatypeInt16:
			data[i] = float64(int16(order.Uint16(buf[2*i:])))
		case DatatypeUint16:
			data[i] = float64(order.Uint16(buf[2*i:]))
		case DatatypeInt32:
			data[i] = float64(int32(order.Uint32(buf[4*i:])))
		case DatatypeUint32:
			data[i] = float64(order.Uint32(buf[4*i:]))
		case DatatypeFloat32:
			data[i] = float64(math.Float32frombits(order.Uint32(buf[4*i:])))
		case DatatypeFloat64:
			data[i] = math.Float64frombits(order.Uint64(buf[8*i:]))
		}
	}
	return data
}

// Save writes img to path as float32 NIfTI-1. Paths ending in .gz are gzip-compressed.
func Save(path string, img *Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create nifti file: %w", err)
	}

	if err := Encode(f, img, strings.HasSuffix(path, ".gz")); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// Encode writes img to w in little-endian float32, optionally gzip-compressed.
func Encode(w io.Writer, img *Image, compress bool) error {
	h := img.Header
	h.SizeofHdr = headerSize
	h.Magic = singleFileMagic
	h.Datatype = DatatypeFloat32
	h.Bitpix = 32
	h.VoxOffset = minVoxOffset
	h.SclSlope = 1
	h.SclInter = 0
	if err := h.Validate(); err != nil {
		return err
	}
	n, err := h.NumVoxels()
	if err != nil {
		return err
	}
	if n != len(img.Data) {
		return fmt.Errorf("%w: header describes %d voxels, image holds %d", ErrBadHeader, n, len(img.Data))
	}

	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(w)
		w = zw
	}
	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	if _, err := bw.Write(make([]byte, extensionSize)); err != nil {
		return fmt.Errorf("error writing extension: %w", err)
	}

	voxels := make([]float32, len(img.Data))
	for i, v := range img.Data {
		voxels[i] = float32(v)
	}
	if err := binary.Write(bw, binary.LittleEndian, voxels); err != nil {
		return fmt.Errorf("error writing voxel data: %w", err)
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	if zw != nil {
		return zw.Close()
	}
	return nil
}
