package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"brainsim/internal/models"
)

// createTestArray creates a 3D array with a unique value in every voxel
func createTestArray(dims models.Dims) *models.Array {
	arr := models.NewVolumeArray(dims)
	for i := range arr.Data {
		arr.Data[i] = float64(i)*0.25 - 3
	}
	return arr
}

// TestSaveLoad verifies that volumes survive a round trip through disk
func TestSaveLoad(t *testing.T) {
	dims := models.Dims{4, 3, 2}
	arr := createTestArray(dims)

	for _, name := range []string{"volume.nii", "volume.nii.gz"} {
		t.Run(name, func(t *testing.T) {
			img, err := NewImage(arr, models.IdentityAffine())
			if err != nil {
				t.Fatalf("Failed to create image: %v", err)
			}

			path := filepath.Join(t.TempDir(), name)
			if err := Save(path, img); err != nil {
				t.Fatalf("Failed to save image: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Failed to load image: %v", err)
			}

			gotDims, err := loaded.Dims()
			if err != nil {
				t.Fatalf("Loaded image is not 3D: %v", err)
			}
			if gotDims != dims {
				t.Errorf("Expected dims %v, got %v", dims, gotDims)
			}
			for i, v := range arr.Data {
				if loaded.Data[i] != v {
					t.Errorf("Voxel %d: expected %g, got %g", i, v, loaded.Data[i])
				}
			}
			if loaded.Affine() != models.IdentityAffine() {
				t.Errorf("Expected identity affine, got %v", loaded.Affine())
			}
		})
	}
}

// TestCompressedFileIsGzip checks the .gz suffix selects compression
func TestCompressedFileIsGzip(t *testing.T) {
	img, err := NewImage(createTestArray(models.Dims{2, 2, 2}), models.IdentityAffine())
	if err != nil {
		t.Fatalf("Failed to create image: %v", err)
	}

	dir := t.TempDir()
	plain := filepath.Join(dir, "a.nii")
	packed := filepath.Join(dir, "a.nii.gz")
	if err := Save(plain, img); err != nil {
		t.Fatal(err)
	}
	if err := Save(packed, img); err != nil {
		t.Fatal(err)
	}

	raw, _ := os.ReadFile(plain)
	if len(raw) != minVoxOffset+8*4 {
		t.Errorf("Expected %d bytes, got %d", minVoxOffset+8*4, len(raw))
	}
	gz, _ := os.ReadFile(packed)
	if !bytes.HasPrefix(gz, gzipMagic) {
		t.Errorf("Expected gzip magic at start of %s", packed)
	}
}

// TestDecodeBigEndianScaled decodes a big-endian int16 image with scaling
func TestDecodeBigEndianScaled(t *testing.T) {
	h := Header{
		SizeofHdr: headerSize,
		Dim:       [8]int16{3, 2, 2, 2, 1, 1, 1, 1},
		Datatype:  DatatypeInt16,
		Bitpix:    16,
		VoxOffset: minVoxOffset,
		SclSlope:  2,
		SclInter:  1,
		Magic:     singleFileMagic,
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, &h)
	buf.Write(make([]byte, extensionSize))
	binary.Write(&buf, binary.BigEndian, []int16{0, 1, 2, 3, 4, 5, 6, -7})

	img, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}

	expected := []float64{1, 3, 5, 7, 9, 11, 13, -13}
	for i, v := range expected {
		if img.Data[i] != v {
			t.Errorf("Voxel %d: expected %g, got %g", i, v, img.Data[i])
		}
	}
}

// TestDecodeErrors verifies malformed input is rejected
func TestDecodeErrors(t *testing.T) {
	valid := Header{
		SizeofHdr: headerSize,
		Dim:       [8]int16{3, 2, 2, 2, 1, 1, 1, 1},
		Datatype:  DatatypeUint8,
		Bitpix:    8,
		VoxOffset: minVoxOffset,
		Magic:     singleFileMagic,
	}

	encode := func(h Header, voxels int) *bytes.Buffer {
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, &h)
		buf.Write(make([]byte, extensionSize+voxels))
		return &buf
	}

	testCases := []struct {
		name   string
		mutate func(h *Header)
		voxels int
		target error
	}{
		{"pair file magic", func(h *Header) { h.Magic = [4]uint8{'n', 'i', '1', 0} }, 8, ErrBadHeader},
		{"bad dim count", func(h *Header) { h.Dim[0] = 0 }, 8, ErrBadHeader},
		{"zero extent", func(h *Header) { h.Dim[2] = 0 }, 8, ErrBadHeader},
		{"complex datatype", func(h *Header) { h.Datatype = 32 }, 8, ErrUnsupportedDatatype},
		{"truncated data", func(h *Header) {}, 5, io.ErrUnexpectedEOF},
		{"overflowing dims", func(h *Header) {
			h.Dim = [8]int16{7, 32767, 32767, 32767, 32767, 32767, 32767, 32767}
			h.Datatype, h.Bitpix = DatatypeFloat32, 32
		}, 8, ErrBadHeader},
		{"oversized payload", func(h *Header) {
			h.Dim = [8]int16{3, 2000, 2000, 2000, 1, 1, 1, 1}
			h.Datatype, h.Bitpix = DatatypeFloat64, 64
		}, 8, ErrBadHeader},
		{"dims larger than file", func(h *Header) {
			h.Dim = [8]int16{3, 1000, 1000, 100, 1, 1, 1, 1}
		}, 8, io.ErrUnexpectedEOF},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := valid
			tc.mutate(&h)
			_, err := Decode(encode(h, tc.voxels))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if tc.target != nil && !errors.Is(err, tc.target) {
				t.Errorf("Expected %v, got %v", tc.target, err)
			}
		})
	}

	if _, err := Decode(bytes.NewReader(nil)); err == nil {
		t.Error("Expected an error for empty input")
	}
}

// TestImageDims accepts a single time point as 3D and rejects other shapes
func TestImageDims(t *testing.T) {
	img := &Image{Header: Header{Dim: [8]int16{4, 3, 4, 5, 1}}}
	dims, err := img.Dims()
	if err != nil {
		t.Fatalf("Expected 4D image with one frame to be 3D: %v", err)
	}
	if dims != (models.Dims{3, 4, 5}) {
		t.Errorf("Expected 3x4x5, got %v", dims)
	}

	img.Header.Dim = [8]int16{4, 3, 4, 5, 2}
	if _, err := img.Dims(); err == nil {
		t.Error("Expected an error for a 4D image with two frames")
	}

	img.Header.Dim = [8]int16{2, 3, 4}
	if _, err := img.Dims(); err == nil {
		t.Error("Expected an error for a 2D image")
	}
}

// TestNewImage checks header fields and rejects non-3D arrays
func TestNewImage(t *testing.T) {
	affine := models.IdentityAffine()
	affine[0][0], affine[1][1], affine[2][2] = 2, 2, 2
	affine[0][3] = -90

	img, err := NewImage(createTestArray(models.Dims{2, 3, 4}), affine)
	if err != nil {
		t.Fatalf("Failed to create image: %v", err)
	}
	if img.Header.Pixdim[1] != 2 || img.Header.Pixdim[3] != 2 {
		t.Errorf("Expected 2mm pixdim, got %v", img.Header.Pixdim)
	}
	if img.Affine() != affine {
		t.Errorf("Expected affine %v, got %v", affine, img.Affine())
	}

	img.Header.SetDescription("synthetic sphere")
	if img.Header.Description() != "synthetic sphere" {
		t.Errorf("Unexpected description %q", img.Header.Description())
	}

	if _, err := NewImage(models.NewArray(2, 3), affine); err == nil {
		t.Error("Expected an error for a 2D array")
	}

	_, err = NewImage(models.NewArray(40000, 1, 1), affine)
	if !errors.Is(err, ErrBadHeader) {
		t.Errorf("Expected ErrBadHeader for an axis longer than 32767, got %v", err)
	}
}

// TestNumVoxels reports the voxel count and refuses counts that would overflow
func TestNumVoxels(t *testing.T) {
	h := Header{Dim: [8]int16{3, 2, 3, 4, 1, 1, 1, 1}, Datatype: DatatypeInt16}
	n, err := h.NumVoxels()
	if err != nil || n != 24 {
		t.Errorf("Expected 24 voxels, got %d (%v)", n, err)
	}

	h.Dim = [8]int16{7, 32767, 32767, 32767, 32767, 32767, 32767, 32767}
	if n, err := h.NumVoxels(); !errors.Is(err, ErrBadHeader) {
		t.Errorf("Expected ErrBadHeader, got %d (%v)", n, err)
	}
}
