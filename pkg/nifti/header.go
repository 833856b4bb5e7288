// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and .nii.gz).
//
// Only the parts of the format needed to exchange 3D masks and synthetic
// volumes are supported: the 348-byte header, an empty extension block and
// a contiguous voxel array.
package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Header mirrors the on-disk NIfTI-1 header layout.
// See https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
type Header struct {
	SizeofHdr          int32      // Must be 348
	UnusedDataType     [10]uint8  // Unused
	UnusedDbName       [18]uint8  // Unused
	UnusedExtents      int32      // Unused
	UnusedSessionError int16      // Unused
	UnusedRegular      uint8      // Unused
	DimInfo            uint8      // MRI slice ordering
	Dim                [8]int16   // Data array dimensions
	IntentP1           float32    // 1st intent parameter
	IntentP2           float32    // 2nd intent parameter
	IntentP3           float32    // 3rd intent parameter
	IntentCode         int16      // NIFTI_INTENT_* code
	Datatype           int16      // Defines data type
	Bitpix             int16      // Number bits/voxel
	SliceStart         int16      // First slice index
	Pixdim             [8]float32 // Grid spacing
	VoxOffset          float32    // Offset into .nii file
	SclSlope           float32    // Data scaling: slope
	SclInter           float32    // Data scaling: offset
	SliceEnd           int16      // Last slice index
	SliceCode          uint8      // Slice timing order
	XyztUnits          uint8      // Units of pixdim[1..4]
	CalMax             float32    // Max display intensity
	CalMin             float32    // Min display intensity
	SliceDuration      float32    // Time for 1 slice
	Toffset            float32    // Time axis shift
	UnusedGlmax        int32      // Unused
	UnusedGlmin        int32      // Unused
	Descrip            [80]uint8  // Any text you like
	AuxFile            [24]uint8  // Auxiliary filename
	QformCode          int16      // NIFTI_XFORM_* code
	SformCode          int16      // NIFTI_XFORM_* code
	QuaternB           float32    // Quaternion b params
	QuaternC           float32    // Quaternion c params
	QuaternD           float32    // Quaternion d params
	QoffsetX           float32    // Quaternion x shift
	QoffsetY           float32    // Quaternion y shift
	QoffsetZ           float32    // Quaternion z shift
	SrowX              [4]float32 // 1st row affine transform
	SrowY              [4]float32 // 2nd row affine transform
	SrowZ              [4]float32 // 3rd row affine transform
	IntentName         [16]uint8  // 'name' or meaning of data
	Magic              [4]uint8   // Must be "n+1\0" for single-file images
}

const (
	headerSize    = 348
	minVoxOffset  = 352
	extensionSize = 4

	// maxDataBytes caps the voxel payload a header may declare
	maxDataBytes = math.MaxInt32
)

// Datatype codes (NIFTI_TYPE_*)
const (
	DatatypeUint8   int16 = 2
	DatatypeInt16   int16 = 4
	DatatypeInt32   int16 = 8
	DatatypeFloat32 int16 = 16
	DatatypeFloat64 int16 = 64
	DatatypeInt8    int16 = 256
	DatatypeUint16  int16 = 512
	DatatypeUint32  int16 = 768
)

// XformAligned is NIFTI_XFORM_ALIGNED_ANAT
const XformAligned int16 = 2

var singleFileMagic = [4]uint8{'n', '+', '1', 0}

var (
	// ErrBadHeader is returned for a header that is not valid single-file NIfTI-1
	ErrBadHeader = errors.New("invalid nifti-1 header")

	// ErrUnsupportedDatatype is returned for voxel types the codec cannot decode
	ErrUnsupportedDatatype = errors.New("unsupported nifti datatype")
)

// bytesPerVoxel returns the storage size of one voxel for a datatype code
func bytesPerVoxel(datatype int16) (int, error) {
	switch datatype {
	case DatatypeUint8, DatatypeInt8:
		return 1, nil
	case DatatypeInt16, DatatypeUint16:
		return 2, nil
	case DatatypeInt32, DatatypeUint32, DatatypeFloat32:
		return 4, nil
	case DatatypeFloat64:
		return 8, nil
	}
	return 0, fmt.Errorf("%w: code %d", ErrUnsupportedDatatype, datatype)
}

// parseHeader decodes raw header bytes, detecting the byte order from sizeof_hdr.
func parseHeader(raw []byte) (Header, binary.ByteOrder, error) {
	var h Header
	var order binary.ByteOrder = binary.LittleEndian
	if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
		return h, nil, fmt.Errorf("error decoding header: %w", err)
	}
	if h.SizeofHdr != headerSize {
		order = binary.BigEndian
		h = Header{}
		if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
			return h, nil, fmt.Errorf("error decoding header: %w", err)
		}
	}
	if err := h.Validate(); err != nil {
		return h, nil, err
	}
	return h, order, nil
}

// Validate checks the fields the codec depends on
func (h *Header) Validate() error {
	switch {
	case h.SizeofHdr != headerSize:
		return fmt.Errorf("%w: sizeof_hdr is %d, want %d", ErrBadHeader, h.SizeofHdr, headerSize)
	case h.Magic != singleFileMagic:
		return fmt.Errorf("%w: data must be stored in the same file as the header", ErrBadHeader)
	case h.Dim[0] < 1 || h.Dim[0] > 7:
		return fmt.Errorf("%w: dim[0] is %d, not in range [1, 7]", ErrBadHeader, h.Dim[0])
	}
	for i := 1; i <= int(h.Dim[0]); i++ {
		if h.Dim[i] < 1 {
			return fmt.Errorf("%w: dim[%d] is %d", ErrBadHeader, i, h.Dim[i])
		}
	}
	size, err := bytesPerVoxel(h.Datatype)
	if err != nil {
		return err
	}
	if _, err := h.dataBytes(size); err != nil {
		return err
	}
	return nil
}

// dataBytes returns the payload size declared by the header. The product is
// checked one axis at a time so a hostile header cannot overflow int.
func (h *Header) dataBytes(size int) (int, error) {
	n := size
	for i := 1; i <= int(h.Dim[0]); i++ {
		d := int(h.Dim[i])
		if d < 1 || n > maxDataBytes/d {
			return 0, fmt.Errorf("%w: dims %v declare more than %d bytes of voxels",
				ErrBadHeader, h.Dim[1:h.Dim[0]+1], maxDataBytes)
		}
		n *= d
	}
	return n, nil
}

// Shape returns the used dimensions dim[1..dim[0]]
func (h *Header) Shape() []int {
	shape := make([]int, h.Dim[0])
	for i := range shape {
		shape[i] = int(h.Dim[i+1])
	}
	return shape
}

// NumVoxels returns the product of the used dimensions, or an error when it
// exceeds what the codec will decode
func (h *Header) NumVoxels() (int, error) {
	size, err := bytesPerVoxel(h.Datatype)
	if err != nil {
		return 0, err
	}
	n, err := h.dataBytes(size)
	if err != nil {
		return 0, err
	}
	return n / size, nil
}

// Description returns the descrip field as a string
func (h *Header) Description() string {
	return strings.TrimRight(string(h.Descrip[:]), "\x00")
}

// SetDescription stores s in the descrip field, truncated to 79 bytes
func (h *Header) SetDescription(s string) {
	h.Descrip = [80]uint8{}
	copy(h.Descrip[:79], s)
}
