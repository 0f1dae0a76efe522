// Package filestore provides the concrete storage backend behind a File
// Sink. The hierarchical file library itself is explicitly out of scope for
// this engine (spec: "the file library itself — treated as an opaque file
// sink offering group/dataset create and append"); Backend is the seam that
// keeps that opaqueness real while giving the rest of the tree something
// runnable to write against.
package filestore

// DType enumerates the dataset element types the template's "dataset.type"
// field may name.
type DType string

// Recognised dataset element types.
const (
	DTypeUint8   DType = "uint8"
	DTypeUint16  DType = "uint16"
	DTypeUint32  DType = "uint32"
	DTypeUint64  DType = "uint64"
	DTypeInt8    DType = "int8"
	DTypeInt16   DType = "int16"
	DTypeInt32   DType = "int32"
	DTypeInt64   DType = "int64"
	DTypeFloat   DType = "float"
	DTypeDouble  DType = "double"
	DTypeString  DType = "string"
)

// DatasetSpec describes a dataset's shape as declared by a "dataset" node.
type DatasetSpec struct {
	Type      DType
	Unlimited bool // first dimension declared "unlimited" -> chunked
}

// Backend is the storage seam a File Sink drives. Every method is called
// from exactly one goroutine (the sink's dedicated writer), so
// implementations need not be internally thread-safe beyond that guarantee.
type Backend interface {
	// CreateGroup creates a group node at path. Only path itself is
	// recorded; intermediate groups are not created. Idempotent: creating
	// an existing group is a no-op.
	CreateGroup(path string) error

	// CreateDataset creates a dataset node at path with the given spec.
	CreateDataset(path string, spec DatasetSpec) error

	// WriteAttribute attaches a scalar attribute to the node at path.
	WriteAttribute(path, name string, value any) error

	// SetInitialValue seeds a dataset with a value at row 0, for
	// "dataset" nodes that carry a literal "values" field rather than a
	// stream placeholder.
	SetInitialValue(path string, value any) error

	// AppendRow appends one row to the dataset at path and returns the
	// zero-based row index it was written at.
	AppendRow(path string, value any) (rowIndex int64, err error)

	// CreateLink records a deferred link from path to target. Resolution
	// happens in Finalize, since target may not exist yet.
	CreateLink(path, target string) error

	// Finalize resolves every deferred link recorded by CreateLink,
	// applying the "../" relative-to-parent convention, then flushes.
	Finalize() error

	// Close releases the backend's resources.
	Close() error
}
