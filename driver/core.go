// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import "time"

// GPU is the main interface to an underlying driver
// implementation.
// It is used to create other types and to execute commands.
// A GPU is obtained from a call to Driver.Open.
type GPU interface {
	// Driver returns the Driver that owns the GPU.
	Driver() Driver

	// NewCmdPool creates a new command pool.
	// Each pool owns exactly one command buffer.
	NewCmdPool() (CmdPool, error)

	// NewFence creates a new fence.
	// If signaled is set, the fence is created in the
	// signaled state.
	NewFence(signaled bool) (Fence, error)

	// NewSemaphore creates a new semaphore.
	NewSemaphore() (Semaphore, error)

	// Submit submits command buffers to the GPU for
	// execution.
	// Execution is asynchronous: the call returns as soon
	// as the work is enqueued. If s.Fence is not nil, it
	// is signaled when all the work completes.
	Submit(s *Submission) error

	// WaitIdle blocks until the GPU has no pending work.
	WaitIdle() error

	// NewShaderCode creates a new shader code.
	NewShaderCode(data []byte) (ShaderCode, error)

	// NewBuffer creates a new buffer.
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewImage creates a new 2D image with a single
	// layer and mip level.
	NewImage(pf PixelFmt, size Dim3D, usg Usage) (Image, error)

	// Limits returns the implementation limits.
	// They are immutable for the lifetime of the GPU.
	Limits() Limits
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// Submission describes a batch of command buffers to be
// executed by the GPU.
// Wait[i] is waited on at the synchronization scope given
// by WaitSync[i] before any command in Work executes.
// Semaphores in Signal are signaled, and Fence (if not nil)
// is signaled, when the whole batch completes.
type Submission struct {
	Work     []CmdBuffer
	Wait     []Semaphore
	WaitSync []Sync
	Signal   []Semaphore
	Fence    Fence
}

// Infinite can be passed to Fence.Wait to wait without
// a time limit.
const Infinite time.Duration = 1<<63 - 1

// Fence is the interface that defines a GPU-to-CPU
// synchronization primitive.
// Fences are the only primitive on which the CPU blocks.
type Fence interface {
	Destroyer

	// Wait blocks until the fence is signaled or the
	// timeout expires, in which case it returns
	// ErrTimeout.
	Wait(timeout time.Duration) error

	// Reset puts the fence in the unsignaled state.
	Reset() error

	// Signaled returns whether the fence is signaled,
	// without blocking.
	Signaled() (bool, error)
}

// Semaphore is the interface that defines a GPU-to-GPU
// synchronization primitive.
// Semaphores order queue operations against each other
// and are never waited on by the CPU.
type Semaphore interface {
	Destroyer
}

// CmdPool is the interface that defines a command pool.
// A pool owns a single command buffer, which is valid for
// the lifetime of the pool.
type CmdPool interface {
	Destroyer

	// CmdBuffer returns the pool's command buffer.
	CmdBuffer() CmdBuffer

	// Reset recycles the pool's command buffer, discarding
	// any recorded commands.
	// It must not be called while the command buffer is
	// pending execution.
	Reset() error
}

// CmdBuffer is the interface that defines a command buffer.
// Commands are recorded into command buffers and later
// submitted to the GPU for execution. The usage is as
// follows:
//
//  1. call Begin
//  2. call Transition/Barrier, Copy*, SetRTPipeline,
//     TraceRays and BuildAccel as needed
//  3. call End
//  4. call GPU.Submit
//
// Commands execute in recorded order, but their execution
// stages may overlap. Explicit barriers are required between
// dependent commands.
type CmdBuffer interface {
	// Begin prepares the command buffer for recording.
	Begin() error

	// End ends command recording and prepares the
	// command buffer for execution.
	End() error

	// Barrier inserts a number of global barriers
	// in the command buffer.
	Barrier(b []Barrier)

	// Transition inserts a number of image layout
	// transitions in the command buffer.
	Transition(t []Transition)

	// CopyBuffer copies data between buffers.
	CopyBuffer(param *BufferCopy)

	// CopyImage copies data between images.
	CopyImage(param *ImageCopy)

	// SetRTPipeline binds a ray tracing pipeline and
	// the given copy of its descriptors.
	SetRTPipeline(pl RTPipeline, descCopy int)

	// TraceRays dispatches rays using the bound ray
	// tracing pipeline.
	TraceRays(param *TraceParam)

	// BuildAccel records the build of an acceleration
	// structure.
	BuildAccel(param *AccelBuild)
}

// BufferCopy describes the parameters of a copy command
// that copies data from one buffer to another.
type BufferCopy struct {
	From    Buffer
	FromOff int64
	To      Buffer
	ToOff   int64
	Size    int64
}

// ImageCopy describes the parameters of a copy command
// that copies data from one image to another.
// The images must be in the LCopySrc and LCopyDst layouts,
// respectively.
type ImageCopy struct {
	From    Image
	FromOff Off3D
	To      Image
	ToOff   Off3D
	Size    Dim3D
}

// Sync is the type of a synchronization scope.
type Sync int

// Synchronization scopes.
const (
	STop Sync = 1 << iota
	SComputeShading
	SRayTracing
	SAccelBuild
	SColorOutput
	SCopy
	SHost
	SBottom
	SAll
	SNone Sync = 0
)

// Access is the type of a memory access scope.
type Access int

// Memory access scopes.
const (
	AShaderRead Access = 1 << iota
	AShaderWrite
	AConstantRead
	AAccelRead
	AAccelWrite
	ACopyRead
	ACopyWrite
	AHostWrite
	AAnyRead
	AAnyWrite
	ANone Access = 0
)

// Layout is the type of an image layout.
type Layout int

// Image layouts.
const (
	LUndefined Layout = iota
	// LCommon allows any access, including shader writes.
	LCommon
	LShaderRead
	LCopySrc
	LCopyDst
	LPresent
)

// Barrier represents a synchronization barrier.
type Barrier struct {
	SyncBefore   Sync
	SyncAfter    Sync
	AccessBefore Access
	AccessAfter  Access
}

// Transition represents a layout transition of an image.
type Transition struct {
	Barrier

	LayoutBefore Layout
	LayoutAfter  Layout
	Img          Image
}

// ShaderCode is the interface that defines a shader binary
// for execution in a programmable pipeline stage.
type ShaderCode interface {
	Destroyer
}

// ShaderFunc specifies a function within a shader binary.
type ShaderFunc struct {
	Code ShaderCode
	Name string
}

// Stage is a mask of programmable stages.
type Stage int

// Stages.
const (
	SCompute Stage = 1 << iota
	SRayGen
	SMiss
	SClosestHit
	SAnyHit
	SIntersection
)

// DescType is the type of a descriptor.
type DescType int

// Descriptor types.
const (
	// Read/write buffer.
	DBuffer DescType = iota
	// Read/write image.
	DImage
	// Constant buffer.
	DConstant
	// Acceleration structure.
	DAccel
)

// Descriptor describes data for use in shaders.
// Nr is the binding number.
type Descriptor struct {
	Type   DescType
	Stages Stage
	Nr     int
}

// Usage is a mask indicating valid uses for a resource.
type Usage int

// Usage flags for Buffer and Image.
const (
	// The resource can be read in shaders.
	UShaderRead Usage = 1 << iota
	// The resource can be written in shaders.
	UShaderWrite
	// The resource can provide constant data for shaders.
	// Valid only for Buffer.
	UShaderConst
	// The resource can be the source of copy commands.
	UCopySrc
	// The resource can be the destination of copy commands.
	UCopyDst
	// The resource can provide input data for acceleration
	// structure builds.
	// Valid only for Buffer.
	UAccelInput
	// The resource can back acceleration structure storage
	// and build scratch memory.
	// Valid only for Buffer.
	UAccelStorage
	// The resource can hold a shader binding table.
	// Valid only for Buffer.
	UShaderTable
	// The resource can be used for any purpose.
	UGeneric Usage = 1<<iota - 1
)

// Buffer is the interface that defines a GPU buffer.
// The size of the buffer is fixed. When a larger buffer
// is necessary, a new one must be created and the data
// must be copied explicitly.
type Buffer interface {
	Destroyer

	// Visible returns whether the buffer is host visible.
	// Non-visible memory cannot be accessed by the CPU.
	Visible() bool

	// Bytes returns a slice of length Cap referring to the
	// underlying data. If the buffer is not host visible,
	// it returns nil instead.
	// The slice is valid for the lifetime of the buffer.
	Bytes() []byte

	// Cap returns the capacity of the buffer in bytes,
	// which may be greater than the size requested during
	// buffer creation.
	// This value is immutable.
	Cap() int64

	// Address returns the GPU address of the buffer's
	// first byte.
	Address() uint64
}

// PixelFmt describes the format of a pixel.
type PixelFmt int

// Pixel formats.
const (
	RGBA8Unorm PixelFmt = iota
	RGBA8SRGB
	BGRA8Unorm
	BGRA8SRGB
	RGBA16Float
	RGBA32Float
)

// Size returns the size of a pixel in bytes.
func (f PixelFmt) Size() int {
	switch f {
	case RGBA16Float:
		return 8
	case RGBA32Float:
		return 16
	}
	return 4
}

// Dim3D is a three-dimensional size.
type Dim3D struct {
	Width, Height, Depth int
}

// Off3D is a three-dimensional offset.
type Off3D struct {
	X, Y, Z int
}

// Image is the interface that defines a GPU image.
type Image interface {
	Destroyer

	// NewView creates a new image view.
	// All views created from a given image must be
	// destroyed before the image itself is destroyed.
	NewView() (ImageView, error)

	// Size returns the image's size.
	Size() Dim3D

	// Format returns the image's pixel format.
	Format() PixelFmt
}

// ImageView is the interface that defines a typed view of
// an Image resource.
type ImageView interface {
	Destroyer
}

// Limits describes implementation limits.
// These may vary across drivers and devices.
type Limits struct {
	// Name of the device.
	DeviceName string
	// Maximum width and height of 2D images.
	MaxImage2D int
	// Minimum alignment of constant buffer ranges.
	MinConstantAlign int64
	// Maximum range of constant descriptors.
	MaxConstantRange int64
}
