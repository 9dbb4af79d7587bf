// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver

import "errors"

// ErrCannotTrace means that the driver and/or device do not
// support hardware ray tracing.
var ErrCannotTrace = errors.New("driver: ray tracing not supported")

// Tracer is the interface that a GPU may implement to
// enable hardware ray tracing.
type Tracer interface {
	// AccelSizes computes the memory requirements of an
	// acceleration structure holding the given geometry.
	// The Data field of geom is not accessed.
	AccelSizes(geom *AccelGeometry) (AccelSizes, error)

	// NewAccelStruct creates a new acceleration structure
	// of the given type.
	// size is the storage size, which must be at least
	// AccelSizes(...).Storage for any geometry that will be
	// built into it.
	NewAccelStruct(typ AccelType, size int64) (AccelStruct, error)

	// NewRTPipeline creates a new ray tracing pipeline.
	NewRTPipeline(state *RTState) (RTPipeline, error)

	// RTLimits returns the ray tracing limits.
	// They are immutable for the lifetime of the GPU.
	RTLimits() RTLimits
}

// AccelType is the type of an acceleration structure.
type AccelType int

// Acceleration structure types.
const (
	// Bottom level structures index geometry.
	BottomLevel AccelType = iota
	// Top level structures index instances of
	// bottom level structures.
	TopLevel
)

func (t AccelType) String() string {
	if t == TopLevel {
		return "top level"
	}
	return "bottom level"
}

// AABBSize is the size in bytes of an axis-aligned bounding
// box as consumed by bottom level builds: six 32-bit floats
// (min x/y/z followed by max x/y/z).
const AABBSize = 24

// InstanceSize is the size in bytes of an instance record
// as consumed by top level builds.
const InstanceSize = 64

// AccelGeometry describes the input of an acceleration
// structure build.
// For BottomLevel, Data holds Count AABBs, each AABBSize
// bytes apart. For TopLevel, Data holds Count instance
// records, each InstanceSize bytes apart.
// Data must have been created with UAccelInput usage.
type AccelGeometry struct {
	Type   AccelType
	Data   Buffer
	Off    int64
	Count  int
	Opaque bool
}

// AccelSizes describes the memory requirements of an
// acceleration structure.
type AccelSizes struct {
	Storage      int64
	BuildScratch int64
}

// AccelStruct is the interface that defines an
// acceleration structure.
type AccelStruct interface {
	Destroyer

	// Type returns the structure's type.
	Type() AccelType

	// Handle returns the opaque 64-bit value that
	// identifies the structure in instance records.
	Handle() uint64
}

// AccelBuild describes the parameters of a build command.
// Scratch must have been created with UAccelStorage usage
// and (Scratch.Address() + ScratchOff) must be aligned to
// RTLimits.ScratchAlign.
type AccelBuild struct {
	Geometry   AccelGeometry
	Dst        AccelStruct
	Scratch    Buffer
	ScratchOff int64
}

// GroupType is the type of a shader group.
type GroupType int

// Shader group types.
const (
	// Ray generation or miss.
	GGeneral GroupType = iota
	// Hit group for triangle geometry.
	GTriangles
	// Hit group for procedural (AABB) geometry.
	GProcedural
)

// NoShader is used in ShaderGroup to indicate an unused
// stage.
const NoShader = -1

// ShaderGroup defines a shader group of a ray tracing
// pipeline.
// The General, ClosestHit, AnyHit and Intersection fields
// are indices in RTState.Stages, or NoShader.
type ShaderGroup struct {
	Type         GroupType
	General      int
	ClosestHit   int
	AnyHit       int
	Intersection int
}

// RTStage is a programmable stage of a ray tracing
// pipeline.
type RTStage struct {
	Stage Stage
	Func  ShaderFunc
}

// RTState defines the state of a ray tracing pipeline.
// Desc defines the bindings of a single descriptor set.
// DescCopies is the number of independent copies of the
// descriptor set to create.
type RTState struct {
	Stages       []RTStage
	Groups       []ShaderGroup
	Desc         []Descriptor
	DescCopies   int
	MaxRecursion int
}

// RTPipeline is the interface that defines a ray tracing
// pipeline.
// It owns DescCopies copies of its descriptor set. A copy
// must not be updated while a command buffer that uses it
// is pending execution.
type RTPipeline interface {
	Destroyer

	// GroupCount returns the number of shader groups.
	GroupCount() int

	// GroupHandles returns the opaque handles of all
	// shader groups, RTLimits.HandleSize bytes each,
	// in group order.
	GroupHandles() ([]byte, error)

	// DescCopies returns the number of descriptor copies.
	DescCopies() int

	// SetAccel updates an acceleration structure
	// descriptor.
	SetAccel(cpy, nr int, as AccelStruct)

	// SetImage updates an image descriptor.
	SetImage(cpy, nr int, iv ImageView)

	// SetConstant updates a constant buffer descriptor.
	SetConstant(cpy, nr int, buf Buffer, off, size int64)
}

// ShaderRegion describes a region of a shader binding table
// as consumed by TraceRays.
// Buf is nil for unused regions.
type ShaderRegion struct {
	Buf    Buffer
	Off    int64
	Stride int64
	Size   int64
}

// TraceParam describes the parameters of a ray dispatch.
type TraceParam struct {
	RayGen   ShaderRegion
	Miss     ShaderRegion
	HitGroup ShaderRegion
	Width    int
	Height   int
	Depth    int
}

// RTLimits describes ray tracing limits.
type RTLimits struct {
	// Size of a shader group handle in bytes.
	HandleSize int64
	// Required alignment of shader binding table strides.
	HandleAlign int64
	// Required alignment of shader binding table regions.
	BaseAlign int64
	// Required alignment of build scratch addresses.
	ScratchAlign int64
	// Maximum ray recursion depth.
	MaxRecursion int
	// Maximum number of rays in a single dispatch.
	MaxDispatch int64
}
