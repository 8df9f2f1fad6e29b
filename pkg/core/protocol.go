package core

// Protocol defines the exchange-specific request layout. It maps an Operation and its
// inputs to the wire Request; decoding lives with the exchange's normalizer.
type Protocol interface {
	// Name returns the exchange identifier (e.g., "peatio").
	Name() string

	// Version returns the API version being used.
	Version() string

	// BuildRequest constructs the request for the specified operation.
	// The params map contains operation-specific parameters.
	BuildRequest(op Operation, params Params) (*Request, error)

	// SupportedOperations returns the list of operations this protocol supports.
	SupportedOperations() []Operation
}
