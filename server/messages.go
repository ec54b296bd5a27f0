package server

// Procedure paths served by Server.
const (
	CompileProcedure = "/velac.v1.CompileService/Compile"
	RunProcedure     = "/velac.v1.CompileService/Run"
	ResolveProcedure = "/velac.v1.ResolveService/Resolve"
)

// CompileRequest carries one module in IR text form.
type CompileRequest struct {
	Source   string `cbor:"1,keyasint"`
	Optimize bool   `cbor:"2,keyasint"`
	// Format is binary, cbor or msgpack; empty means binary.
	Format string `cbor:"3,keyasint,omitempty"`
}

// CompileResponse reports either a program or the diagnostics that
// prevented one.
type CompileResponse struct {
	Success     bool     `cbor:"1,keyasint"`
	Program     []byte   `cbor:"2,keyasint,omitempty"`
	Format      string   `cbor:"3,keyasint,omitempty"`
	Disassembly string   `cbor:"4,keyasint,omitempty"`
	Diagnostics []string `cbor:"5,keyasint,omitempty"`
	Folded      int      `cbor:"6,keyasint"`
	Removed     int      `cbor:"7,keyasint"`
	Cached      bool     `cbor:"8,keyasint"`
}

// RunRequest compiles Source and calls Entry with integer arguments.
type RunRequest struct {
	Source   string  `cbor:"1,keyasint"`
	Entry    string  `cbor:"2,keyasint"`
	Args     []int64 `cbor:"3,keyasint,omitempty"`
	Optimize bool    `cbor:"4,keyasint"`
}

// RunResponse holds the printed result of a run.
type RunResponse struct {
	Success      bool   `cbor:"1,keyasint"`
	Result       string `cbor:"2,keyasint,omitempty"`
	ResultType   string `cbor:"3,keyasint,omitempty"`
	ErrorMessage string `cbor:"4,keyasint,omitempty"`
}

// ResolveRequest names a module, for example "core:math/vector".
type ResolveRequest struct {
	Name string `cbor:"1,keyasint"`
	// Load also loads the artifact and reports its exports.
	Load bool `cbor:"2,keyasint,omitempty"`
}

type ResolveResponse struct {
	Path    string   `cbor:"1,keyasint"`
	Format  string   `cbor:"2,keyasint,omitempty"`
	Exports []string `cbor:"3,keyasint,omitempty"`
}
