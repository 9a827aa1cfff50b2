package supervisor

import "errors"

// Failure taxonomy for the launch sequence. Build, codegen, and launch
// failures are fatal to the whole run; reclaim failures are logged and the
// launch-time bind is the backstop; shutdown timeouts escalate to a forced
// kill instead of failing the run.
var (
	ErrBuildFailed        = errors.New("build failed")
	ErrCodegenFailed      = errors.New("codegen failed")
	ErrLaunchFailed       = errors.New("launch failed")
	ErrCrashedImmediately = errors.New("service crashed immediately after launch")
	ErrShutdownTimeout    = errors.New("service did not exit during shutdown")
)
