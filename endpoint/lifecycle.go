package endpoint

// Init starts the subsystem's process-wide runtime. On POSIX it is a no-op;
// on Windows it starts the Winsock runtime (see lifecycle_windows.go).
// Calling any other operation in this package before Init is undefined.
func Init() error { return platformInit() }

// Cleanup tears down the subsystem's process-wide runtime. It is the
// counterpart to Init and is likewise a no-op on POSIX.
func Cleanup() error { return platformCleanup() }
