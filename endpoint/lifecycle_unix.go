//go:build !windows

package endpoint

func platformInit() error    { return nil }
func platformCleanup() error { return nil }
