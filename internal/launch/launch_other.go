//go:build !windows

package launch

// FromDesktop is always false outside Windows; there the server is started
// from a shell or a service manager.
func FromDesktop() bool { return false }

