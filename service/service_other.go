//go:build !windows

package service

import "context"

func IsWindowsService() (bool, error) {
	return false, nil
}

// Run calls fn.
func Run(ctx context.Context, name string, fn func(context.Context) error) error {
	return fn(ctx)
}

func Install(name, displayName, exePath string, args ...string) error {
	return ErrUnsupported
}

func Uninstall(name string) error {
	return ErrUnsupported
}
