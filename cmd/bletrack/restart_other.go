//go:build !linux && !darwin

package main

import "errors"

func restartSelf() error {
	return errors.New("restart is not supported on this platform")
}
