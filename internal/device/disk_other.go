//go:build !unix

package device

import "errors"

func diskUsage(string) (uint64, uint64, error) {
	return 0, 0, errors.New("disk usage not supported on this platform")
}
