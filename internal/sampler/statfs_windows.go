//go:build windows

package sampler

import "fmt"

func statfs(mount string) (Stat, error) {
	return Stat{}, fmt.Errorf("space sampling is not implemented on windows")
}
