//go:build !windows && !darwin && !linux

package platform

func newPlatform() (Platform, error) {
	return nil, &UnsupportedPlatformError{OS: currentOS()}
}
