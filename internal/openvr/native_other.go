//go:build !openvr || !cgo

package openvr

// OpenNative always fails in builds without the OpenVR binding.
func OpenNative() (Session, error) {
	return nil, ErrNativeUnavailable
}
