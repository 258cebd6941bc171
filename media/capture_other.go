//go:build !linux

package media

// deviceCapture is unavailable outside Linux: pion/mediadevices needs
// platform drivers (V4L2/malgo) that are only wired up there. Applications
// on other platforms must supply their own CaptureFunc to NewAcquirer.
func deviceCapture(_ string) (*Stream, error) {
	return nil, ErrCaptureUnsupported
}
