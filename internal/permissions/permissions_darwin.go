//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int microphoneStatus() {
    return (int)[AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
}

void requestMicrophone() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

// AVAuthorizationStatus values
const (
	statusNotDetermined = 0
	statusRestricted    = 1
	statusDenied        = 2
	statusAuthorized    = 3
)

// MicrophoneAllowed reports whether capture may proceed. When the user has not
// been asked yet the system prompt is triggered and false is returned; the
// caller retries start once the user has answered.
func MicrophoneAllowed() bool {
	switch int(C.microphoneStatus()) {
	case statusAuthorized:
		return true
	case statusNotDetermined:
		C.requestMicrophone()
		return false
	default:
		return false
	}
}
