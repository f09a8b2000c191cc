//go:build openvr && cgo

package openvr

/*
#cgo CFLAGS: -I/usr/local/include/openvr
#cgo LDFLAGS: -lopenvr_api

#include <stdbool.h>
#include <stdint.h>
#include <stdio.h>
#include <stdlib.h>
#include <string.h>
#include <openvr_capi.h>

static struct VR_IVRSystem_FnTable *vros_system;
static struct VR_IVRApplications_FnTable *vros_applications;

static intptr_t vros_fntable(const char *version, EVRInitError *err) {
	char name[128];
	snprintf(name, sizeof name, "FnTable:%s", version);
	return VR_GetGenericInterface(name, err);
}

static EVRInitError vros_init(void) {
	EVRInitError err = EVRInitError_VRInitError_None;
	VR_InitInternal(&err, EVRApplicationType_VRApplication_Background);
	if (err != EVRInitError_VRInitError_None) {
		return err;
	}
	vros_system = (struct VR_IVRSystem_FnTable *)vros_fntable(IVRSystem_Version, &err);
	if (err == EVRInitError_VRInitError_None) {
		vros_applications = (struct VR_IVRApplications_FnTable *)vros_fntable(IVRApplications_Version, &err);
	}
	if (err != EVRInitError_VRInitError_None) {
		VR_ShutdownInternal();
		vros_system = NULL;
		vros_applications = NULL;
	}
	return err;
}

static void vros_shutdown(void) {
	VR_ShutdownInternal();
	vros_system = NULL;
	vros_applications = NULL;
}

static bool vros_poll(struct VREvent_t *ev) {
	return vros_system->PollNextEvent(ev, sizeof(struct VREvent_t));
}

static void vros_ack_quit(void) {
	vros_system->AcknowledgeQuit_Exiting();
}

static uint32_t vros_scene_pid(void) {
	return vros_applications->GetCurrentSceneProcessId();
}

static EVRApplicationError vros_app_key(uint32_t pid, char *buf, uint32_t len) {
	return vros_applications->GetApplicationKeyByProcessId(pid, buf, len);
}

static uint32_t vros_app_string(char *key, uint32_t prop, char *buf, uint32_t len, EVRApplicationError *err) {
	return vros_applications->GetApplicationPropertyString(key, (EVRApplicationProperty)prop, buf, len, err);
}
*/
import "C"

import (
	"unsafe"
)

type nativeSession struct{}

// OpenNative opens a background-application session with the installed
// SteamVR runtime.
func OpenNative() (Session, error) {
	if code := C.vros_init(); code != C.EVRInitError_VRInitError_None {
		name := "(null)"
		if sym := C.VR_GetVRInitErrorAsSymbol(code); sym != nil {
			name = C.GoString(sym)
		}
		return nil, &InitError{Name: name, Code: uint32(code)}
	}
	return nativeSession{}, nil
}

func (nativeSession) PollNextEvent(ev *RawEvent) bool {
	var raw C.struct_VREvent_t
	if !C.vros_poll(&raw) {
		return false
	}
	ev.Type = EventType(raw.eventType)
	ev.TrackedDeviceIndex = uint32(raw.trackedDeviceIndex)
	ev.AgeSeconds = float32(raw.eventAgeSeconds)
	data := C.GoBytes(unsafe.Pointer(&raw.data), C.int(unsafe.Sizeof(raw.data)))
	ev.Data = [EventDataSize]byte{}
	copy(ev.Data[:], data)
	return true
}

func (nativeSession) AcknowledgeQuit() {
	C.vros_ack_quit()
}

func (nativeSession) SceneProcessID() uint32 {
	return uint32(C.vros_scene_pid())
}

func (nativeSession) ApplicationKeyByProcessID(pid uint32) (string, ApplicationError) {
	var buf [MaxApplicationKeyLength]C.char
	code := ApplicationError(C.vros_app_key(C.uint32_t(pid), &buf[0], C.uint32_t(len(buf))))
	if code != ApplicationErrorNone {
		return "", code
	}
	return C.GoString(&buf[0]), ApplicationErrorNone
}

func (nativeSession) ApplicationPropertyString(key string, prop ApplicationProperty, buf []byte) (uint32, ApplicationError) {
	ckey := C.CString(key)
	defer C.free(unsafe.Pointer(ckey))

	var out *C.char
	if len(buf) > 0 {
		out = (*C.char)(unsafe.Pointer(&buf[0]))
	}
	var code C.EVRApplicationError
	n := C.vros_app_string(ckey, C.uint32_t(prop), out, C.uint32_t(len(buf)), &code)
	return uint32(n), ApplicationError(code)
}

func (nativeSession) Shutdown() {
	C.vros_shutdown()
}
