package core

import "sync"

type EventContext struct {
	// 128 bytes
	Data struct {
		I64 [2]int64
		U64 [2]uint64
		F64 [2]float64

		I32 [4]int32
		U32 [4]uint32
		F32 [4]float32

		I16 [8]int16
		U16 [8]uint16

		I8 [16]int8
		U8 [16]uint8

		C [16]string
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// An asset file was created or modified on disk.
	/* Context usage:
	 * string path = data.Data.C[0];
	 */
	EVENT_CODE_ASSET_CHANGED SystemEventCode = 0x02

	// An asset file was removed from disk.
	/* Context usage:
	 * string path = data.Data.C[0];
	 */
	EVENT_CODE_ASSET_REMOVED SystemEventCode = 0x03

	// A texture finished (re)loading.
	/* Context usage:
	 * string name = data.Data.C[0];
	 * u64 token = data.Data.U64[0];
	 */
	EVENT_CODE_TEXTURE_LOADED SystemEventCode = 0x04

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// State structure.
type eventSystemState struct {
	mutex sync.RWMutex
	// Lookup table for event codes.
	registered map[SystemEventCode][]*registeredEvent
}

var eventState *eventSystemState = nil
var eventMutex sync.Mutex

func EventInitialize() bool {
	eventMutex.Lock()
	defer eventMutex.Unlock()
	if eventState != nil {
		return false
	}
	eventState = &eventSystemState{
		registered: make(map[SystemEventCode][]*registeredEvent),
	}
	return true
}

func EventShutdown() error {
	eventMutex.Lock()
	defer eventMutex.Unlock()
	// Objects pointed to by listeners should be destroyed on their own.
	eventState = nil
	return nil
}

func currentEventState() *eventSystemState {
	eventMutex.Lock()
	defer eventMutex.Unlock()
	return eventState
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listeners will not be registered again and will cause this to return false.
 * @param code The event code to listen for.
 * @param listener A listener instance. Can be nil.
 * @param onEvent The callback to be invoked when the event code is fired.
 * @returns true if the event is successfully registered; otherwise false.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	state := currentEventState()
	if state == nil || code >= MAX_MESSAGE_CODES {
		return false
	}
	state.mutex.Lock()
	defer state.mutex.Unlock()

	for _, e := range state.registered[code] {
		if e.listener == listener {
			LogWarn("event code %d already has this listener registered", code)
			return false
		}
	}
	state.registered[code] = append(state.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns false.
 * @param code The event code to stop listening for.
 * @param listener A listener instance. Can be nil.
 * @returns true if the event is successfully unregistered; otherwise false.
 */
func EventUnregister(code SystemEventCode, listener interface{}) bool {
	state := currentEventState()
	if state == nil {
		return false
	}
	state.mutex.Lock()
	defer state.mutex.Unlock()

	events := state.registered[code]
	for i, e := range events {
		if e.listener == listener {
			state.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	// Not found.
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 * @param code The event code to fire.
 * @param sender The sender. Can be nil.
 * @param context The event data.
 * @returns true if handled, otherwise false.
 */
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	state := currentEventState()
	if state == nil {
		return false
	}
	state.mutex.RLock()
	events := make([]*registeredEvent, len(state.registered[code]))
	copy(events, state.registered[code])
	state.mutex.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}
