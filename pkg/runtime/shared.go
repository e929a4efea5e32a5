package runtime

import "sync"

var (
	sharedMu   sync.Mutex
	sharedPool *Pool
)

// Acquire registers one async client against the process-wide shared
// runtime, creating and starting it on the first registration (spec
// §4.I "creating an async client automatically starts the runtime and
// registers"). Each Acquire must be paired with a Release.
func Acquire() *Pool {
	sharedMu.Lock()
	if sharedPool == nil {
		sharedPool = New(0)
	}
	p := sharedPool
	sharedMu.Unlock()
	p.acquire()
	return p
}

// Release unregisters one async client from the shared runtime, stopping
// it once the last registrant drops (spec §4.I "dropping the last client
// stops it").
func Release() {
	sharedMu.Lock()
	p := sharedPool
	sharedMu.Unlock()
	if p != nil {
		p.release()
	}
}

// Shared returns the process-wide runtime, constructing it (unstarted) if
// it does not exist yet. Exposed so advanced callers can call
// NextIOContext/IsolatedIOContext without going through an async client.
func Shared() *Pool {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedPool == nil {
		sharedPool = New(0)
	}
	return sharedPool
}
