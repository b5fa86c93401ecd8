package queue

// State is the authoritative answer to "should new requests queue?" for a
// given model. It mirrors the Model Instance's lifecycle but lives in the
// Queue Manager because the Queue Manager, not the Instance, is what
// callers ask before deciding to enqueue.
type State string

const (
	// Stopped is the initial state: no process, no queue admission.
	Stopped State = "stopped"
	// Starting means a child process is being launched and health-probed;
	// new requests for this model queue.
	Starting State = "starting"
	// Running means the instance passed its health probe; requests
	// forward directly.
	Running State = "running"
	// Stopping means a graceful-stop is in progress.
	Stopping State = "stopping"
	// Reloading is the macro transition driven by Manager.Reload.
	Reloading State = "reloading"
)

// ShouldQueue reports whether requests for a model in this state must wait
// in the queue rather than forward immediately.
func (s State) ShouldQueue() bool {
	return s == Starting || s == Reloading
}
