package service

// State is the lifecycle state of the embedded HTTP server. There is
// exactly one state value per controller and transitions are serialized.
type State int

const (
	// Stopped means no server instance exists. Initial state.
	Stopped State = iota
	// Starting means a bind attempt is in progress.
	Starting
	// Running means the server is accepting connections.
	Running
	// Stopping means a graceful shutdown is draining in-flight requests.
	Stopping
	// Failed means the last start attempt could not bind; start() retries.
	Failed
)

var stateNames = map[State]string{
	Stopped:  "stopped",
	Starting: "starting",
	Running:  "running",
	Stopping: "stopping",
	Failed:   "failed",
}

// String returns the lowercase state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
