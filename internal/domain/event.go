package domain

// Event is what the watcher hands to the pipeline for one effective change
type Event struct {
	ID          string
	SourcePath  string
	Fingerprint string
	Synthetic   bool // emitted by a scan or sweep rather than a file-system notification
}
