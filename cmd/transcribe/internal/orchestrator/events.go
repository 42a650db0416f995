package orchestrator

// EventKind identifies a progress event.
type EventKind string

const (
	EventDurationKnown   EventKind = "duration_known"
	EventChunkCountKnown EventKind = "chunk_count_known"
	EventChunkCompleted  EventKind = "chunk_completed"
	EventDone            EventKind = "done"
)

// Event is one progress notification. Only the fields of its Kind are set:
//
//	DurationKnown:   DurationSeconds
//	ChunkCountKnown: ChunkCount
//	ChunkCompleted:  Index, OK, Progress
//	Done:            SuccessCount, Total
type Event struct {
	Kind  EventKind
	JobID string

	DurationSeconds float64
	ChunkCount      int
	Index           int
	OK              bool
	Progress        float64
	SuccessCount    int
	Total           int
}

// ProgressFunc receives events. Calls for one job never overlap.
type ProgressFunc func(Event)

func durationKnown(jobID string, seconds float64) Event {
	return Event{Kind: EventDurationKnown, JobID: jobID, DurationSeconds: seconds}
}

func chunkCountKnown(jobID string, n int) Event {
	return Event{Kind: EventChunkCountKnown, JobID: jobID, ChunkCount: n}
}

func chunkCompleted(jobID string, index int, ok bool, progress float64) Event {
	return Event{Kind: EventChunkCompleted, JobID: jobID, Index: index, OK: ok, Progress: progress}
}

func done(jobID string, successCount, total int) Event {
	return Event{Kind: EventDone, JobID: jobID, SuccessCount: successCount, Total: total}
}
