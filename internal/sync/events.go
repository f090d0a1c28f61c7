package sync

// EventSink receives the UI-facing events the outgoing and file-transfer
// workers emit (spec.md §6's messaging channel events: `sync:file:
// uploaded`, `sync:file:downloaded`, `sync:outgoing:failure`), mirroring
// the shape internal/profile.EventSink already uses for `sync:incoming` so
// both can be backed by the same dispatcher adapter.
type EventSink interface {
	Emit(name string, payload interface{})
}
