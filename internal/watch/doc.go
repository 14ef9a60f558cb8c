// Package watch bridges files dropped into watched directories onto the bus.
//
// Each rule binds a directory and a set of glob patterns to a kind
// (commands, database, firmware, logs). When a matching file is created or
// written, a task is queued and a worker publishes the file's contents with
// that kind's QoS and retain flag, then applies the kind's post-action
// (delete or keep).
//
// The fsnotify goroutine only enqueues. A full queue drops the task with a
// warning and leaves the file for a later event.
package watch
