// Package cleanup runs fire-and-forget Etherpad deletions in the background.
package cleanup

import (
	"time"
)

type Kind string

const (
	KindDeletePad     Kind = "delete_pad"
	KindDeleteSession Kind = "delete_session"
)

// Task is one pending deletion on the Etherpad server.
type Task struct {
	Kind       Kind      `json:"kind"`
	Target     string    `json:"target"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func DeletePad(padID string) Task {
	return Task{Kind: KindDeletePad, Target: padID, EnqueuedAt: time.Now().UTC()}
}

func DeleteSession(sessionID string) Task {
	return Task{Kind: KindDeleteSession, Target: sessionID, EnqueuedAt: time.Now().UTC()}
}
