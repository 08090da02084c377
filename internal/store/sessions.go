package store

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Session records the LLM conversation lineage backing a task: which agent
// session produced it, and the session/parent/root chain used to resume or
// fork conversations across planning and continuation.
type Session struct {
	SessionID       string    `json:"sessionId"`
	ParentSessionID string    `json:"parentSessionId,omitempty"`
	RootSessionID   string    `json:"rootSessionId"`
	TaskID          string    `json:"taskId,omitempty"`
	AgentType       string    `json:"agentType"`
	CreatedAt       time.Time `json:"createdAt"`
}

// SaveSession upserts session lineage information. Session records are not
// CAS-guarded: they are written once per session id and never concurrently
// contested the way tasks are.
func (s *Store) SaveSession(ctx context.Context, sess *Session) error {
	lock := s.lockFor("session:" + sess.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	return writeAtomic(s.sessionPath(sess.SessionID), sess)
}

// GetSession retrieves session lineage by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	lock := s.lockFor("session:" + sessionID)
	lock.Lock()
	defer lock.Unlock()

	var sess Session
	if err := readJSON(s.sessionPath(sessionID), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns every session record, in id order.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	ids, err := s.listIDs("sessions")
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// DeleteSession removes a session record. Not an error if absent.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	lock := s.lockFor("session:" + sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.sessionPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete session %q: %w", sessionID, err)
	}
	return nil
}
