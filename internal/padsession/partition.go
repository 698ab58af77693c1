// Package padsession keeps the Etherpad session cookie of a member in line
// with the sessions Etherpad knows about.
package padsession

import (
	"sort"
	"time"

	"padlink/api/internal/etherpad"
)

// Session is one Etherpad session id with its expiry in Unix seconds.
type Session struct {
	ID         string
	ValidUntil int64
}

// Partition splits the sessions of an author into those that may stay in the
// cookie and those that must be deleted. Valid is ordered newest first,
// Expired by id.
type Partition struct {
	Valid   []Session
	Expired []Session
}

func (p Partition) ValidIDs() []string {
	return ids(p.Valid)
}

func (p Partition) ExpiredIDs() []string {
	return ids(p.Expired)
}

// Classify partitions sessions in a single pass. A session without
// information or with a missing validUntil counts as expired.
func Classify(sessions map[string]*etherpad.SessionInfo, now time.Time) Partition {
	cutoff := now.Unix()
	var p Partition
	for id, info := range sessions {
		if info == nil || info.ValidUntil <= 0 || info.ValidUntil <= cutoff {
			var validUntil int64
			if info != nil {
				validUntil = info.ValidUntil
			}
			p.Expired = append(p.Expired, Session{ID: id, ValidUntil: validUntil})
			continue
		}
		p.Valid = append(p.Valid, Session{ID: id, ValidUntil: info.ValidUntil})
	}
	sortNewestFirst(p.Valid)
	sortByID(p.Expired)
	return p
}

// Include returns a copy of p where session is valid, whatever Etherpad
// reported about it.
func (p Partition) Include(session Session) Partition {
	out := Partition{
		Valid:   make([]Session, 0, len(p.Valid)+1),
		Expired: make([]Session, 0, len(p.Expired)),
	}
	for _, s := range p.Valid {
		if s.ID != session.ID {
			out.Valid = append(out.Valid, s)
		}
	}
	for _, s := range p.Expired {
		if s.ID != session.ID {
			out.Expired = append(out.Expired, s)
		}
	}
	out.Valid = append(out.Valid, session)
	sortNewestFirst(out.Valid)
	return out
}

// Evict keeps at most limit valid sessions, the ones expiring last, and moves
// the rest to Expired. The session with id pinned is never evicted and comes
// first in Valid. It returns the new partition and the evicted sessions.
func Evict(p Partition, limit int, pinned string) (Partition, []Session) {
	valid := append([]Session(nil), p.Valid...)
	expired := append([]Session(nil), p.Expired...)
	if limit < 0 {
		limit = 0
	}
	sortNewestFirst(valid)
	valid = pinFirst(valid, pinned)
	if len(valid) <= limit {
		return Partition{Valid: valid, Expired: expired}, nil
	}

	keep := limit
	if keep == 0 && pinned != "" && len(valid) > 0 && valid[0].ID == pinned {
		keep = 1
	}
	evicted := append([]Session(nil), valid[keep:]...)
	valid = valid[:keep]
	expired = append(expired, evicted...)
	sortByID(expired)
	return Partition{Valid: valid, Expired: expired}, evicted
}

// pinFirst moves the session with id pinned to the front, keeping the order of
// the others.
func pinFirst(sessions []Session, pinned string) []Session {
	if pinned == "" {
		return sessions
	}
	for i, s := range sessions {
		if s.ID != pinned {
			continue
		}
		copy(sessions[1:i+1], sessions[:i])
		sessions[0] = s
		break
	}
	return sessions
}

// sortNewestFirst orders by validUntil descending, then id ascending.
func sortNewestFirst(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].ValidUntil != sessions[j].ValidUntil {
			return sessions[i].ValidUntil > sessions[j].ValidUntil
		}
		return sessions[i].ID < sessions[j].ID
	})
}

func sortByID(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
}

func ids(sessions []Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ID)
	}
	return out
}
