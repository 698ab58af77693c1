package store

import "time"

const ItemTypeEtherpad = "etherpad"

// Permission levels stored on memberships, lowest first.
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
	PermissionAdmin = "admin"
)

type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Path        string    `json:"path"`
	Extra       ItemExtra `json:"extra"`
	Creator     string    `json:"creator"`
	IsPublic    bool      `json:"isPublic"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ItemExtra is persisted as the JSONB extra column of an item.
type ItemExtra struct {
	Etherpad *EtherpadExtra `json:"etherpad,omitempty"`
}

type EtherpadExtra struct {
	PadID   string `json:"padID"`
	GroupID string `json:"groupID"`
}

type Membership struct {
	ID         string
	MemberID   string
	ItemPath   string
	Permission string
	Creator    string
	CreatedAt  time.Time
}
