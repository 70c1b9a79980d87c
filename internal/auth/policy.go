package auth

import (
	"strconv"
	"strings"
)

// Action is something a user asks the bot to do.
type Action string

const (
	ActionQuery       Action = "query"
	ActionUpload      Action = "upload"
	ActionUploadTable Action = "upload_table"
	ActionPurge       Action = "purge"
)

// PolicyService decides who may use the bot and which actions they may run.
type PolicyService struct {
	AdminUserIDs   map[int64]bool
	AllowedUserIDs map[int64]bool // empty means everyone is allowed
}

// NewPolicyService parses comma-separated id lists. Malformed ids are
// ignored.
func NewPolicyService(adminUserIDsStr, allowedUserIDsStr string) *PolicyService {
	return &PolicyService{
		AdminUserIDs:   parseIDs(adminUserIDsStr),
		AllowedUserIDs: parseIDs(allowedUserIDsStr),
	}
}

func parseIDs(s string) map[int64]bool {
	ids := make(map[int64]bool)
	if s == "" {
		return ids
	}
	for _, idStr := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err == nil {
			ids[id] = true
		}
	}
	return ids
}

// IsAdmin checks if a user is an admin.
func (p *PolicyService) IsAdmin(userID int64) bool {
	return p.AdminUserIDs[userID]
}

// IsAllowed checks if a user is allowed to use the bot at all.
func (p *PolicyService) IsAllowed(userID int64) bool {
	if len(p.AllowedUserIDs) == 0 {
		return true
	}
	if p.IsAdmin(userID) {
		return true
	}
	return p.AllowedUserIDs[userID]
}

// IsActionAllowed checks a specific action. Purge is admin-only and
// unknown actions are denied.
func (p *PolicyService) IsActionAllowed(userID int64, action Action) bool {
	if !p.IsAllowed(userID) {
		return false
	}
	if p.IsAdmin(userID) {
		return true
	}
	switch action {
	case ActionQuery, ActionUpload, ActionUploadTable:
		return true
	default:
		return false
	}
}
