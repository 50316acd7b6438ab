package interfaces

import "context"

type ConsistencyAuditor interface {
	CheckConsistency(ctx context.Context, accountID string) (*ConsistencyReport, error)
	FixInconsistencies(ctx context.Context, accountID string) (*FixResult, error)
	MaintainConsistency(ctx context.Context, accountID string) (*MaintenanceResult, error)
	MaintainAll(ctx context.Context) map[string]*MaintenanceResult
}

type FolderInconsistency struct {
	FolderID     string `json:"folderId"`
	Path         string `json:"path"`
	LocalTotal   int    `json:"localTotal"`
	RemoteTotal  int    `json:"remoteTotal"`
	LocalUnread  int    `json:"localUnread"`
	RemoteUnread int    `json:"remoteUnread"`
}

type ConsistencyReport struct {
	AccountID     string                `json:"accountId"`
	FoldersLocal  int                   `json:"foldersLocal"`
	FoldersRemote int                   `json:"foldersRemote"`
	MissingLocal  []string              `json:"missingLocal"`
	MissingRemote []string              `json:"missingRemote"`
	Inconsistent  []FolderInconsistency `json:"inconsistent"`
	Errors        []string              `json:"errors"`
}

func (r *ConsistencyReport) IsConsistent() bool {
	return len(r.Inconsistent) == 0 && len(r.MissingLocal) == 0 && len(r.MissingRemote) == 0
}

type FixResult struct {
	FoldersFixed     int      `json:"foldersFixed"`
	MessagesResynced int      `json:"messagesResynced"`
	OrphansRemoved   int64    `json:"orphansRemoved"`
	FoldersPruned    int      `json:"foldersPruned"`
	Errors           []string `json:"errors"`
}

type MaintenanceResult struct {
	Success bool               `json:"success"`
	Report  *ConsistencyReport `json:"report,omitempty"`
	Fixes   *FixResult         `json:"fixes,omitempty"`
	Error   string             `json:"error,omitempty"`
}
