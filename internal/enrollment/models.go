package enrollment

// Registration statuses. Expiry is never stored: it is derived from
// expires_at at read time, so a pending row past its deadline reads as
// expired without a write.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
	StatusExpired  = "expired"

	// StatusAuthorizationPending is the poll wire status while the
	// registration waits for operator approval.
	StatusAuthorizationPending = "authorization_pending"
	// StatusComplete is the poll wire status carrying the minted key.
	StatusComplete = "complete"
)

// StartResult is returned to the device that initiated enrollment.
type StartResult struct {
	DeviceCode string
	UserCode   string
	ExpiresIn  int
	Interval   int
}

// PollResult carries the enrollment status back to the polling device.
// APIKey and AgentID are set only when Status is "complete".
type PollResult struct {
	Status  string
	APIKey  string
	AgentID string
}

// ApproveResult identifies the agent minted (or reused) by an approval.
type ApproveResult struct {
	AgentID   string
	AgentName string
}

// ApprovalInfo is the read-only projection behind the approval page.
type ApprovalInfo struct {
	UserCode  string
	AgentName string
	RobotType string
	Status    string
}
