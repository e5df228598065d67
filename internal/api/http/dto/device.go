package dto

type StartDeviceFlowRequest struct {
	AgentName string `json:"agent_name" binding:"required"`
	RobotType string `json:"robot_type" binding:"required"`
}

type StartDeviceFlowResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
	VerificationURL string `json:"verification_url"`
}

type PollDeviceFlowRequest struct {
	DeviceCode string `json:"device_code" binding:"required"`
}

type PollDeviceFlowResponse struct {
	Status  string `json:"status"`
	APIKey  string `json:"api_key,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
}

type ApproveDeviceRequest struct {
	UserCode string `json:"user_code" binding:"required"`
}

type ApproveDeviceResponse struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
}

type DenyDeviceRequest struct {
	UserCode string `json:"user_code" binding:"required"`
}

type DenyDeviceResponse struct {
	Status string `json:"status"`
}
