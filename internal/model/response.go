package model

// Response 合成后的统一回复
type Response struct {
	Text              string    `json:"text"`
	DominantDimension Dimension `json:"dominant_dimension,omitempty"`
	ActionTags        []string  `json:"action_tags"`
	Awards            []Award   `json:"awards,omitempty"`
	AwardDescriptions []string  `json:"experience_awarded"`
	Failures          []string  `json:"failures,omitempty"`
	Clarification     bool      `json:"clarification,omitempty"`
}

// Goal 当前最高优先级目标
type Goal struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Purpose  string `json:"purpose,omitempty"`
	Result   string `json:"result,omitempty"`
	Priority int    `json:"priority"`
	Status   string `json:"status"`
	XPTarget int    `json:"xp_target,omitempty"`
	Progress int    `json:"progress"`
}
