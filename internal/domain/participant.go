package domain

import "time"

// Participant 被照护对象（onboarding 时创建，核心逻辑只按 ID 引用）
type Participant struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	DOB       *time.Time `json:"dob,omitempty"`
	Address   string     `json:"address,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
