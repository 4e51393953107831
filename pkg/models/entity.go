package models

import "time"

// Issue is a synchronized issue record. Its identity is the server-assigned ID;
// Key is the human-readable reference such as PROJ-1.
type Issue struct {
	ID          string    `json:"id" mapstructure:"id" validate:"required"`
	Key         string    `json:"key,omitempty" mapstructure:"key"`
	ProjectID   string    `json:"projectId" mapstructure:"projectId" validate:"required"`
	Title       string    `json:"title,omitempty" mapstructure:"title"`
	Description string    `json:"description,omitempty" mapstructure:"description"`
	Type        string    `json:"type,omitempty" mapstructure:"type"`
	Status      string    `json:"status,omitempty" mapstructure:"status"`
	Priority    string    `json:"priority,omitempty" mapstructure:"priority"`
	AssigneeID  string    `json:"assigneeId,omitempty" mapstructure:"assigneeId"`
	ReporterID  string    `json:"reporterId,omitempty" mapstructure:"reporterId"`
	SprintID    string    `json:"sprintId,omitempty" mapstructure:"sprintId"`
	StoryPoints int       `json:"storyPoints,omitempty" mapstructure:"storyPoints"`
	Labels      []string  `json:"labels,omitempty" mapstructure:"labels"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty" mapstructure:"updatedAt"`
}

// Sprint is a synchronized sprint record.
type Sprint struct {
	ID        string    `json:"id" mapstructure:"id" validate:"required"`
	ProjectID string    `json:"projectId" mapstructure:"projectId" validate:"required"`
	Name      string    `json:"name,omitempty" mapstructure:"name"`
	Goal      string    `json:"goal,omitempty" mapstructure:"goal"`
	Status    string    `json:"status,omitempty" mapstructure:"status"`
	StartDate time.Time `json:"startDate,omitempty" mapstructure:"startDate"`
	EndDate   time.Time `json:"endDate,omitempty" mapstructure:"endDate"`
}

// Comment is not kept in the shared store. It is handed to interested views
// through a local notification.
type Comment struct {
	ID        string    `json:"id" validate:"required"`
	IssueID   string    `json:"issueId" validate:"required"`
	ProjectID string    `json:"projectId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	UserName  string    `json:"userName,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}
