package models

import "time"

type ChatChannelType string

const (
	ChannelGeneral ChatChannelType = "general"
	ChannelProject ChatChannelType = "project"
	ChannelSprint  ChatChannelType = "sprint"
	ChannelTask    ChatChannelType = "task"
)

// ChatChannel groups threads. Entity-scoped channels carry the id of the
// project, sprint or task they belong to in EntityID.
type ChatChannel struct {
	ID          string          `json:"id" bson:"_id,omitempty"`
	Name        string          `json:"name" bson:"name"`
	Description string          `json:"description,omitempty" bson:"description,omitempty"`
	Type        ChatChannelType `json:"type" bson:"type"`
	EntityID    string          `json:"entityId,omitempty" bson:"entityId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt" bson:"createdAt"`
}

// ChatThread always has at least one message; it is created together with its
// first message, and LastMessageAt/MessageCount move with every post.
type ChatThread struct {
	ID              string    `json:"id" bson:"_id,omitempty"`
	ChannelID       string    `json:"channelId" bson:"channelId"`
	Title           string    `json:"title" bson:"title"`
	CreatedByUserID string    `json:"createdByUserId" bson:"createdByUserId"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
	LastMessageAt   time.Time `json:"lastMessageAt" bson:"lastMessageAt"`
	MessageCount    int       `json:"messageCount" bson:"messageCount"`
}

type ChatMessage struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	ThreadID  string    `json:"threadId" bson:"threadId"`
	UserID    string    `json:"userId" bson:"userId"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
