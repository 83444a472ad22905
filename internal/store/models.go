package store

// Invitation statuses as stored.
const (
	InvitationPending  = "PENDING"
	InvitationAccepted = "ACCEPTED"
	InvitationRejected = "REJECTED"
)

// User is an account row. Timestamps are unix milliseconds.
type User struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string
	Role         string `gorm:"not null"`
	AvatarURL    string
	Version      int64 `gorm:"not null;default:0"`
	CreatedAt    int64 `gorm:"autoCreateTime:milli"`
	UpdatedAt    int64 `gorm:"autoUpdateTime:milli"`
}

// Invitation is keyed by (receiver, sender): one per pair.
type Invitation struct {
	ReceiverID string `gorm:"primaryKey"`
	SenderID   string `gorm:"primaryKey;index"`
	Status     string `gorm:"index;not null"`
	CreatedAt  int64  `gorm:"autoCreateTime:milli"`
	UpdatedAt  int64  `gorm:"autoUpdateTime:milli"`
}

// Connection is one direction of a symmetric connection.
type Connection struct {
	UserID    string `gorm:"primaryKey"`
	PeerID    string `gorm:"primaryKey"`
	CreatedAt int64  `gorm:"autoCreateTime:milli"`
}

// Chat is a conversation. PairKey is set for one-to-one chats only and is
// unique, which makes the unordered participant pair unique.
type Chat struct {
	ID            string `gorm:"primaryKey"`
	Name          string
	IsGroupChat   bool
	AdminID       string
	PairKey       *string `gorm:"uniqueIndex"`
	LastMessageID *string
	Participants  []ChatParticipant `gorm:"foreignKey:ChatID"`
	CreatedAt     int64             `gorm:"autoCreateTime:milli"`
	UpdatedAt     int64             `gorm:"autoUpdateTime:milli;index"`
}

// ParticipantIDs returns the participant user ids in insertion order.
func (c *Chat) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// HasParticipant reports whether userID takes part in the chat.
func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ChatParticipant links a user to a chat.
type ChatParticipant struct {
	ChatID   string `gorm:"primaryKey"`
	UserID   string `gorm:"primaryKey;index"`
	Position int
}

// Message is a chat message. IDs are UUIDv7, so (created_at, id) orders them.
type Message struct {
	ID       string `gorm:"primaryKey"`
	ChatID   string `gorm:"index:idx_messages_chat_created,priority:1;not null"`
	SenderID string `gorm:"index;not null"`
	Content  string
	// ContentFolded is Content lowercased in Go. Search matches against it
	// because SQLite's LOWER only folds ASCII.
	ContentFolded string        `gorm:"column:content_folded"`
	Attachments   []Attachment  `gorm:"foreignKey:MessageID"`
	Reads         []MessageRead `gorm:"foreignKey:MessageID"`
	CreatedAt     int64         `gorm:"autoCreateTime:milli;index:idx_messages_chat_created,priority:2"`
	UpdatedAt     int64         `gorm:"autoUpdateTime:milli"`
}

// Attachment is a stored file referenced by a message.
type Attachment struct {
	ID          uint   `gorm:"primaryKey"`
	MessageID   string `gorm:"index;not null"`
	Position    int
	URL         string
	LocalPath   string
	ContentType string
	Size        int64
}

// MessageRead records that a user has read a message.
type MessageRead struct {
	MessageID string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
	CreatedAt int64  `gorm:"autoCreateTime:milli"`
}

// AllModels lists the models drivers migrate.
func AllModels() []any {
	return []any{
		&User{},
		&Invitation{},
		&Connection{},
		&Chat{},
		&ChatParticipant{},
		&Message{},
		&Attachment{},
		&MessageRead{},
	}
}
