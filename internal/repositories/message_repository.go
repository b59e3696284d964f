package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"realtime-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository is the durable, append-only message log. Read state is
// the only mutable part and every change to it is a single atomic update.
type MessageRepository interface {
	Append(ctx context.Context, msg models.Message) (models.Message, error)
	Get(ctx context.Context, messageID string) (models.Message, error)
	RecentPublic(ctx context.Context, limit int) ([]models.Message, error)
	RecentPrivate(ctx context.Context, userA, userB string, limit int) ([]models.Message, error)
	UnreadFor(ctx context.Context, userID string) ([]models.Message, error)
	UnreadCounts(ctx context.Context, userID string) (map[string]int, error)
	MarkRead(ctx context.Context, messageID, readerID string, at time.Time) (models.Message, bool, error)
	MarkAllReadFrom(ctx context.Context, readerID, senderID string, at time.Time) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `seq, id, content, sender_id, sender_name, recipient_id, created_at, is_private, read_by, read_at`

type messageRow struct {
	Seq         int64          `db:"seq"`
	ID          string         `db:"id"`
	Content     string         `db:"content"`
	SenderID    string         `db:"sender_id"`
	SenderName  string         `db:"sender_name"`
	RecipientID sql.NullString `db:"recipient_id"`
	CreatedAt   time.Time      `db:"created_at"`
	IsPrivate   bool           `db:"is_private"`
	ReadBy      pq.StringArray `db:"read_by"`
	ReadAt      sql.NullTime   `db:"read_at"`
}

func (r messageRow) toModel() models.Message {
	msg := models.Message{
		ID:         r.ID,
		Seq:        r.Seq,
		Content:    r.Content,
		SenderID:   r.SenderID,
		SenderName: r.SenderName,
		CreatedAt:  r.CreatedAt,
		IsPrivate:  r.IsPrivate,
		ReadBy:     []string(r.ReadBy),
	}
	if r.RecipientID.Valid {
		recipient := r.RecipientID.String
		msg.RecipientID = &recipient
	}
	if r.ReadAt.Valid {
		readAt := r.ReadAt.Time
		msg.ReadAt = &readAt
	}
	return msg.Normalize()
}

func toModels(rows []messageRow) []models.Message {
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
	}
	return msgs
}

// Append stores a message and assigns its sequence number.
func (r *MessageRepo) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	msg = msg.Normalize()
	var recipient sql.NullString
	if msg.RecipientID != nil {
		recipient = sql.NullString{String: *msg.RecipientID, Valid: true}
	}
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, content, sender_id, sender_name, recipient_id, created_at, is_private, read_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING seq`,
		msg.ID, msg.Content, msg.SenderID, msg.SenderName, recipient, msg.CreatedAt, msg.IsPrivate, pq.StringArray(msg.ReadBy)).
		Scan(&msg.Seq)
	return msg, err
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// RecentPublic returns the newest public messages in chronological order.
func (r *MessageRepo) RecentPublic(ctx context.Context, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM (
            SELECT ` + messageColumns + ` FROM messages WHERE is_private = FALSE
            ORDER BY seq DESC` + limitClause(limit) + `
        ) recent ORDER BY seq ASC`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// RecentPrivate returns the newest messages exchanged between two users in
// chronological order.
func (r *MessageRepo) RecentPrivate(ctx context.Context, userA, userB string, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM (
            SELECT ` + messageColumns + ` FROM messages
            WHERE is_private = TRUE
            AND ((sender_id=$1 AND recipient_id=$2) OR (sender_id=$2 AND recipient_id=$1))
            ORDER BY seq DESC` + limitClause(limit) + `
        ) recent ORDER BY seq ASC`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, userA, userB); err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// UnreadFor returns every private message addressed to userID that userID
// has not read.
func (r *MessageRepo) UnreadFor(ctx context.Context, userID string) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages
        WHERE recipient_id=$1 AND is_private = TRUE AND NOT ($1 = ANY(read_by))
        ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// UnreadCounts groups the unread backlog of userID by sender.
func (r *MessageRepo) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT sender_id, COUNT(*) FROM messages
        WHERE recipient_id=$1 AND is_private = TRUE AND NOT ($1 = ANY(read_by))
        GROUP BY sender_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var senderID string
		var count int
		if err := rows.Scan(&senderID, &count); err != nil {
			return nil, err
		}
		counts[senderID] = count
	}
	return counts, rows.Err()
}

// MarkRead adds readerID to read_by in one conditional statement. The bool
// reports whether this call changed the row.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID, readerID string, at time.Time) (models.Message, bool, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `UPDATE messages SET read_by = array_append(read_by, $2), read_at = $3
        WHERE id=$1 AND NOT ($2 = ANY(read_by))
        RETURNING `+messageColumns, messageID, readerID, at)
	if errors.Is(err, sql.ErrNoRows) {
		msg, getErr := r.Get(ctx, messageID)
		return msg, false, getErr
	}
	if err != nil {
		return models.Message{}, false, err
	}
	return row.toModel(), true, nil
}

// MarkAllReadFrom marks every unread private message from senderID to
// readerID and returns the rows it changed.
func (r *MessageRepo) MarkAllReadFrom(ctx context.Context, readerID, senderID string, at time.Time) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `UPDATE messages SET read_by = array_append(read_by, $1), read_at = $3
        WHERE recipient_id=$1 AND sender_id=$2 AND is_private = TRUE AND NOT ($1 = ANY(read_by))
        RETURNING `+messageColumns, readerID, senderID, at)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	return toModels(rows), nil
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return " LIMIT " + strconv.Itoa(limit)
}
