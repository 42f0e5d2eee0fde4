package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
	statex "github.com/leadflowhq/leadflow/engine/state"
)

type conversationRow struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID                string          `bun:"id,pk"`
	Stage             string          `bun:"stage,notnull"`
	Slots             json.RawMessage `bun:"slots,type:jsonb"`
	FitScore          int             `bun:"fit_score,notnull,default:0"`
	ConsentRecordedAt *time.Time      `bun:"consent_recorded_at"`
	HoldID            string          `bun:"hold_id,nullzero"`
	PendingScheduling bool            `bun:"pending_scheduling,notnull,default:false"`
	ProposedWindow    json.RawMessage `bun:"proposed_window,type:jsonb,nullzero"`
	Objections        json.RawMessage `bun:"objections,type:jsonb,nullzero"`
	Version           int64           `bun:"version,notnull"`
	CreatedAt         time.Time       `bun:"created_at,notnull"`
	LastActivityAt    time.Time       `bun:"last_activity_at,notnull"`
}

// ConversationStore is the Postgres statex.Store.
type ConversationStore struct {
	db *bun.DB
}

func NewConversationStore(db *bun.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

var _ statex.Store = (*ConversationStore)(nil)

func (s *ConversationStore) Load(ctx context.Context, id string) (*statex.Conversation, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, statex.ErrInvalidID)
	}

	row := new(conversationRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, statex.ErrNotFound
		}
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	return rowToConversation(row)
}

// Save writes the conversation against the version it was loaded with. A
// zero-row update means either an unknown id (inserted) or a superseded
// version (ErrStaleWrite).
func (s *ConversationStore) Save(ctx context.Context, c *statex.Conversation) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	}

	row, err := conversationToRow(c)
	if err != nil {
		return err
	}
	row.Version = c.Version + 1

	res, err := s.db.NewUpdate().Model(row).
		WherePK().
		Where("c.version = ?", c.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", c.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		c.Version = row.Version
		return nil
	}

	res, err = s.db.NewInsert().Model(row).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert conversation %s: %w", c.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		c.Version = row.Version
		return nil
	}

	return fmt.Errorf("%w: conversation %s version %d was superseded",
		contractx.ErrStaleWrite, c.ID, c.Version)
}

func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.NewDelete().Model((*conversationRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

func (s *ConversationStore) ListActive(ctx context.Context) ([]*statex.Conversation, error) {
	var rows []conversationRow
	err := s.db.NewSelect().Model(&rows).
		Where("stage NOT IN (?)", bun.In([]string{
			string(statex.StageClosed),
			string(statex.StageAbandoned),
		})).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active conversations: %w", err)
	}

	out := make([]*statex.Conversation, 0, len(rows))
	for i := range rows {
		c, err := rowToConversation(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func conversationToRow(c *statex.Conversation) (*conversationRow, error) {
	slots, err := json.Marshal(c.Slots)
	if err != nil {
		return nil, fmt.Errorf("marshal slots for %s: %w", c.ID, err)
	}

	row := &conversationRow{
		ID:                c.ID,
		Stage:             string(c.Stage),
		Slots:             slots,
		FitScore:          c.FitScore,
		ConsentRecordedAt: c.ConsentRecordedAt,
		HoldID:            c.HoldID,
		PendingScheduling: c.PendingScheduling,
		Version:           c.Version,
		CreatedAt:         c.CreatedAt,
		LastActivityAt:    c.LastActivityAt,
	}
	if c.ProposedWindow != nil {
		w, err := json.Marshal(c.ProposedWindow)
		if err != nil {
			return nil, fmt.Errorf("marshal window for %s: %w", c.ID, err)
		}
		row.ProposedWindow = w
	}
	if len(c.Objections) > 0 {
		o, err := json.Marshal(c.Objections)
		if err != nil {
			return nil, fmt.Errorf("marshal objections for %s: %w", c.ID, err)
		}
		row.Objections = o
	}
	return row, nil
}

func rowToConversation(row *conversationRow) (*statex.Conversation, error) {
	c := &statex.Conversation{
		ID:                row.ID,
		Stage:             statex.Stage(row.Stage),
		FitScore:          row.FitScore,
		ConsentRecordedAt: row.ConsentRecordedAt,
		HoldID:            row.HoldID,
		PendingScheduling: row.PendingScheduling,
		Version:           row.Version,
		CreatedAt:         row.CreatedAt,
		LastActivityAt:    row.LastActivityAt,
	}
	if len(row.Slots) > 0 {
		if err := json.Unmarshal(row.Slots, &c.Slots); err != nil {
			return nil, fmt.Errorf("unmarshal slots for %s: %w", row.ID, err)
		}
	}
	c.EnsureSlotsMap()
	if len(row.ProposedWindow) > 0 {
		if err := json.Unmarshal(row.ProposedWindow, &c.ProposedWindow); err != nil {
			return nil, fmt.Errorf("unmarshal window for %s: %w", row.ID, err)
		}
	}
	if len(row.Objections) > 0 {
		if err := json.Unmarshal(row.Objections, &c.Objections); err != nil {
			return nil, fmt.Errorf("unmarshal objections for %s: %w", row.ID, err)
		}
	}
	return c, nil
}
