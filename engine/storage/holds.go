package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
	schedulerx "github.com/leadflowhq/leadflow/engine/scheduler"
)

type holdRow struct {
	bun.BaseModel `bun:"table:tentative_holds,alias:h"`

	ID             string    `bun:"id,pk"`
	ConversationID string    `bun:"conversation_id,notnull"`
	WindowStart    time.Time `bun:"window_start,notnull"`
	WindowEnd      time.Time `bun:"window_end,notnull"`
	Status         string    `bun:"status,notnull"`
	ReservationRef string    `bun:"reservation_ref,nullzero"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	ExpiresAt      time.Time `bun:"expires_at,notnull"`
	Version        int64     `bun:"version,notnull"`
}

// HoldStore is the Postgres schedulerx.HoldStore.
type HoldStore struct {
	db *bun.DB
}

func NewHoldStore(db *bun.DB) *HoldStore {
	return &HoldStore{db: db}
}

var _ schedulerx.HoldStore = (*HoldStore)(nil)

func (s *HoldStore) Load(ctx context.Context, id string) (*schedulerx.TentativeHold, error) {
	row := new(holdRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, schedulerx.ErrHoldNotFound
		}
		return nil, fmt.Errorf("load hold %s: %w", id, err)
	}
	return rowToHold(row), nil
}

func (s *HoldStore) Save(ctx context.Context, h *schedulerx.TentativeHold) error {
	if h == nil || h.ID == "" {
		return fmt.Errorf("%w: hold id is empty", contractx.ErrValidation)
	}

	row := holdToRow(h)
	row.Version = h.Version + 1

	res, err := s.db.NewUpdate().Model(row).
		WherePK().
		Where("h.version = ?", h.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save hold %s: %w", h.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		h.Version = row.Version
		return nil
	}

	res, err = s.db.NewInsert().Model(row).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert hold %s: %w", h.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		h.Version = row.Version
		return nil
	}

	return fmt.Errorf("%w: hold %s version %d was superseded",
		contractx.ErrStaleWrite, h.ID, h.Version)
}

func (s *HoldStore) ActiveForConversation(ctx context.Context, conversationID string) (*schedulerx.TentativeHold, error) {
	row := new(holdRow)
	err := s.db.NewSelect().Model(row).
		Where("conversation_id = ?", conversationID).
		Where("status IN (?)", bun.In([]string{
			string(schedulerx.HoldPending),
			string(schedulerx.HoldConfirmed),
		})).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, schedulerx.ErrHoldNotFound
		}
		return nil, fmt.Errorf("active hold for %s: %w", conversationID, err)
	}
	return rowToHold(row), nil
}

func (s *HoldStore) ListPending(ctx context.Context) ([]*schedulerx.TentativeHold, error) {
	var rows []holdRow
	err := s.db.NewSelect().Model(&rows).
		Where("status = ?", string(schedulerx.HoldPending)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending holds: %w", err)
	}

	holds := make([]*schedulerx.TentativeHold, 0, len(rows))
	for i := range rows {
		holds = append(holds, rowToHold(&rows[i]))
	}
	return holds, nil
}

func holdToRow(h *schedulerx.TentativeHold) *holdRow {
	return &holdRow{
		ID:             h.ID,
		ConversationID: h.ConversationID,
		WindowStart:    h.Window.Start,
		WindowEnd:      h.Window.End,
		Status:         string(h.Status),
		ReservationRef: h.ReservationRef,
		CreatedAt:      h.CreatedAt,
		ExpiresAt:      h.ExpiresAt,
		Version:        h.Version,
	}
}

func rowToHold(row *holdRow) *schedulerx.TentativeHold {
	return &schedulerx.TentativeHold{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		Window:         contractx.Window{Start: row.WindowStart, End: row.WindowEnd},
		Status:         schedulerx.HoldStatus(row.Status),
		ReservationRef: row.ReservationRef,
		CreatedAt:      row.CreatedAt,
		ExpiresAt:      row.ExpiresAt,
		Version:        row.Version,
	}
}
