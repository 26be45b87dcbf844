package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"statpay/internal/requestctx"
)

type Event struct {
	ID            string          `json:"id" csv:"id"`
	Action        string          `json:"action" csv:"action"`
	EntityType    string          `json:"entityType" csv:"entity_type"`
	EntityID      string          `json:"entityId" csv:"entity_id"`
	EmployerTaxID string          `json:"employerTaxId" csv:"employer_tax_id"`
	RequestID     string          `json:"requestId" csv:"request_id"`
	CreatedAt     time.Time       `json:"createdAt" csv:"created_at"`
	After         json.RawMessage `json:"after,omitempty" csv:"-"`
}

type Filter struct {
	Action        string
	EntityType    string
	EntityID      string
	EmployerTaxID string
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

// Record appends one event. The request id is taken from ctx when the call
// originates from an HTTP request.
func (s *Service) Record(ctx context.Context, action, entityType, entityID, employerTaxID string, after any) error {
	var afterJSON []byte
	if after != nil {
		payload, err := json.Marshal(after)
		if err != nil {
			return err
		}
		afterJSON = payload
	}

	_, err := s.DB.Exec(ctx, `
    INSERT INTO audit_events (id, action, entity_type, entity_id, employer_tax_id, request_id, after_json)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, uuid.NewString(), action, entityType, entityID, employerTaxID, requestctx.GetRequestID(ctx), afterJSON)
	return err
}

func (s *Service) Count(ctx context.Context, filter Filter) (int, error) {
	query, args := buildBaseQuery("SELECT COUNT(1)", filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) List(ctx context.Context, filter Filter, includeDetails bool, limit, offset int) ([]Event, error) {
	selectCols := "id, action, entity_type, entity_id, employer_tax_id, request_id, created_at"
	if includeDetails {
		selectCols += ", after_json"
	}
	query, args := buildBaseQuery("SELECT "+selectCols, filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var evt Event
		dest := []any{&evt.ID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.EmployerTaxID, &evt.RequestID, &evt.CreatedAt}
		if includeDetails {
			dest = append(dest, &evt.After)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func buildBaseQuery(prefix string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_events WHERE 1=1"
	var args []any
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		query += fmt.Sprintf(" AND %s = $%d", column, len(args))
	}
	add("action", filter.Action)
	add("entity_type", filter.EntityType)
	add("entity_id", filter.EntityID)
	add("employer_tax_id", filter.EmployerTaxID)
	return query, args
}
