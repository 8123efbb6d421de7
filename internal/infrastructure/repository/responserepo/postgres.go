package responserepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/responses"
)

type responseRecordEntity struct {
	ID         string         `gorm:"column:id;primaryKey"`
	Payload    datatypes.JSON `gorm:"column:payload;not null"`
	InputItems datatypes.JSON `gorm:"column:input_items;not null"`
	CreatedAt  int64          `gorm:"column:created_at;index"`
}

func (responseRecordEntity) TableName() string { return "response_records" }

// Postgres stores response records as jsonb rows.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres migrates the schema and returns the store.
func NewPostgres(db *gorm.DB) (*Postgres, error) {
	if err := db.AutoMigrate(&responseRecordEntity{}); err != nil {
		return nil, fmt.Errorf("migrate response_records: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Put(ctx context.Context, record *responses.Record) error {
	payload, err := json.Marshal(record.Response)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	items, err := json.Marshal(record.InputItems)
	if err != nil {
		return fmt.Errorf("encode input items: %w", err)
	}
	entity := responseRecordEntity{
		ID:         record.Response.ID,
		Payload:    payload,
		InputItems: items,
		CreatedAt:  record.CreatedAt,
	}
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&entity).Error
}

func (p *Postgres) Get(ctx context.Context, id string) (*responses.Record, error) {
	var entity responseRecordEntity
	err := p.db.WithContext(ctx).First(&entity, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierror.NotFound("response %s not found", id).WithCode("response_not_found")
	}
	if err != nil {
		return nil, err
	}

	record := &responses.Record{CreatedAt: entity.CreatedAt}
	if err := json.Unmarshal(entity.Payload, &record.Response); err != nil {
		return nil, fmt.Errorf("decode response %s: %w", id, err)
	}
	if err := json.Unmarshal(entity.InputItems, &record.InputItems); err != nil {
		return nil, fmt.Errorf("decode input items %s: %w", id, err)
	}
	return record, nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	return p.db.WithContext(ctx).Delete(&responseRecordEntity{}, "id = ?", id).Error
}

func (p *Postgres) ListInputItems(ctx context.Context, id string, params responses.ListInputItemsParams) (*responses.ItemPage, error) {
	record, err := p.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return PageItems(record.InputItems, params)
}

var _ responses.Store = (*Postgres)(nil)
