package vectorindex

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pgSkillVector is the GORM model backing PostgresIndex, modeled on the
// teacher's embedding-table pattern: one row per skill id, HNSW indexes on
// both vector columns, content hash carried alongside for cache gating.
type pgSkillVector struct {
	ID          string `gorm:"primaryKey;size:128"`
	ContentHash string `gorm:"size:64;not null"`
	DescVector  pgvector.Vector
	CodeVector  pgvector.Vector
}

func (pgSkillVector) TableName() string { return "codemode_skill_vectors" }

// PostgresIndex is an Index backed by Postgres + pgvector, grounded on the
// teacher's gorm-based embedding store. Suited to deployments that already
// run Postgres for other catalog state and want a single dependency.
type PostgresIndex struct {
	db       *gorm.DB
	embedder Embedder
}

// NewPostgresIndex opens (migrating if needed) the skill-vector table and
// its HNSW indexes, dropping and recreating it if the embedder's dimension
// no longer matches the stored column type.
func NewPostgresIndex(db *gorm.DB, embedder Embedder) (*PostgresIndex, error) {
	p := &PostgresIndex{db: db, embedder: embedder}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PostgresIndex) ensureSchema() error {
	if err := p.db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("vectorindex: enable pgvector extension: %w", err)
	}

	dim := p.embedder.ModelInfo().Dimension
	if p.db.Migrator().HasTable(&pgSkillVector{}) {
		var storedDim int
		row := p.db.Raw(`
			SELECT atttypmod FROM pg_attribute
			WHERE attrelid = ?::regclass AND attname = 'desc_vector'
		`, pgSkillVector{}.TableName()).Row()
		_ = row.Scan(&storedDim)
		if storedDim != 0 && storedDim != dim {
			if err := p.db.Migrator().DropTable(&pgSkillVector{}); err != nil {
				return fmt.Errorf("vectorindex: drop stale table: %w", err)
			}
		}
	}

	if err := p.db.AutoMigrate(&pgSkillVector{}); err != nil {
		return fmt.Errorf("vectorindex: migrate skill vector table: %w", err)
	}

	table := pgSkillVector{}.TableName()
	for _, stmt := range []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_desc_hnsw ON %s USING hnsw (desc_vector vector_cosine_ops)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_code_hnsw ON %s USING hnsw (code_vector vector_cosine_ops)`, table, table),
	} {
		if err := p.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("vectorindex: create hnsw index: %w", err)
		}
	}
	return nil
}

func (p *PostgresIndex) Add(ctx context.Context, id, description, source, contentHash string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	var existing pgSkillVector
	err := p.db.WithContext(ctx).First(&existing, "id = ?", id).Error
	if err == nil && existing.ContentHash == contentHash {
		return nil
	}
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}

	descVec, err := p.embedder.Embed(ctx, description)
	if err != nil {
		return err
	}
	codeVec, err := p.embedder.Embed(ctx, source)
	if err != nil {
		return err
	}

	row := pgSkillVector{
		ID:          id,
		ContentHash: contentHash,
		DescVector:  pgvector.NewVector(descVec),
		CodeVector:  pgvector.NewVector(codeVec),
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content_hash", "desc_vector", "code_vector"}),
	}).Create(&row).Error
}

func (p *PostgresIndex) Remove(ctx context.Context, id string) error {
	return p.db.WithContext(ctx).Delete(&pgSkillVector{}, "id = ?", id).Error
}

type pgSearchRow struct {
	ID       string
	Distance float64
}

func (p *PostgresIndex) searchColumn(ctx context.Context, column string, vec pgvector.Vector, k int) ([]ScoredID, error) {
	if k <= 0 {
		return nil, nil
	}
	var rows []pgSearchRow
	table := pgSkillVector{}.TableName()
	err := p.db.WithContext(ctx).
		Table(table).
		Select(fmt.Sprintf("id, %s <=> ? AS distance", column), vec).
		Order(fmt.Sprintf("%s <=> ?", column), vec).
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]ScoredID, 0, len(rows))
	for _, r := range rows {
		out = append(out, ScoredID{ID: r.ID, Score: SimilarityFromDistance(r.Distance)})
	}
	return out, nil
}

func (p *PostgresIndex) Search(ctx context.Context, query string, limit int, descWeight, codeWeight float64) ([]ScoredID, error) {
	if limit <= 0 {
		return nil, nil
	}
	queryVec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	count, err := p.Count(ctx)
	if err != nil {
		return nil, err
	}
	k := searchK(limit, count)
	vec := pgvector.NewVector(queryVec)

	descResults, err := p.searchColumn(ctx, "desc_vector", vec, k)
	if err != nil {
		return nil, err
	}
	codeResults, err := p.searchColumn(ctx, "code_vector", vec, k)
	if err != nil {
		return nil, err
	}
	return combine(descResults, codeResults, limit, descWeight, codeWeight), nil
}

func (p *PostgresIndex) ContentHash(ctx context.Context, id string) (string, bool, error) {
	var row pgSkillVector
	err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.ContentHash, true, nil
}

func (p *PostgresIndex) GetModelInfo(ctx context.Context) (ModelInfo, error) {
	return p.embedder.ModelInfo(), nil
}

func (p *PostgresIndex) Clear(ctx context.Context) error {
	return p.db.WithContext(ctx).Exec(fmt.Sprintf("TRUNCATE TABLE %s", pgSkillVector{}.TableName())).Error
}

func (p *PostgresIndex) Count(ctx context.Context) (int, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&pgSkillVector{}).Count(&count).Error
	return int(count), err
}
