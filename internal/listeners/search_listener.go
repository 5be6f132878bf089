package listeners

import (
	"context"
	"strconv"
	"time"

	"AlertDesk/internal/models"
	"AlertDesk/pkg/logger"
	"AlertDesk/pkg/search"
	"AlertDesk/pkg/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const indexTimeout = 3 * time.Second

// BeneficiaryDoc renders a beneficiary as a search document.
func BeneficiaryDoc(b *models.Beneficiary) search.Doc {
	return search.Doc{
		ID:   strconv.FormatUint(uint64(b.ID), 10),
		Type: search.TypeBeneficiary,
		Fields: map[string]any{
			"name":         b.Name,
			"surname":      b.Surname,
			"telephone":    b.Telephone,
			"description":  b.Description,
			"company":      b.Company,
			"organization": strconv.FormatUint(uint64(b.OrganizationID), 10),
			"enabled":      b.Enabled,
		},
	}
}

// InitSearchListeners keeps the beneficiary index in step with saves.
func InitSearchListeners(engine search.Engine) {
	util.Sig().Connect(models.SigBeneficiarySaved, func(sender any, params ...any) {
		b, ok := sender.(*models.Beneficiary)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
		defer cancel()
		if err := engine.Index(ctx, BeneficiaryDoc(b)); err != nil {
			logger.Warn("index beneficiary failed", zap.Uint("beneficiary", b.ID), zap.Error(err))
		}
	})
}

// ReindexBeneficiaries loads every beneficiary into the index in batches.
func ReindexBeneficiaries(ctx context.Context, db *gorm.DB, engine search.Engine) (int, error) {
	var total int
	var batch []models.Beneficiary
	err := db.WithContext(ctx).Model(&models.Beneficiary{}).FindInBatches(&batch, 500, func(tx *gorm.DB, _ int) error {
		docs := make([]search.Doc, 0, len(batch))
		for i := range batch {
			docs = append(docs, BeneficiaryDoc(&batch[i]))
		}
		total += len(docs)
		return engine.IndexBatch(ctx, docs)
	}).Error
	if err != nil {
		return total, err
	}
	logger.Info("beneficiary index rebuilt", zap.Int("docs", total))
	return total, nil
}
