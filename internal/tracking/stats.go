package tracking

import (
	"context"

	"github.com/radiusdt/leadtrack/internal/metrics"
	"github.com/radiusdt/leadtrack/internal/models"
	"github.com/radiusdt/leadtrack/internal/storage"
	"go.uber.org/zap"
)

// StatsMaintainer keeps the denormalized per-(campaign, adset, ad)
// counters in sync with lead transitions. Maintenance is best-effort:
// failures are logged and counted, never surfaced to the postback path.
type StatsMaintainer struct {
	stats   storage.StatsRepo
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewStatsMaintainer(stats storage.StatsRepo, logger *zap.Logger, m *metrics.Metrics) *StatsMaintainer {
	return &StatsMaintainer{stats: stats, logger: logger, metrics: m}
}

// bucketColumn maps a notification type (or raw status synonym) to its
// counter column.
func bucketColumn(ntype string) (string, bool) {
	switch ntype {
	case models.TypeLead:
		return "leads", true
	case models.TypeConversao, "approval":
		return "conversoes", true
	case models.TypeCancel, "rejection":
		return "cancel", true
	case models.TypeTrash:
		return "trash", true
	}
	return "", false
}

// normalizeBucket fills the counter key the way buckets are stored:
// adset and ad default to N/A, a missing campaign disables counting.
func normalizeBucket(campaign, adset, ad string) (string, string, string, bool) {
	if campaign == "" {
		return "", "", "", false
	}
	if adset == "" {
		adset = "N/A"
	}
	if ad == "" {
		ad = "N/A"
	}
	return campaign, adset, ad, true
}

// RecordCreate counts a freshly created record.
func (sm *StatsMaintainer) RecordCreate(ctx context.Context, campaign, adset, ad, ntype string, meta models.StatsMeta) {
	campaign, adset, ad, ok := normalizeBucket(campaign, adset, ad)
	if !ok {
		return
	}
	column, ok := bucketColumn(ntype)
	if !ok {
		sm.logger.Warn("unknown notification type for stats", zap.String("type", ntype))
		return
	}

	if err := sm.stats.Increment(ctx, campaign, adset, ad, column, meta); err != nil {
		sm.fail("increment", campaign, adset, ad, err)
	}
}

// RecordTransition migrates one unit between counter columns when a
// record's notification type changes. No-op when the type is unchanged.
func (sm *StatsMaintainer) RecordTransition(ctx context.Context, campaign, adset, ad, oldType, newType string, meta models.StatsMeta) {
	if oldType == newType {
		return
	}
	campaign, adset, ad, ok := normalizeBucket(campaign, adset, ad)
	if !ok {
		return
	}
	oldColumn, okOld := bucketColumn(oldType)
	newColumn, okNew := bucketColumn(newType)
	if !okOld || !okNew {
		sm.logger.Warn("unknown notification type for stats",
			zap.String("old_type", oldType),
			zap.String("new_type", newType),
		)
		return
	}
	if oldColumn == newColumn {
		return
	}

	if err := sm.stats.Transition(ctx, campaign, adset, ad, oldColumn, newColumn, meta); err != nil {
		sm.fail("transition", campaign, adset, ad, err)
	}
}

func (sm *StatsMaintainer) fail(op, campaign, adset, ad string, err error) {
	sm.logger.Error("campaign stats update failed",
		zap.String("op", op),
		zap.String("campaign", campaign),
		zap.String("adset", adset),
		zap.String("ad", ad),
		zap.Error(err),
	)
	if sm.metrics != nil {
		sm.metrics.RecordStatsFailure(op)
	}
}
