// internal/audit/indexer.go

// Package audit mirrors committed lifecycle transitions into Elasticsearch
// for search and reporting. The database row is the source of truth; this
// copy is best-effort and failures never reach the caller.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"healthcard-workers/internal/common/config"
	"healthcard-workers/internal/common/database"
	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/models"
)

type Indexer struct {
	es  *database.ElasticsearchClient
	cfg config.AuditConfig
	log logger.Logger
}

func NewIndexer(es *database.ElasticsearchClient, cfg config.AuditConfig, log logger.Logger) *Indexer {
	return &Indexer{
		es:  es,
		cfg: cfg,
		log: log.WithFields(map[string]interface{}{"component": "audit"}),
	}
}

// Record indexes one transition entry. Errors are logged, never returned.
func (i *Indexer) Record(ctx context.Context, entry models.TransitionEntry) {
	if !i.cfg.Enabled || i.es == nil {
		return
	}

	body, err := json.Marshal(entry)
	if err != nil {
		i.log.WithError(err).Error("audit entry marshal failed", map[string]interface{}{
			"transitionId": entry.ID,
		})
		return
	}

	indexCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := i.es.IndexDocument(indexCtx, i.cfg.Index, entry.ID, body); err != nil {
		i.log.WithError(err).Error("audit entry index failed", map[string]interface{}{
			"transitionId":  entry.ID,
			"applicationId": entry.ApplicationID,
		})
	}
}
