package alerts

import (
	"context"

	"github.com/david/place-sync/internal/models"
	"github.com/sirupsen/logrus"
)

// LogNotifier records matches in the log. Email delivery lives outside this service.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (n LogNotifier) Notify(ctx context.Context, alert models.Alert, tenders []models.Tender) error {
	logger := n.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	for _, t := range tenders {
		logger.WithFields(logrus.Fields{
			"alert":       alert.Name,
			"user_id":     alert.UserID.String(),
			"external_id": t.ExternalID(),
			"title":       t.Title,
		}).Info("Tender matches alert")
	}
	return nil
}
