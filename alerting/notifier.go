package alerting

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/mmdatafocus/vehicle_integrity/config"
	"github.com/mmdatafocus/vehicle_integrity/integritysync"
	"github.com/mmdatafocus/vehicle_integrity/utils"
	"github.com/sirupsen/logrus"
)

// AlertMessage is the Pub/Sub payload consumed by the mail relay.
type AlertMessage struct {
	Subject             string   `json:"subject"`
	Body                string   `json:"body"`
	HTML                string   `json:"html"`
	CorrelationId       string   `json:"correlationId"`
	MismatchedVins      []string `json:"mismatchedVins"`
	NotOnBlockchainVins []string `json:"notOnBlockchainVins"`
	GeneratedAt         string   `json:"generatedAt"`
}

type PublishFunc func(ctx context.Context, topic string, obj interface{}, attributes map[string]string) (string, error)

// PubSubNotifier publishes the report to a topic; a downstream mailer sends the email.
type PubSubNotifier struct {
	topic   string
	publish PublishFunc
	logger  *logrus.Logger
}

func NewPubSubNotifier(topic string) *PubSubNotifier {
	return &PubSubNotifier{topic: topic, publish: config.PublishJSON, logger: config.GetLogger()}
}

func (n *PubSubNotifier) Send(ctx context.Context, report integritysync.AlertReport) error {
	if strings.TrimSpace(n.topic) == "" {
		return errors.New("alert topic is not configured")
	}
	msg := AlertMessage{
		Subject:             report.Subject,
		Body:                report.Body,
		HTML:                report.HTML,
		CorrelationId:       report.Run.CorrelationId,
		MismatchedVins:      report.Run.MismatchedVins,
		NotOnBlockchainVins: report.Run.NotOnBlockchainVins,
		GeneratedAt:         report.GeneratedAt.UTC().Format(time.RFC3339),
	}
	id, err := n.publish(ctx, n.topic, msg, map[string]string{
		"type":          "integrity_alert",
		"correlationId": report.Run.CorrelationId,
	})
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	n.logger.WithFields(logrus.Fields{
		"topic":         n.topic,
		"messageId":     id,
		"correlationId": report.Run.CorrelationId,
	}).Info("integrity alert published")
	return nil
}

type UploadFunc func(ctx context.Context, bucket, object string, data []byte, contentType string) error

// GCSArchiveNotifier stores the HTML and XLSX renditions of each report.
type GCSArchiveNotifier struct {
	bucket string
	prefix string
	upload UploadFunc
}

func NewGCSArchiveNotifier(bucket, prefix string) *GCSArchiveNotifier {
	if prefix == "" {
		prefix = "integrity-reports"
	}
	return &GCSArchiveNotifier{bucket: bucket, prefix: prefix, upload: utils.UploadBytesToGCS}
}

// ObjectPrefix is where a report's files land, keyed by date and correlation id.
func (n *GCSArchiveNotifier) ObjectPrefix(report integritysync.AlertReport) string {
	id := report.Run.CorrelationId
	if id == "" {
		id = report.GeneratedAt.UTC().Format("150405")
	}
	return path.Join(n.prefix, report.GeneratedAt.UTC().Format("2006/01/02"), id)
}

func (n *GCSArchiveNotifier) Send(ctx context.Context, report integritysync.AlertReport) error {
	base := n.ObjectPrefix(report)
	if err := n.upload(ctx, n.bucket, base+"/report.html", []byte(report.HTML), "text/html; charset=utf-8"); err != nil {
		return fmt.Errorf("archive html report: %w", err)
	}
	xlsx, err := report.XLSX()
	if err != nil {
		return fmt.Errorf("render xlsx report: %w", err)
	}
	if err := n.upload(ctx, n.bucket, base+"/report.xlsx", xlsx, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"); err != nil {
		return fmt.Errorf("archive xlsx report: %w", err)
	}
	return nil
}

// LogNotifier writes the report to the structured log.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, report integritysync.AlertReport) error {
	n.logger.WithFields(logrus.Fields{
		"subject":             report.Subject,
		"correlationId":       report.Run.CorrelationId,
		"mismatchedVins":      report.Run.MismatchedVins,
		"notOnBlockchainVins": report.Run.NotOnBlockchainVins,
	}).Warn(report.Body)
	return nil
}

// MultiNotifier sends to every notifier and joins their errors.
type MultiNotifier []integritysync.Notifier

func (m MultiNotifier) Send(ctx context.Context, report integritysync.AlertReport) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the notifier chain: the log notifier, then Pub/Sub when a topic
// is set and the GCS archive when a bucket is set.
func FromConfig(cfg *config.IntegrityConfig, logger *logrus.Logger) integritysync.Notifier {
	chain := MultiNotifier{NewLogNotifier(logger)}
	if cfg.AlertTopic != "" {
		chain = append(chain, NewPubSubNotifier(cfg.AlertTopic))
	}
	if cfg.ReportBucket != "" {
		chain = append(chain, NewGCSArchiveNotifier(cfg.ReportBucket, ""))
	}
	return chain
}
