package integritysync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/vehicle_integrity/config"
	"github.com/mmdatafocus/vehicle_integrity/utils"
	"github.com/sirupsen/logrus"
)

type PubSubPushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		ID         string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// SyncTrigger is published by the scheduler (or PublishSyncTrigger) to start a full sync.
type SyncTrigger struct {
	TriggeredBy string `json:"triggered_by"`
	RequestedAt string `json:"requested_at"`
}

// PublishSyncTrigger asks the integrity service to run a full sync.
// INTEGRITY_SYNC_CREATE_TOPIC=true creates the topic on first use.
func PublishSyncTrigger(ctx context.Context, topicName, triggeredBy string) (string, error) {
	if strings.TrimSpace(topicName) == "" {
		topicName = "integrity-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return "", err
	}

	topic := client.Topic(topicName)
	if config.EnvBool("INTEGRITY_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(ctx, client, topicName)
		if err != nil {
			return "", err
		}
	}

	data, _ := json.Marshal(SyncTrigger{
		TriggeredBy: triggeredBy,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	})
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	return res.Get(ctx)
}

// PubSubPushHandler runs a full sync for each pushed trigger. It always acks with 204;
// a rejected or failed run is logged, not redelivered.
func PubSubPushHandler(e *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.PubSubPushEndpointEnabled() {
			c.Status(http.StatusNoContent)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var trigger SyncTrigger
		if len(envelope.Message.Data) > 0 {
			if err := json.Unmarshal(envelope.Message.Data, &trigger); err != nil {
				c.Status(http.StatusNoContent)
				return
			}
		}
		if trigger.TriggeredBy == "" {
			trigger.TriggeredBy = "pubsub"
		}

		ctx := utils.SetTriggeredByInContext(c.Request.Context(), trigger.TriggeredBy)
		if envelope.Message.ID != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, "pubsub-"+envelope.Message.ID)
		}

		run, err := e.RunFullSync(ctx)
		if err != nil {
			config.GetLogger().WithFields(logrus.Fields{
				"messageId": envelope.Message.ID,
				"error":     run.Error,
			}).Warn("pushed integrity sync did not run")
		}
		c.Status(http.StatusNoContent)
	}
}
