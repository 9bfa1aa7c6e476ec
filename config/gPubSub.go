package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

var (
	pubsubMu     sync.Mutex
	pubsubClient *pubsub.Client
	topics       = map[string]*pubsub.Topic{}
)

func init() {
	godotenv.Load()
}

// GetClient returns the shared Pub/Sub client. The first caller connects,
// retrying up to PUBSUB_CONNECT_ATTEMPTS times (default 5) or until ctx ends.
// PUBSUB_CREDENTIALS_JSON overrides Application Default Credentials.
func GetClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := pubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	var opts []option.ClientOption
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	attempts := intFromEnv("PUBSUB_CONNECT_ATTEMPTS", 5)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		c, err := pubsub.NewClient(ctx, projectID, opts...)
		if err == nil {
			pubsubClient = c
			GetLogger().WithFields(logrus.Fields{"project_id": projectID, "attempt": attempt}).Info("pubsub client ready")
			return c, nil
		}
		lastErr = err
		LogError(GetLogger(), "config", "GetClient", "pubsub connect", projectID, err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("pubsub client: %w", ctx.Err())
		case <-time.After(backoff(attempt)):
		}
	}
	return nil, fmt.Errorf("pubsub client after %d attempts: %w", attempts, lastErr)
}

func pubSubProjectID() string {
	for _, k := range []string{"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// CreateTopicIfNotExists is used by dev setups and the trigger publisher; production topics
// are provisioned ahead of time.
func CreateTopicIfNotExists(ctx context.Context, c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("topic %q exists: %w", topic, err)
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}

func topicHandle(c *pubsub.Client, name string) *pubsub.Topic {
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	t, ok := topics[name]
	if !ok {
		t = c.Topic(name)
		topics[name] = t
	}
	return t
}

// PublishJSON publishes obj as a JSON message on topicName and waits for the server-assigned ID.
func PublishJSON(ctx context.Context, topicName string, obj any, attributes map[string]string) (string, error) {
	if topicName == "" {
		return "", errors.New("topicName is required")
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("encode %s message: %w", topicName, err)
	}

	client, err := GetClient(ctx)
	if err != nil {
		return "", err
	}

	return topicHandle(client, topicName).Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	}).Get(ctx)
}
