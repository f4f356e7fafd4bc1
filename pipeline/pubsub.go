package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"

	"github.com/contaflux/portal_backend/config"
	"github.com/contaflux/portal_backend/utils"
)

type AlignmentRunPayload struct {
	DocumentId    int    `json:"document_id"`
	CorrelationId string `json:"correlation_id,omitempty"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		ID         string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func alignmentTopicName() string {
	topicName := strings.TrimSpace(os.Getenv("ALIGNMENT_TOPIC"))
	if topicName == "" {
		topicName = "alignment-run"
	}
	return topicName
}

// PublishAlignmentRun queues an alignment trigger. The queue is what makes
// the ingestion-to-alignment handoff survive a restart.
func PublishAlignmentRun(ctx context.Context, documentId int) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topicName := alignmentTopicName()
	topic := client.Topic(topicName)
	if utils.EnvBoolDefault("ALIGNMENT_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	payload := AlignmentRunPayload{
		DocumentId:    documentId,
		CorrelationId: correlationId,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// AlignmentPushHandler receives Pub/Sub push deliveries. Bad envelopes are
// acked with 204 to stop redelivery; alignment failures are also acked
// because the retry policy lives in the durable retry rows, not in Pub/Sub
// redelivery.
func AlignmentPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload AlignmentRunPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.DocumentId == 0 {
			c.Status(204)
			return
		}

		ctx := c.Request.Context()
		if payload.CorrelationId != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, payload.CorrelationId)
		}

		if err := RunAlignment(ctx, payload.DocumentId, false); err != nil {
			config.LogError(logger, "pipeline", "AlignmentPushHandler", "RunAlignment",
				map[string]interface{}{"document_id": payload.DocumentId, "message_id": envelope.Message.ID}, err)
		}
		c.Status(204)
	}
}
