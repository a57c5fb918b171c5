package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const schemaFolder = "agentMetricSchema"

// toolStatColumns are the per-tool attributes of a summary record, in the
// order they appear in the schema document.
var toolStatColumns = []string{
	"execution_average_time",
	"call_count",
	"error_count",
	"success_count",
	"success_rate",
	"total_time",
}

// SchemaItem describes one attribute of the metric summary record.
type SchemaItem struct {
	ItemName string `json:"itemName"`
	ItemType string `json:"itemType"`
}

// SchemaItems lists the attributes a metric summary record carries,
// including the stat columns for every tool the summary has seen.
func SchemaItems(summary *Summary) []SchemaItem {
	items := []SchemaItem{
		{ItemName: "latencyMs", ItemType: "N"},
		{ItemName: "inputTokens", ItemType: "N"},
		{ItemName: "outputTokens", ItemType: "N"},
		{ItemName: "totalTokens", ItemType: "N"},
		{ItemName: "average_cycle_time", ItemType: "N"},
	}
	if summary == nil {
		return items
	}

	tools := make([]string, 0, len(summary.ToolUsage))
	for tool := range summary.ToolUsage {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	for _, tool := range tools {
		for _, stat := range toolStatColumns {
			items = append(items, SchemaItem{
				ItemName: fmt.Sprintf("tool_%s_%s", tool, stat),
				ItemType: "N",
			})
		}
	}
	return items
}

// SchemaPublisherOptions configure the object storage target.
type SchemaPublisherOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Agent     string
}

// SchemaPublisher uploads the metric schema document to an S3-compatible
// bucket so downstream consumers can interpret the summary records.
type SchemaPublisher struct {
	client *minio.Client
	bucket string
	agent  string
}

// NewSchemaPublisher builds a publisher. The connection is lazy; the first
// Publish dials.
func NewSchemaPublisher(opts SchemaPublisherOptions) (*SchemaPublisher, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}
	agent := strings.TrimSpace(opts.Agent)
	if agent == "" {
		agent = defaultAgentName
	}
	return &SchemaPublisher{client: client, bucket: opts.Bucket, agent: agent}, nil
}

// ObjectName returns the key the schema document is stored under.
func (p *SchemaPublisher) ObjectName() string {
	return path.Join(schemaFolder, p.agent+"_ddb_schema.json")
}

// Publish uploads the schema document derived from the summary, creating
// the bucket if it does not exist yet.
func (p *SchemaPublisher) Publish(ctx context.Context, summary *Summary) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", p.bucket, err)
		}
	}

	payload, err := json.Marshal(SchemaItems(summary))
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	_, err = p.client.PutObject(ctx, p.bucket, p.ObjectName(),
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload schema: %w", err)
	}
	return nil
}
