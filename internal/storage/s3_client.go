package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
)

type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
	Prefix    string
}

// Client archives conversation transcripts to S3 before they are deleted.
type Client struct {
	cfg S3Config
	s3  *s3.Client
}

// Transcript is the archived JSON document for one conversation.
type Transcript struct {
	Conversation conversation.Conversation `json:"conversation"`
	Messages     []message.Message         `json:"messages"`
	ArchivedAt   time.Time                 `json:"archived_at"`
}

func NewClient(ctx context.Context, cfg S3Config) (*Client, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "transcripts"
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if endpoint != "" {
		if parsed, err := url.Parse(endpoint); err == nil {
			endpoint = parsed.String()
		}
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{cfg: cfg, s3: s3Client}, nil
}

// TranscriptKey returns the object key a conversation is archived under.
func (c *Client) TranscriptKey(conversationID uuid.UUID) string {
	return TranscriptKey(c.cfg.Prefix, conversationID)
}

func TranscriptKey(prefix string, conversationID uuid.UUID) string {
	if prefix == "" {
		prefix = "transcripts"
	}
	return fmt.Sprintf("%s/%s.json", prefix, conversationID.String())
}

// ArchiveTranscript uploads conv and its messages as one JSON object.
func (c *Client) ArchiveTranscript(ctx context.Context, conv conversation.Conversation, msgs []message.Message) (string, error) {
	if c == nil {
		return "", errors.New("s3 client not initialized")
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	body, err := json.Marshal(Transcript{
		Conversation: conv,
		Messages:     msgs,
		ArchivedAt:   time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}

	key := c.TranscriptKey(conv.ID)
	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("put transcript %s: %w", key, err)
	}
	return key, nil
}
