package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/johnwmail/pastelite/models"
)

// DynamoStore implements PasteStore using DynamoDB. Timestamps are stored
// as unix milliseconds; "ttl" holds unix seconds for DynamoDB's own expiry.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
	logger    *slog.Logger
}

// attribute names used in expressions
var dynamoNames = map[string]string{
	"#id":     "id",
	"#burned": "burned",
	"#max":    "max_views",
	"#used":   "views_used",
	"#exp":    "expires_at",
}

// NewDynamoStore creates a new DynamoDB storage backend. A non-empty
// endpoint overrides the service URL, e.g. for DynamoDB Local.
func NewDynamoStore(ctx context.Context, tableName, region, endpoint string, logger *slog.Logger) (*DynamoStore, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	logger.Info("Using DynamoDB storage", "table", tableName, "region", cfg.Region)
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}, nil
}

// Insert saves a paste unless the id is already taken
func (d *DynamoStore) Insert(ctx context.Context, paste *models.Paste) error {
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(d.tableName),
		Item:                     pasteToItem(paste),
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "id"},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrDuplicateID
	}
	return err
}

// ConsumeView increments views_used with a single conditional UpdateItem.
// A failed condition returns the item as it was when the check ran.
func (d *DynamoStore) ConsumeView(ctx context.Context, id string, now time.Time) (*models.Paste, models.Verdict, error) {
	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: aws.String("SET #used = #used + :one"),
		ConditionExpression: aws.String("attribute_exists(#id) AND #burned = :false" +
			" AND (attribute_not_exists(#max) OR #used < #max)" +
			" AND (attribute_not_exists(#exp) OR #exp > :now)"),
		ExpressionAttributeNames: dynamoNames,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":   &types.AttributeValueMemberN{Value: "1"},
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":now":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		},
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		paste, err := itemToPaste(out.Attributes)
		if err != nil {
			return nil, models.NotFound, err
		}
		return paste, models.OK, nil
	}

	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return nil, models.NotFound, err
	}
	var current *models.Paste
	if len(ccf.Item) > 0 {
		current, err = itemToPaste(ccf.Item)
	} else {
		// endpoints without ReturnValuesOnConditionCheckFailure support
		current, err = d.Get(ctx, id)
	}
	if err != nil {
		return nil, models.NotFound, err
	}
	current, verdict := classify(current, now)
	return current, verdict, nil
}

// Get retrieves a paste by its ID
func (d *DynamoStore) Get(ctx context.Context, id string) (*models.Paste, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	if result.Item == nil {
		return nil, nil // Not found
	}
	return itemToPaste(result.Item)
}

// Burn marks a paste as burned
func (d *DynamoStore) Burn(ctx context.Context, id string) error {
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:         aws.String("SET #burned = :true"),
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "id", "#burned": "burned"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrNotFound
	}
	return err
}

// Delete removes a paste from DynamoDB
func (d *DynamoStore) Delete(ctx context.Context, id string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	return err
}

// DeleteExpired scans for expired pastes and deletes each one with a
// condition, so a concurrent writer can never lose a live record
func (d *DynamoStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	nowValue := &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)}
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName:                aws.String(d.tableName),
		FilterExpression:         aws.String("attribute_exists(#exp) AND #exp <= :now"),
		ProjectionExpression:     aws.String("#id"),
		ExpressionAttributeNames: map[string]string{"#id": "id", "#exp": "expires_at"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": nowValue,
		},
	})

	var removed int64
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return removed, fmt.Errorf("failed to scan expired pastes: %w", err)
		}
		for _, item := range page.Items {
			_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName:                aws.String(d.tableName),
				Key:                      map[string]types.AttributeValue{"id": item["id"]},
				ConditionExpression:      aws.String("#exp <= :now"),
				ExpressionAttributeNames: map[string]string{"#exp": "expires_at"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":now": nowValue,
				},
			})
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				continue // already gone
			}
			if err != nil {
				return removed, fmt.Errorf("failed to delete expired paste: %w", err)
			}
			removed++
		}
	}
	return removed, nil
}

// Ping checks that the table is reachable
func (d *DynamoStore) Ping(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	return err
}

// Close is a no-op for DynamoDB
func (d *DynamoStore) Close() error {
	return nil
}

// pasteToItem converts a Paste model to a DynamoDB item
func pasteToItem(paste *models.Paste) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"id":         &types.AttributeValueMemberS{Value: paste.ID},
		"content":    &types.AttributeValueMemberS{Value: paste.Content},
		"created_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(paste.CreatedAt.UnixMilli(), 10)},
		"views_used": &types.AttributeValueMemberN{Value: strconv.Itoa(paste.ViewsUsed)},
		"burned":     &types.AttributeValueMemberBOOL{Value: paste.Burned},
	}

	// Add TTL if expires_at is set
	if paste.ExpiresAt != nil {
		item["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(paste.ExpiresAt.UnixMilli(), 10)}
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlSeconds(*paste.ExpiresAt), 10)}
	}
	if paste.MaxViews != nil {
		item["max_views"] = &types.AttributeValueMemberN{Value: strconv.Itoa(*paste.MaxViews)}
	}
	return item
}

// ttlSeconds rounds expiry up to whole seconds. DynamoDB may delete an item
// any time after its ttl, so it must never fall before expires_at.
func ttlSeconds(expiresAt time.Time) int64 {
	ms := expiresAt.UnixMilli()
	secs := ms / 1000
	if ms%1000 != 0 {
		secs++
	}
	return secs
}

// itemToPaste converts a DynamoDB item to a Paste model
func itemToPaste(item map[string]types.AttributeValue) (*models.Paste, error) {
	paste := &models.Paste{}

	if id, ok := item["id"].(*types.AttributeValueMemberS); ok {
		paste.ID = id.Value
	}

	if content, ok := item["content"].(*types.AttributeValueMemberS); ok {
		paste.Content = content.Value
	}

	if createdAt, ok := item["created_at"].(*types.AttributeValueMemberN); ok {
		ms, err := strconv.ParseInt(createdAt.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", createdAt.Value, err)
		}
		paste.CreatedAt = time.UnixMilli(ms).UTC()
	}

	if expiresAt, ok := item["expires_at"].(*types.AttributeValueMemberN); ok {
		ms, err := strconv.ParseInt(expiresAt.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid expires_at %q: %w", expiresAt.Value, err)
		}
		expiry := time.UnixMilli(ms).UTC()
		paste.ExpiresAt = &expiry
	}

	if maxViews, ok := item["max_views"].(*types.AttributeValueMemberN); ok {
		v, err := strconv.Atoi(maxViews.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid max_views %q: %w", maxViews.Value, err)
		}
		paste.MaxViews = &v
	}

	if viewsUsed, ok := item["views_used"].(*types.AttributeValueMemberN); ok {
		v, err := strconv.Atoi(viewsUsed.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid views_used %q: %w", viewsUsed.Value, err)
		}
		paste.ViewsUsed = v
	}

	if burned, ok := item["burned"].(*types.AttributeValueMemberBOOL); ok {
		paste.Burned = burned.Value
	}

	return paste, nil
}
