package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
)

// The ledger table is keyed by account_id (hash) and sequence (range). Entry reads that settle money go
// to the base table with ConsistentRead; only the cross-account feed uses a secondary index.
const (
	feedIndex = "feed-created-index"

	// feedPartition groups every entry under one partition of the feed index for newest-first listing.
	feedPartition = "LEDGER_ENTRIES"
	markerPrefix  = "REF#"

	pageSize int32 = 100
)

// ledgerItem is the stored shape of an entry: the entry itself plus the feed index keys.
type ledgerItem struct {
	models.LedgerEntry
	Feed   string `dynamodbav:"feed"`
	FeedAt int64  `dynamodbav:"feed_at"`
}

// referenceMarker claims a (reference, kind) pair and carries a copy of both entries, so a reference
// lookup is one consistent GetItem. It lives in its own REF# partition and never shows up in an
// account history or the feed.
type referenceMarker struct {
	Key      string               `dynamodbav:"account_id"`
	Sequence int64                `dynamodbav:"sequence"`
	Entries  []models.LedgerEntry `dynamodbav:"entries"`
}

func markerKey(ref string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"account_id": &types.AttributeValueMemberS{Value: markerPrefix + ref},
		"sequence":   &types.AttributeValueMemberN{Value: "0"},
	}
}

// Append writes the reference marker and both entries in a single TransactWriteItems call.
// Every put is conditional: a taken marker means the reference already settled, a taken entry
// key means another writer claimed that position of the account history.
func (s *Store) Append(ctx context.Context, entries []models.LedgerEntry) error {
	debit, _, err := models.ValidateBatch(entries)
	if err != nil {
		return err
	}
	ref := debit.Ref().Key()

	// Each entry goes right after the head of its account. A retried batch keeps the positions of
	// its first attempt so the request token below stays valid.
	for i := range entries {
		if entries[i].Sequence != 0 {
			continue
		}
		head, err := s.headSequence(ctx, entries[i].AccountID)
		if err != nil {
			return err
		}
		entries[i].Sequence = head + 1
	}

	markerAV, err := attributevalue.MarshalMap(referenceMarker{Key: markerPrefix + ref, Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to marshal reference marker: %w", err)
	}
	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(s.LedgerTableName),
			Item:                markerAV,
			ConditionExpression: aws.String("attribute_not_exists(account_id)"),
		},
	}}
	for _, e := range entries {
		entryAV, err := attributevalue.MarshalMap(ledgerItem{LedgerEntry: e, Feed: feedPartition, FeedAt: e.CreatedAt.UnixNano()})
		if err != nil {
			return fmt.Errorf("failed to marshal %s entry: %w", e.Direction, err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(s.LedgerTableName),
				Item:                entryAV,
				ConditionExpression: aws.String("attribute_not_exists(account_id)"),
			},
		})
	}

	_, err = s.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: aws.String(debit.TransactionID),
	})
	if err == nil {
		return nil
	}

	var cancelled *types.TransactionCanceledException
	if !errors.As(err, &cancelled) {
		return fmt.Errorf("failed to append ledger batch: %w", err)
	}
	for i, reason := range cancelled.CancellationReasons {
		if aws.ToString(reason.Code) != "ConditionalCheckFailed" {
			continue
		}
		if i == 0 {
			return fmt.Errorf("reference %s: %w", ref, storage.ErrDuplicateReference)
		}
		// Drop the stale positions so the next attempt reads the new heads.
		for j := range entries {
			entries[j].Sequence = 0
		}
		return fmt.Errorf("account %s: %w", entries[i-1].AccountID, storage.ErrSequenceConflict)
	}
	return fmt.Errorf("failed to append ledger batch: %w", err)
}

// headSequence returns the sequence of the account's newest entry, or 0 for an empty history.
func (s *Store) headSequence(ctx context.Context, accountID string) (int64, error) {
	latest, err := s.LatestByAccount(ctx, accountID, 1)
	if err != nil {
		return 0, err
	}
	if len(latest) == 0 {
		return 0, nil
	}
	return latest[0].Sequence, nil
}

// FindByReference reads the reference marker with a consistent GetItem.
func (s *Store) FindByReference(ctx context.Context, reference string, kind models.Kind) ([]models.LedgerEntry, error) {
	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.LedgerTableName),
		Key:            markerKey(models.Reference{ID: reference, Kind: kind}.Key()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get reference marker: %w", err)
	}
	if result.Item == nil {
		return []models.LedgerEntry{}, nil
	}

	var marker referenceMarker
	if err := attributevalue.UnmarshalMap(result.Item, &marker); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reference marker: %w", err)
	}
	return marker.Entries, nil
}

func (s *Store) accountQuery(accountID string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(s.LedgerTableName),
		KeyConditionExpression: aws.String("account_id = :account AND #seq > :after"),
		ExpressionAttributeNames: map[string]string{
			"#seq": "sequence",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":account": &types.AttributeValueMemberS{Value: accountID},
			":after":   &types.AttributeValueMemberN{Value: "0"},
		},
		ConsistentRead: aws.Bool(true),
	}
}

// ListByAccount pages through the account partition one query at a time as the caller consumes entries.
func (s *Store) ListByAccount(ctx context.Context, accountID string, after int64) iter.Seq2[models.LedgerEntry, error] {
	return func(yield func(models.LedgerEntry, error) bool) {
		input := s.accountQuery(accountID)
		input.ExpressionAttributeValues[":after"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(after, 10)}
		input.ScanIndexForward = aws.Bool(true)
		input.Limit = aws.Int32(pageSize)

		for {
			result, err := s.Client.Query(ctx, input)
			if err != nil {
				yield(models.LedgerEntry{}, fmt.Errorf("failed to query ledger for account %s: %w", accountID, err))
				return
			}

			var page []models.LedgerEntry
			if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
				yield(models.LedgerEntry{}, fmt.Errorf("failed to unmarshal ledger entries: %w", err))
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}

			if len(result.LastEvaluatedKey) == 0 {
				return
			}
			input.ExclusiveStartKey = result.LastEvaluatedKey
		}
	}
}

// LatestByAccount reads the account partition backwards.
func (s *Store) LatestByAccount(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	input := s.accountQuery(accountID)
	input.ScanIndexForward = aws.Bool(false)
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	result, err := s.Client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest ledger entries for account %s: %w", accountID, err)
	}
	entries := []models.LedgerEntry{}
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger entries: %w", err)
	}
	return entries, nil
}

// ListRecent retrieves the most recent ledger entries across all accounts. The feed index is eventually
// consistent, which is fine for an operator listing; nothing on the settlement path reads it.
func (s *Store) ListRecent(ctx context.Context, filter storage.LedgerFilter) ([]models.LedgerEntry, error) {
	keyCond := "feed = :pk"
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: feedPartition},
	}
	switch {
	case !filter.Since.IsZero() && !filter.Until.IsZero():
		keyCond += " AND feed_at BETWEEN :since AND :until"
		values[":since"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(filter.Since.UnixNano(), 10)}
		values[":until"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(filter.Until.UnixNano()-1, 10)}
	case !filter.Since.IsZero():
		keyCond += " AND feed_at >= :since"
		values[":since"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(filter.Since.UnixNano(), 10)}
	case !filter.Until.IsZero():
		keyCond += " AND feed_at < :until"
		values[":until"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(filter.Until.UnixNano(), 10)}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.LedgerTableName),
		IndexName:                 aws.String(feedIndex),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(false), // Newest first
	}
	if filter.Role != "" {
		input.FilterExpression = aws.String("#role = :role")
		input.ExpressionAttributeNames = map[string]string{"#role": "role"}
		values[":role"] = &types.AttributeValueMemberS{Value: string(filter.Role)}
	}
	if filter.Limit > 0 {
		input.Limit = aws.Int32(int32(filter.Limit))
	}

	// Limit applies before the role filter, so keep paging until enough entries matched.
	entries := []models.LedgerEntry{}
	for {
		result, err := s.Client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query for ledger entries: %w", err)
		}
		var page []models.LedgerEntry
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ledger entries: %w", err)
		}
		entries = append(entries, page...)

		if filter.Limit > 0 && len(entries) >= filter.Limit {
			return entries[:filter.Limit], nil
		}
		if len(result.LastEvaluatedKey) == 0 {
			return entries, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}
