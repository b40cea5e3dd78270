package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
)

func accountKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"account_id": &types.AttributeValueMemberS{Value: id}}
}

// CreateAccount creates a new account record in DynamoDB with a zero balance.
func (s *Store) CreateAccount(ctx context.Context, account *models.Account) (*models.Account, error) {
	now := s.clock()
	created := *account
	created.Balance = 0
	created.Version = 0
	created.Active = true
	created.CreatedAt = now
	created.UpdatedAt = now

	// Marshal the account object for the Put operation.
	accountAV, err := attributevalue.MarshalMap(created)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.AccountsTableName),
		Item:                accountAV,
		ConditionExpression: aws.String("attribute_not_exists(account_id)"), // Prevent overwriting existing accounts.
	}

	_, err = s.Client.PutItem(ctx, input)
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return nil, fmt.Errorf("account %s: %w", account.ID, storage.ErrAccountExists)
		}
		return nil, fmt.Errorf("failed to create account in DynamoDB: %w", err)
	}

	return &created, nil
}

// GetAccount retrieves an account from DynamoDB by id using a strongly consistent read.
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	input := &dynamodb.GetItemInput{
		TableName:      aws.String(s.AccountsTableName),
		Key:            accountKey(id),
		ConsistentRead: aws.Bool(true),
	}

	result, err := s.Client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get account from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("account %s: %w", id, storage.ErrAccountNotFound)
	}

	var account models.Account
	if err := attributevalue.UnmarshalMap(result.Item, &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return &account, nil
}

// ListAccounts retrieves all accounts from DynamoDB, following scan pagination.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	input := &dynamodb.ScanInput{
		TableName:      aws.String(s.AccountsTableName),
		ConsistentRead: aws.Bool(true),
	}

	var accounts []models.Account
	for {
		result, err := s.Client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan accounts table: %w", err)
		}

		var page []models.Account
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal accounts: %w", err)
		}
		accounts = append(accounts, page...)

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// CompareAndUpdateBalance conditionally replaces the balance when the stored version matches.
func (s *Store) CompareAndUpdateBalance(ctx context.Context, id string, expectedVersion, newBalance int64) (int64, error) {
	condition := "attribute_exists(account_id) AND version = :version"
	if newBalance < 0 {
		// Only the platform holding account may hold a negative balance.
		condition += " AND #role = :platform"
	}

	input := &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.AccountsTableName),
		Key:                 accountKey(id),
		UpdateExpression:    aws.String("SET balance = :balance, version = version + :inc, updated_at = :now"),
		ConditionExpression: aws.String(condition),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":balance": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", newBalance)},
			":version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
			":inc":     &types.AttributeValueMemberN{Value: "1"},
			":now":     &types.AttributeValueMemberS{Value: s.clock().Format(timeLayout)},
		},
		ReturnValues:                        types.ReturnValueUpdatedNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}
	if newBalance < 0 {
		input.ExpressionAttributeNames = map[string]string{"#role": "role"}
		input.ExpressionAttributeValues[":platform"] = &types.AttributeValueMemberS{Value: string(models.RolePlatform)}
	}

	result, err := s.Client.UpdateItem(ctx, input)
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return 0, classifyConditionFailure(id, expectedVersion, condCheckFailed.Item)
		}
		return 0, fmt.Errorf("failed to update account balance in DynamoDB: %w", err)
	}

	var updated struct {
		Version int64 `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(result.Attributes, &updated); err != nil {
		return 0, fmt.Errorf("failed to unmarshal updated version: %w", err)
	}
	return updated.Version, nil
}

// classifyConditionFailure maps a failed CAS condition onto the storage error it represents,
// using the item DynamoDB returned with the failure.
func classifyConditionFailure(id string, expectedVersion int64, item map[string]types.AttributeValue) error {
	if len(item) == 0 {
		return fmt.Errorf("account %s: %w", id, storage.ErrAccountNotFound)
	}
	var current models.Account
	if err := attributevalue.UnmarshalMap(item, &current); err != nil {
		return fmt.Errorf("account %s: %w", id, storage.ErrVersionConflict)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("account %s at version %d, expected %d: %w", id, current.Version, expectedVersion, storage.ErrVersionConflict)
	}
	return fmt.Errorf("account %s: %w", id, storage.ErrNegativeBalance)
}

// DeactivateAccount flips the active flag without touching balance or version.
func (s *Store) DeactivateAccount(ctx context.Context, id string) error {
	input := &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.AccountsTableName),
		Key:                 accountKey(id),
		UpdateExpression:    aws.String("SET active = :inactive, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(account_id)"), // Ensure the account exists before deactivating.
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inactive": &types.AttributeValueMemberBOOL{Value: false},
			":now":      &types.AttributeValueMemberS{Value: s.clock().Format(timeLayout)},
		},
	}

	_, err := s.Client.UpdateItem(ctx, input)
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return fmt.Errorf("account %s: %w", id, storage.ErrAccountNotFound)
		}
		return fmt.Errorf("failed to deactivate account in DynamoDB: %w", err)
	}

	return nil
}
