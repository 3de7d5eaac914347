package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/whisper-api/internal/domain"
)

// AccountRepo provides typed DynamoDB operations for the accounts table.
// Every state transition is a single conditional write on the account item;
// no operation reads then writes across two round-trips without a condition
// guarding the write.
type AccountRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewAccountRepo(client *dynamodb.Client, tableName string) *AccountRepo {
	return &AccountRepo{client: client, tableName: tableName}
}

func (r *AccountRepo) Put(ctx context.Context, a *domain.Account) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put account: %w: %w", err, domain.ErrUnavailable)
	}
	return nil
}

func (r *AccountRepo) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("account_id", accountID),
	})
	if err != nil {
		return nil, fmt.Errorf("get account: %w: %w", err, domain.ErrUnavailable)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.queryGSI(ctx, "username-index", "username", username, false)
}

// GetVerifiedByUsername returns the verified account holding username.
// Unverified placeholder rows with the same username are skipped — uniqueness
// only binds across verified accounts.
func (r *AccountRepo) GetVerifiedByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.queryGSI(ctx, "username-index", "username", username, true)
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.queryGSI(ctx, "email-index", "email", email, false)
}

// GetVerifiedByEmail returns the verified account holding email, skipping
// unverified placeholder rows.
func (r *AccountRepo) GetVerifiedByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.queryGSI(ctx, "email-index", "email", email, true)
}

func (r *AccountRepo) Update(ctx context.Context, accountID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("account_id", accountID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ConditionExpression:       aws.String("attribute_exists(account_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("account not found: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("update account: %w: %w", err, domain.ErrUnavailable)
	}
	return nil
}

// MarkVerified flips is_verified and clears the code pair in one conditional
// write. The condition re-checks the code and the unverified state so a
// concurrent consumer or regeneration cannot be overwritten silently.
func (r *AccountRepo) MarkVerified(ctx context.Context, accountID, code string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("account_id", accountID),
		UpdateExpression: aws.String(
			"SET is_verified = :t, updated_at = :now REMOVE verify_code, verify_code_expiry"),
		ConditionExpression: aws.String("verify_code = :code AND is_verified = :f"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":    &types.AttributeValueMemberBOOL{Value: true},
			":f":    &types.AttributeValueMemberBOOL{Value: false},
			":code": &types.AttributeValueMemberS{Value: code},
			":now":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("verification state changed: %w", domain.ErrConflict)
		}
		return fmt.Errorf("mark verified: %w: %w", err, domain.ErrUnavailable)
	}
	return nil
}

// ConsumeResetToken writes the new password hash and removes both reset-token
// fields as one atomic write, conditioned on the stored hash still being the
// one that was verified. A consumed token can never authorize a second change.
func (r *AccountRepo) ConsumeResetToken(ctx context.Context, accountID, tokenHash, newPasswordHash string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("account_id", accountID),
		UpdateExpression: aws.String(
			"SET password_hash = :p, updated_at = :now REMOVE reset_token_hash, reset_token_expiry"),
		ConditionExpression: aws.String("reset_token_hash = :h"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p":   &types.AttributeValueMemberS{Value: newPasswordHash},
			":h":   &types.AttributeValueMemberS{Value: tokenHash},
			":now": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("reset token no longer valid: %w", domain.ErrUnauthorized)
		}
		return fmt.Errorf("consume reset token: %w: %w", err, domain.ErrUnavailable)
	}
	return nil
}

// AppendMessage appends one message to the account's embedded inbox via
// list_append, conditioned on the live accept flag. Concurrent appends to the
// same account all land; there is no read-modify-write of the collection.
func (r *AccountRepo) AppendMessage(ctx context.Context, accountID string, m domain.Message) error {
	av, err := attributevalue.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("account_id", accountID),
		UpdateExpression: aws.String(
			"SET messages = list_append(if_not_exists(messages, :empty), :m)"),
		ConditionExpression: aws.String("attribute_exists(account_id) AND is_accepting_messages = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m":     &types.AttributeValueMemberL{Value: []types.AttributeValue{av}},
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":t":     &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("recipient not accepting messages: %w", domain.ErrForbidden)
		}
		return fmt.Errorf("append message: %w: %w", err, domain.ErrUnavailable)
	}
	return nil
}

// RemoveMessage deletes the message with messageID from the account's inbox.
// The removal is scoped to the owner's item by primary key, so a message id
// belonging to another account can never match. Returns the number of removed
// elements (0 or 1).
func (r *AccountRepo) RemoveMessage(ctx context.Context, accountID, messageID string) (int, error) {
	a, err := r.Get(ctx, accountID)
	if err != nil {
		return 0, err
	}
	idx := -1
	for i := range a.Messages {
		if a.Messages[i].MessageID == messageID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return 0, nil
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("account_id", accountID),
		UpdateExpression:    aws.String(fmt.Sprintf("REMOVE messages[%d]", idx)),
		ConditionExpression: aws.String(fmt.Sprintf("messages[%d].message_id = :mid", idx)),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":mid": &types.AttributeValueMemberS{Value: messageID},
		},
	})
	if err != nil {
		// A concurrent mutation shifted the list between the read and the
		// conditional remove. Report nothing removed; the caller may retry.
		if isConditionFailed(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("remove message: %w: %w", err, domain.ErrUnavailable)
	}
	return 1, nil
}

// ListMessages returns the account's messages ordered newest-first.
func (r *AccountRepo) ListMessages(ctx context.Context, accountID string) ([]domain.Message, error) {
	a, err := r.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, len(a.Messages))
	copy(msgs, a.Messages)
	sortNewestFirst(msgs)
	return msgs, nil
}

// sortNewestFirst orders messages by creation time descending; ties fall back
// to the ULID, which is itself time-ordered.
func sortNewestFirst(msgs []domain.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].MessageID > msgs[j].MessageID
		}
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
}

func (r *AccountRepo) queryGSI(ctx context.Context, index, attr, value string, verifiedOnly bool) (*domain.Account, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
	}
	if verifiedOnly {
		input.FilterExpression = aws.String("is_verified = :t")
		input.ExpressionAttributeValues[":t"] = &types.AttributeValueMemberBOOL{Value: true}
	}
	out, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w: %w", err, domain.ErrUnavailable)
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	var accounts []domain.Account
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &accounts); err != nil {
		return nil, err
	}
	return pickPreferVerified(accounts), nil
}

// pickPreferVerified resolves a lookup that matched several rows. A verified
// account and an unverified placeholder may share a username or email; the
// verified one is the real identity and wins.
func pickPreferVerified(accounts []domain.Account) *domain.Account {
	for i := range accounts {
		if accounts[i].IsVerified {
			return &accounts[i]
		}
	}
	return &accounts[0]
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
