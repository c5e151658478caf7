// Package dynamodbstore is the concrete Store adapter of spec §4.1: it
// wraps the four remote operations the lease protocol needs as calls
// against Amazon DynamoDB. It is deliberately independent of the lease
// package -- lease/config.go adapts this package's results into lease's
// own vocabulary -- so that a driver package can be unit tested, and
// reused, without importing the protocol package that consumes it.
package dynamodbstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("lease.dynamodbstore")

// API is the subset of *dynamodb.Client this package calls. It exists so
// tests can substitute a fake instead of a live table.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	DescribeTimeToLive(ctx context.Context, in *dynamodb.DescribeTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTimeToLiveOutput, error)
}

// Config names the table and attributes this Store operates against.
type Config struct {
	TableName        string
	KeyAttribute     string
	ExpiryAttribute  string
	VersionAttribute string
}

// TableSchema describes a table's key and TTL attributes as reported by
// DescribeTable/DescribeTimeToLive.
type TableSchema struct {
	KeyAttribute         string
	KeyAttributeIsString bool
	TTLAttribute         string
	TTLEnabled           bool
}

// Store performs the three conditional writes and the table description
// the lease protocol needs against one DynamoDB table. Every method returns nil, or
// ErrConditionFailed, or a *TransientError/*FatalError -- this package's
// own error vocabulary, not the lease package's; see lease/config.go for
// the adapter that translates between the two.
type Store struct {
	api API
	cfg Config
}

// New returns a Store. api is typically a *dynamodb.Client.
func New(api API, cfg Config) *Store {
	return &Store{api: api, cfg: cfg}
}

// PutIfAbsent writes a new record, failing with ErrConditionFailed if one
// already exists for key.
func (s *Store) PutIfAbsent(ctx context.Context, key, version string, expiryUnix int64) error {
	cond := expression.AttributeNotExists(expression.Name(s.cfg.KeyAttribute))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return &FatalError{Cause: fmt.Errorf("building put expression: %w", err)}
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.cfg.TableName),
		Item: map[string]types.AttributeValue{
			s.cfg.KeyAttribute:     &types.AttributeValueMemberS{Value: key},
			s.cfg.VersionAttribute: &types.AttributeValueMemberS{Value: version},
			s.cfg.ExpiryAttribute:  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expiryUnix)},
		},
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	return classify(err)
}

// UpdateIfVersion overwrites the version and expiry of an existing
// record, failing with ErrConditionFailed if the stored version isn't
// oldVersion or the record is absent.
func (s *Store) UpdateIfVersion(ctx context.Context, key, oldVersion, newVersion string, newExpiryUnix int64) error {
	cond := expression.Name(s.cfg.VersionAttribute).Equal(expression.Value(oldVersion))
	update := expression.
		Set(expression.Name(s.cfg.VersionAttribute), expression.Value(newVersion)).
		Set(expression.Name(s.cfg.ExpiryAttribute), expression.Value(newExpiryUnix))
	expr, err := expression.NewBuilder().WithCondition(cond).WithUpdate(update).Build()
	if err != nil {
		return &FatalError{Cause: fmt.Errorf("building update expression: %w", err)}
	}

	_, err = s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.cfg.TableName),
		Key: map[string]types.AttributeValue{
			s.cfg.KeyAttribute: &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression:       expr.Condition(),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	return classify(err)
}

// DeleteIfVersion removes a record, failing with ErrConditionFailed if
// the stored version isn't version or the record is absent.
func (s *Store) DeleteIfVersion(ctx context.Context, key, version string) error {
	cond := expression.Name(s.cfg.VersionAttribute).Equal(expression.Value(version))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return &FatalError{Cause: fmt.Errorf("building delete expression: %w", err)}
	}

	_, err = s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.cfg.TableName),
		Key: map[string]types.AttributeValue{
			s.cfg.KeyAttribute: &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	return classify(err)
}

// DescribeTable returns the table's schema.
func (s *Store) DescribeTable(ctx context.Context) (TableSchema, error) {
	out, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.cfg.TableName),
	})
	if err != nil {
		return TableSchema{}, classify(err)
	}

	schema := TableSchema{}
	attrTypes := make(map[string]types.ScalarAttributeType, len(out.Table.AttributeDefinitions))
	for _, def := range out.Table.AttributeDefinitions {
		attrTypes[aws.ToString(def.AttributeName)] = def.AttributeType
	}
	for _, key := range out.Table.KeySchema {
		if key.KeyType == types.KeyTypeHash {
			schema.KeyAttribute = aws.ToString(key.AttributeName)
			schema.KeyAttributeIsString = attrTypes[schema.KeyAttribute] == types.ScalarAttributeTypeS
			break
		}
	}

	ttlOut, err := s.api.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{
		TableName: aws.String(s.cfg.TableName),
	})
	if err != nil {
		return TableSchema{}, classify(err)
	}
	if ttlOut.TimeToLiveDescription != nil {
		schema.TTLAttribute = aws.ToString(ttlOut.TimeToLiveDescription.AttributeName)
		schema.TTLEnabled = ttlOut.TimeToLiveDescription.TimeToLiveStatus == types.TimeToLiveStatusEnabled
	}

	logger.Debugf("described table %q: key=%q(string=%v) ttl=%q(enabled=%v)",
		s.cfg.TableName, schema.KeyAttribute, schema.KeyAttributeIsString,
		schema.TTLAttribute, schema.TTLEnabled)
	return schema, nil
}
