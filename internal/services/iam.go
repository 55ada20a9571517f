package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// IAMAPI is the subset of the IAM client used to manage the state machine role
type IAMAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	UpdateAssumeRolePolicy(ctx context.Context, params *iam.UpdateAssumeRolePolicyInput, optFns ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error)
	PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error)
}

// STSAPI resolves the caller's account
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type IAMService struct {
	client    IAMAPI
	stsClient STSAPI
}

func NewIAMService(cfg aws.Config) *IAMService {
	return NewIAMServiceWithClients(iam.NewFromConfig(cfg), sts.NewFromConfig(cfg))
}

func NewIAMServiceWithClients(client IAMAPI, stsClient STSAPI) *IAMService {
	return &IAMService{
		client:    client,
		stsClient: stsClient,
	}
}

// GetAWSAccountID retrieves the AWS account ID
func (s *IAMService) GetAWSAccountID(ctx context.Context) (string, error) {
	result, err := s.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}

	if result.Account == nil {
		return "", fmt.Errorf("account ID is nil")
	}

	return *result.Account, nil
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect    string            `json:"Effect"`
	Principal map[string]string `json:"Principal,omitempty"`
	Action    []string          `json:"Action"`
	Resource  []string          `json:"Resource,omitempty"`
}

// StateMachineTrustPolicy allows Step Functions to assume the role
func StateMachineTrustPolicy() string {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			{
				Effect:    "Allow",
				Principal: map[string]string{"Service": "states.amazonaws.com"},
				Action:    []string{"sts:AssumeRole"},
			},
		},
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

// StateMachineInvokePolicy allows the role to invoke the given Lambda functions
func StateMachineInvokePolicy(functionARNs []string) string {
	resources := make([]string, 0, len(functionARNs)*2)
	for _, arn := range functionARNs {
		resources = append(resources, arn, arn+":*")
	}
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			{
				Effect:   "Allow",
				Action:   []string{"lambda:InvokeFunction"},
				Resource: resources,
			},
		},
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

// EnsureStateMachineRole creates or updates the role Step Functions assumes
// to invoke the pipeline Lambdas and returns its ARN
func (s *IAMService) EnsureStateMachineRole(ctx context.Context, roleName string, functionARNs []string) (string, error) {
	trustPolicy := StateMachineTrustPolicy()

	getResult, err := s.client.GetRole(ctx, &iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})

	var noSuchEntity *types.NoSuchEntityException
	switch {
	case err == nil && getResult.Role != nil:
		_, err = s.client.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
			RoleName:       aws.String(roleName),
			PolicyDocument: aws.String(trustPolicy),
		})
		if err != nil {
			return "", fmt.Errorf("failed to update trust policy: %w", err)
		}
	case err == nil || errors.As(err, &noSuchEntity):
		_, err = s.client.CreateRole(ctx, &iam.CreateRoleInput{
			RoleName:                 aws.String(roleName),
			AssumeRolePolicyDocument: aws.String(trustPolicy),
			Description:              aws.String("Step Functions execution role for the data pipeline"),
		})
		if err != nil {
			return "", fmt.Errorf("failed to create role: %w", err)
		}
	default:
		return "", fmt.Errorf("failed to get role %s: %w", roleName, err)
	}

	_, err = s.client.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(roleName),
		PolicyName:     aws.String("invoke-pipeline-lambdas"),
		PolicyDocument: aws.String(StateMachineInvokePolicy(functionARNs)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to attach/update policy to role: %w", err)
	}

	accountID, err := s.GetAWSAccountID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get AWS account ID: %w", err)
	}

	return fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, roleName), nil
}
