package chatsvc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/shaharia-lab/chatsvc/observability"
)

const defaultBedrockModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

// BedrockClient is the part of the Bedrock runtime API used for completions.
type BedrockClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// NewBedrockClient builds a runtime client from the default AWS credential chain. Static keys,
// when both are set, take precedence over the chain.
func NewBedrockClient(ctx context.Context, region, accessKeyID, secretAccessKey string) (*bedrockruntime.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     accessKeyID,
					SecretAccessKey: secretAccessKey,
					Source:          "chatsvc",
				}, nil
			})))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

// BedrockCompletionClient serves turns through the Bedrock Converse API.
type BedrockCompletionClient struct {
	client BedrockClient
	model  string
	logger observability.Logger
}

// NewBedrockCompletionClient creates a completion client for model. If no model is
// specified, it defaults to Claude 3.5 Sonnet on Bedrock.
func NewBedrockCompletionClient(client BedrockClient, model string, logger observability.Logger) *BedrockCompletionClient {
	if model == "" {
		model = defaultBedrockModel
	}
	return &BedrockCompletionClient{
		client: client,
		model:  model,
		logger: observability.OrNull(logger),
	}
}

func (c *BedrockCompletionClient) converseInput(request CompletionRequest) *bedrockruntime.ConverseInput {
	var system []types.SystemContentBlock
	var messages []types.Message

	for _, msg := range request.Messages {
		switch msg.Role {
		case SystemRole:
			system = append(system, &types.SystemContentBlockMemberText{Value: msg.Text})
		case AssistantRole:
			messages = append(messages, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: msg.Text}},
			})
		default:
			messages = append(messages, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: msg.Text}},
			})
		}
	}

	return &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.model),
		System:   system,
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(request.CompletionOptions.Temperature)),
			MaxTokens:   aws.Int32(int32(request.CompletionOptions.MaxTokens)),
		},
	}
}

// Complete implements CompletionClient.
func (c *BedrockCompletionClient) Complete(ctx context.Context, request CompletionRequest) (*CompletionResult, error) {
	output, err := c.client.Converse(ctx, c.converseInput(request))
	if err != nil {
		c.logger.WithFields(map[string]interface{}{"model": c.model}).WithErr(err).Error("bedrock completion failed")
		return nil, mapSDKError(err, bedrockStatusCode(err))
	}

	var text strings.Builder
	if msg, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
				text.WriteString(textBlock.Value)
			}
		}
	}
	if text.Len() == 0 {
		return nil, NewCompletionError("response contained no text", nil)
	}

	var usage Usage
	if output.Usage != nil {
		usage = Usage{
			InputTextTokens:  strconv.Itoa(int(aws.ToInt32(output.Usage.InputTokens))),
			CompletionTokens: strconv.Itoa(int(aws.ToInt32(output.Usage.OutputTokens))),
			TotalTokens:      strconv.Itoa(int(aws.ToInt32(output.Usage.TotalTokens))),
		}
	}

	return &CompletionResult{
		Success: true,
		Result: Result{
			Alternatives: []Alternative{{
				Message: Message{Role: AssistantRole, Text: text.String()},
				Status:  alternativeStatusFinal,
			}},
			Usage:        usage,
			ModelVersion: c.model,
		},
	}, nil
}

// bedrockStatusCode extracts the HTTP status from smithy response errors.
func bedrockStatusCode(err error) int {
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}
