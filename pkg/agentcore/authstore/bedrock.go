package authstore

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/remoteclaw/core/pkg/agentcore"
)

// resolveBedrockAuth implements the amazon-bedrock fallback spec.md
// §4.G describes for when no profile in the store produces a usable
// key: bearer token, then an access/secret pair, then a named
// profile, then the AWS SDK's own default credential chain. Grounded
// on the teacher's internal/agent/providers/bedrock.go, which builds
// its client the same way (explicit static credentials if present,
// else config.LoadDefaultConfig).
func resolveBedrockAuth(ctx context.Context) (agentcore.ResolvedProviderAuth, error) {
	if bearer := strings.TrimSpace(os.Getenv("AWS_BEARER_TOKEN_BEDROCK")); bearer != "" {
		return agentcore.ResolvedProviderAuth{
			Mode:   agentcore.AuthAWSSDK,
			Source: "env:AWS_BEARER_TOKEN_BEDROCK",
		}, nil
	}

	accessKey := strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	secretKey := strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	if accessKey != "" && secretKey != "" {
		return agentcore.ResolvedProviderAuth{
			Mode:   agentcore.AuthAWSSDK,
			Source: "env:AWS_ACCESS_KEY_ID+AWS_SECRET_ACCESS_KEY",
		}, nil
	}

	if profile := strings.TrimSpace(os.Getenv("AWS_PROFILE")); profile != "" {
		return agentcore.ResolvedProviderAuth{
			Mode:   agentcore.AuthAWSSDK,
			Source: "env:AWS_PROFILE:" + profile,
		}, nil
	}

	if _, err := config.LoadDefaultConfig(ctx); err != nil {
		return agentcore.ResolvedProviderAuth{}, fmt.Errorf("amazon-bedrock: no credentials found (bearer token, access/secret pair, named profile, and SDK default chain all unavailable): %w", err)
	}
	return agentcore.ResolvedProviderAuth{
		Mode:   agentcore.AuthAWSSDK,
		Source: "aws-sdk-default-chain",
	}, nil
}
