// Package registry builds the application image and pushes it to ECR under
// the version tag, the short commit SHA, and latest.
package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/rs/zerolog"

	"github.com/boskiv/terra-rails-aws/awsc"
	"github.com/boskiv/terra-rails-aws/config"
)

// Registry manages the ECR repository and image pushes.
type Registry struct {
	aws *awsc.Clients
	cfg config.Config
	log zerolog.Logger
}

// New creates a Registry.
func New(clients *awsc.Clients, cfg config.Config, log zerolog.Logger) *Registry {
	return &Registry{aws: clients, cfg: cfg, log: log}
}

// RepoName returns the ECR repository name for the stack.
func (r *Registry) RepoName() string {
	return r.cfg.Prefix()
}

// EnsureRepository creates the ECR repository if missing and returns its URI.
func (r *Registry) EnsureRepository(ctx context.Context) (string, error) {
	name := r.RepoName()

	out, err := r.aws.ECR.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{name},
	})
	if err == nil && len(out.Repositories) > 0 {
		return aws.ToString(out.Repositories[0].RepositoryUri), nil
	}

	created, err := r.aws.ECR.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName: aws.String(name),
		ImageScanningConfiguration: &ecrtypes.ImageScanningConfiguration{
			ScanOnPush: true,
		},
		Tags: []ecrtypes.Tag{
			{Key: aws.String("managed-by"), Value: aws.String("terra-rails")},
			{Key: aws.String("terra-rails-env"), Value: aws.String(r.cfg.Env)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating repository %s: %w", name, err)
	}
	r.log.Info().Str("repo", name).Msg("created ecr repository")
	return aws.ToString(created.Repository.RepositoryUri), nil
}

// DeleteRepository force-deletes the repository and every image in it.
func (r *Registry) DeleteRepository(ctx context.Context) error {
	_, err := r.aws.ECR.DeleteRepository(ctx, &ecr.DeleteRepositoryInput{
		RepositoryName: aws.String(r.RepoName()),
		Force:          true,
	})
	return err
}

// authCredentials gets registry credentials from ECR. The token is
// base64-encoded "user:password".
func (r *Registry) authCredentials(ctx context.Context) (username, password, proxyEndpoint string, err error) {
	result, err := r.aws.ECR.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", "", "", err
	}
	if len(result.AuthorizationData) == 0 {
		return "", "", "", fmt.Errorf("no authorization data returned")
	}

	data := result.AuthorizationData[0]
	username, password, err = decodeAuthToken(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return "", "", "", err
	}
	return username, password, aws.ToString(data.ProxyEndpoint), nil
}

// decodeAuthToken splits a base64 "user:password" ECR token.
func decodeAuthToken(token string) (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("decoding auth token: %w", err)
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", "", fmt.Errorf("malformed auth token")
	}
	return user, pass, nil
}
