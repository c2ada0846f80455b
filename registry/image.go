package registry

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	dockerregistry "github.com/docker/docker/api/types/registry"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
)

// BuildInput names one release artifact: the version tag that triggered the
// deployment and the commit it was cut from.
type BuildInput struct {
	Version string // "v1.4.2"
	Commit  string // full or short SHA
}

// Refs returns the three references the image is pushed under.
func (b BuildInput) Refs(repoURI string) []string {
	return []string{
		repoURI + ":" + b.Version,
		repoURI + ":" + ShortSHA(b.Commit),
		repoURI + ":latest",
	}
}

// ShortSHA truncates a commit SHA to the conventional 7 characters.
func ShortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// BuildAndPush builds the image from the configured context and pushes it
// under all three tags. Returns the primary (version) reference.
func (r *Registry) BuildAndPush(ctx context.Context, repoURI string, in BuildInput) (string, error) {
	if in.Version == "" || in.Commit == "" {
		return "", fmt.Errorf("version and commit are required")
	}

	docker, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return "", fmt.Errorf("connecting to docker daemon: %w", err)
	}
	defer docker.Close()

	refs := in.Refs(repoURI)

	if err := r.build(ctx, docker, refs); err != nil {
		return "", fmt.Errorf("building image: %w", err)
	}

	username, password, _, err := r.authCredentials(ctx)
	if err != nil {
		return "", fmt.Errorf("ecr auth: %w", err)
	}
	authHeader, err := encodeRegistryAuth(username, password)
	if err != nil {
		return "", err
	}

	for _, ref := range refs {
		r.log.Info().Str("ref", ref).Msg("pushing image")
		if err := r.push(ctx, docker, ref, authHeader); err != nil {
			return "", fmt.Errorf("pushing %s: %w", ref, err)
		}
	}

	return refs[0], nil
}

func (r *Registry) build(ctx context.Context, docker *dockerclient.Client, tags []string) error {
	buildCtx, err := archive.TarWithOptions(r.cfg.ContextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("archiving build context %s: %w", r.cfg.ContextDir, err)
	}
	defer buildCtx.Close()

	resp, err := docker.ImageBuild(ctx, buildCtx, dockertypes.ImageBuildOptions{
		Dockerfile: r.cfg.Dockerfile,
		Tags:       tags,
		Remove:     true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return r.drainDockerStream(resp.Body)
}

func (r *Registry) push(ctx context.Context, docker *dockerclient.Client, ref, authHeader string) error {
	rc, err := docker.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: authHeader})
	if err != nil {
		return err
	}
	defer rc.Close()

	return r.drainDockerStream(rc)
}

// drainDockerStream consumes a docker JSON message stream, logging progress
// lines at debug and failing on the first errorDetail.
func (r *Registry) drainDockerStream(rc io.Reader) error {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg struct {
			Stream      string `json:"stream"`
			Status      string `json:"status"`
			ErrorDetail *struct {
				Message string `json:"message"`
			} `json:"errorDetail"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.ErrorDetail != nil {
			return fmt.Errorf("%s", msg.ErrorDetail.Message)
		}
		if msg.Stream != "" {
			r.log.Debug().Msg(msg.Stream)
		} else if msg.Status != "" {
			r.log.Debug().Msg(msg.Status)
		}
	}
	return scanner.Err()
}

// encodeRegistryAuth builds the X-Registry-Auth header value.
func encodeRegistryAuth(username, password string) (string, error) {
	buf, err := json.Marshal(dockerregistry.AuthConfig{
		Username: username,
		Password: password,
	})
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}
