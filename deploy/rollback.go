package deploy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsecs "github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

// Rollback repoints the service at an earlier task definition revision and
// waits for the rolling replacement. revision 0 means "the revision before
// the one currently deployed". Rollback is always operator-initiated; the
// pipeline never calls this on its own.
func (d *Deployer) Rollback(ctx context.Context, revision int) error {
	current, err := d.CurrentTaskDefinition(ctx)
	if err != nil {
		return err
	}

	var target string
	if revision > 0 {
		target = fmt.Sprintf("%s:%d", d.Family(), revision)
	} else {
		target, err = d.previousRevision(ctx, current)
		if err != nil {
			return err
		}
	}

	if sameRevision(current, target) {
		return fmt.Errorf("service already runs %s", target)
	}

	d.log.Info().Str("from", current).Str("to", target).Msg("rolling back")

	_, err = d.aws.ECS.UpdateService(ctx, &awsecs.UpdateServiceInput{
		Cluster:        aws.String(d.cfg.Prefix() + "-cluster"),
		Service:        aws.String(d.ServiceName()),
		TaskDefinition: aws.String(target),
	})
	if err != nil {
		return fmt.Errorf("updating service to %s: %w", target, err)
	}

	return d.WaitStable(ctx)
}

// previousRevision finds the newest ACTIVE revision older than current.
func (d *Deployer) previousRevision(ctx context.Context, current string) (string, error) {
	out, err := d.aws.ECS.ListTaskDefinitions(ctx, &awsecs.ListTaskDefinitionsInput{
		FamilyPrefix: aws.String(d.Family()),
		Status:       ecstypes.TaskDefinitionStatusActive,
		Sort:         ecstypes.SortOrderDesc,
	})
	if err != nil {
		return "", fmt.Errorf("listing task definitions: %w", err)
	}
	target, ok := pickPrevious(out.TaskDefinitionArns, current)
	if !ok {
		return "", fmt.Errorf("no earlier revision of %s to roll back to", d.Family())
	}
	return target, nil
}

// pickPrevious returns the first ARN in arns (sorted newest first) whose
// revision is lower than current's.
func pickPrevious(arns []string, current string) (string, bool) {
	cur := revisionOf(current)
	if cur <= 1 {
		return "", false
	}
	for _, arn := range arns {
		if rev := revisionOf(arn); rev > 0 && rev < cur {
			return arn, true
		}
	}
	return "", false
}

// revisionOf extracts the numeric revision from a task definition ARN or
// family:revision string. Returns 0 if there is none.
func revisionOf(ref string) int {
	idx := strings.LastIndex(ref, ":")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(ref[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

// sameRevision reports whether two task definition references name the same
// revision of the same family.
func sameRevision(a, b string) bool {
	return familyRevision(a) == familyRevision(b)
}

// familyRevision reduces an ARN or family:revision reference to
// "family:revision".
func familyRevision(ref string) string {
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		ref = ref[idx+1:]
	}
	return ref
}
