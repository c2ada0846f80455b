package infra

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
)

func TestSubnetCIDR(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "10.42.0.0/24"},
		{1, "10.42.1.0/24"},
		{5, "10.42.5.0/24"},
	}
	for _, tt := range tests {
		if got := subnetCIDR(tt.n); got != tt.want {
			t.Errorf("subnetCIDR(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestAPIErrorCode(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "InvalidVpcID.NotFound", Message: "no such vpc"}
	if got := apiErrorCode(apiErr); got != "InvalidVpcID.NotFound" {
		t.Errorf("apiErrorCode = %q", got)
	}
	if got := apiErrorCode(fmt.Errorf("wrapped: %w", apiErr)); got != "InvalidVpcID.NotFound" {
		t.Errorf("apiErrorCode(wrapped) = %q", got)
	}
	if got := apiErrorCode(errors.New("plain")); got != "" {
		t.Errorf("apiErrorCode(plain) = %q, want empty", got)
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"InvalidVpcID.NotFound", true},
		{"LoadBalancerNotFound", true},
		{"ClusterNotFoundException", true},
		{"NoSuchEntity", true},
		{"AccessDenied", false},
		{"", false},
	}
	for _, tt := range tests {
		err := error(&smithy.GenericAPIError{Code: tt.code})
		if tt.code == "" {
			err = errors.New("plain")
		}
		if got := isNotFound(err); got != tt.want {
			t.Errorf("isNotFound(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestEC2TagsCarryMarkers(t *testing.T) {
	tags := ec2Tags("shop-production-vpc", "production")
	found := map[string]string{}
	for _, tag := range tags {
		found[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	if found["Name"] != "shop-production-vpc" {
		t.Errorf("Name tag = %q", found["Name"])
	}
	if found[ManagedByKey] != ManagedByValue {
		t.Errorf("%s tag = %q, want %q", ManagedByKey, found[ManagedByKey], ManagedByValue)
	}
	if found[EnvKey] != "production" {
		t.Errorf("%s tag = %q, want production", EnvKey, found[EnvKey])
	}
}

func TestNameFilterScopedToManaged(t *testing.T) {
	filters := nameFilter("shop-production-vpc")
	if len(filters) != 2 {
		t.Fatalf("got %d filters, want 2", len(filters))
	}
	if aws.ToString(filters[1].Name) != "tag:"+ManagedByKey {
		t.Errorf("second filter = %q, want managed-by tag filter", aws.ToString(filters[1].Name))
	}
}
