package policy

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/savaki/data-pipeline/internal/models"
)

func TestValidator_ValidateRunConf(t *testing.T) {
	ctx := context.Background()

	validator, err := NewValidator(ctx, "dev")
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	valid := models.RunConf{
		BucketName: "my-data-bucket",
		Region:     "us-west-2",
		APIURL:     "https://api.example.com/v1/data",
	}

	tests := []struct {
		name             string
		mutate           func(c *models.RunConf)
		expectAllow      bool
		expectViolations []string
	}{
		{
			name:        "Valid conf",
			mutate:      func(c *models.RunConf) {},
			expectAllow: true,
		},
		{
			name:        "Plain http allowed outside prod",
			mutate:      func(c *models.RunConf) { c.APIURL = "http://localhost:8080/data" },
			expectAllow: true,
		},
		{
			name:        "Dotted bucket",
			mutate:      func(c *models.RunConf) { c.BucketName = "logs.example.com" },
			expectAllow: true,
		},
		{
			name:        "Gov region",
			mutate:      func(c *models.RunConf) { c.Region = "us-gov-west-1" },
			expectAllow: true,
		},
		{
			name:             "Missing bucket",
			mutate:           func(c *models.RunConf) { c.BucketName = "" },
			expectViolations: []string{"bucket_name is required"},
		},
		{
			name:             "Short bucket",
			mutate:           func(c *models.RunConf) { c.BucketName = "ab" },
			expectViolations: []string{"bucket_name must be at least 3 characters, got 2"},
		},
		{
			name:             "Long bucket",
			mutate:           func(c *models.RunConf) { c.BucketName = strings.Repeat("a", 64) },
			expectViolations: []string{"bucket_name must be at most 63 characters, got 64"},
		},
		{
			name:   "Uppercase bucket",
			mutate: func(c *models.RunConf) { c.BucketName = "My_Bucket" },
			expectViolations: []string{
				"bucket_name must use lowercase letters, numbers, dots and hyphens and begin and end with a letter or number",
			},
		},
		{
			name:             "Consecutive dots",
			mutate:           func(c *models.RunConf) { c.BucketName = "my..bucket" },
			expectViolations: []string{"bucket_name must not contain consecutive dots"},
		},
		{
			name:             "IP address bucket",
			mutate:           func(c *models.RunConf) { c.BucketName = "192.168.5.4" },
			expectViolations: []string{"bucket_name must not be formatted as an IP address"},
		},
		{
			name:             "Reserved prefix",
			mutate:           func(c *models.RunConf) { c.BucketName = "xn--bucket" },
			expectViolations: []string{"bucket_name must not start with xn--"},
		},
		{
			name:             "Reserved suffix",
			mutate:           func(c *models.RunConf) { c.BucketName = "bucket-s3alias" },
			expectViolations: []string{"bucket_name must not end with -s3alias"},
		},
		{
			name:             "Missing api_url",
			mutate:           func(c *models.RunConf) { c.APIURL = "" },
			expectViolations: []string{"api_url is required"},
		},
		{
			name:             "Non-http api_url",
			mutate:           func(c *models.RunConf) { c.APIURL = "ftp://example.com/data" },
			expectViolations: []string{`api_url must be an http or https URL, got "ftp://example.com/data"`},
		},
		{
			name:             "Invalid region",
			mutate:           func(c *models.RunConf) { c.Region = "mars" },
			expectViolations: []string{`region "mars" is not a valid AWS region`},
		},
		{
			name: "Multiple violations",
			mutate: func(c *models.RunConf) {
				c.BucketName = ""
				c.APIURL = ""
			},
			expectViolations: []string{"api_url is required", "bucket_name is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := valid
			tt.mutate(&conf)

			result, err := validator.ValidateRunConf(ctx, conf)
			if err != nil {
				t.Fatalf("ValidateRunConf() error = %v", err)
			}

			if result.Allowed != tt.expectAllow {
				t.Errorf("ValidateRunConf() allowed = %v, want %v (violations: %v)", result.Allowed, tt.expectAllow, result.Violations)
			}

			if !tt.expectAllow && !slices.Equal(result.Violations, tt.expectViolations) {
				t.Errorf("ValidateRunConf() violations = %v, want %v", result.Violations, tt.expectViolations)
			}
		})
	}
}

func TestValidator_ProdRequiresHTTPS(t *testing.T) {
	ctx := context.Background()

	validator, err := NewValidator(ctx, "prod")
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	conf := models.RunConf{
		BucketName: "my-data-bucket",
		Region:     "eu-central-1",
		APIURL:     "http://api.example.com/data",
	}

	result, err := validator.ValidateRunConf(ctx, conf)
	if err != nil {
		t.Fatalf("ValidateRunConf() error = %v", err)
	}
	if result.Allowed {
		t.Fatalf("expected plain http to be rejected in prod")
	}
	if !slices.Equal(result.Violations, []string{"api_url must use https in prod"}) {
		t.Errorf("unexpected violations: %v", result.Violations)
	}

	conf.APIURL = "https://api.example.com/data"
	result, err = validator.ValidateRunConf(ctx, conf)
	if err != nil {
		t.Fatalf("ValidateRunConf() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected https to be allowed in prod, got %v", result.Violations)
	}
}
