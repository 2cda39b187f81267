package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in       string
		want     Endpoint
		trailing bool
	}{
		{"s3://bucket/data/", Endpoint{Kind: Remote, Bucket: "bucket", Key: "data/"}, true},
		{"s3://bucket/data", Endpoint{Kind: Remote, Bucket: "bucket", Key: "data"}, false},
		{"s3://bucket", Endpoint{Kind: Remote, Bucket: "bucket"}, false},
		{"s3://bucket/", Endpoint{Kind: Remote, Bucket: "bucket"}, false},
		{"s3://bucket//lead", Endpoint{Kind: Remote, Bucket: "bucket", Key: "lead"}, false},
		{"s3://bucket/a b/%20#x?y", Endpoint{Kind: Remote, Bucket: "bucket", Key: "a b/%20#x?y"}, false},
		{"/tmp/out", Endpoint{Kind: Local, Path: "/tmp/out"}, false},
		{"proj/", Endpoint{Kind: Local, Path: "proj/"}, true},
		{"S3://bucket/x", Endpoint{Kind: Local, Path: "S3://bucket/x"}, false},
	}

	for _, tt := range tests {
		got, err := ParseEndpoint(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.trailing, got.TrailingSlash(), tt.in)
	}
}

func TestParseEndpoint_invalid(t *testing.T) {
	for _, in := range []string{"", "s3://", "s3:///key"} {
		_, err := ParseEndpoint(in)
		assert.ErrorIs(t, err, ErrInvalidAddress, in)
	}
}

func TestEndpoint_String(t *testing.T) {
	ep, err := ParseEndpoint("s3://bucket/data/")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/data/", ep.String())
	assert.True(t, ep.IsRemote())
	assert.Equal(t, "remote", ep.Kind.String())

	ep, err = ParseEndpoint("/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", ep.String())
	assert.False(t, ep.IsRemote())
}
