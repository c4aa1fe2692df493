package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemeOf(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		path string
		want string
	}{
		"relative path":     {path: "data/train.csv", want: ""},
		"absolute path":     {path: "/srv/data.csv", want: ""},
		"file url":          {path: "file:///srv/data.csv", want: ""},
		"s3 url":            {path: "s3://bucket/key", want: "s3"},
		"uppercase scheme":  {path: "S3://bucket/key", want: "s3"},
		"ssh url":           {path: "ssh://host/path", want: "ssh"},
		"leading separator": {path: "://nothing", want: ""},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SchemeOf(tt.path))
		})
	}
}

type stubStorage struct {
	scheme string
}

func (s stubStorage) Scheme() string { return s.scheme }

func (s stubStorage) Checksum(context.Context, string) (string, error) { return "", nil }

func (s stubStorage) Exists(context.Context, string) (bool, error) { return true, nil }

func TestRegistry_For(t *testing.T) {
	t.Parallel()

	local := NewLocalStorage(nil)
	s3 := stubStorage{scheme: "s3"}
	r := NewRegistry(local, s3)

	got, err := r.For("data.csv")
	require.NoError(t, err)
	assert.Same(t, local, got)

	got, err = r.For("s3://bucket/key")
	require.NoError(t, err)
	assert.Equal(t, s3, got)

	_, err = r.For("hdfs://cluster/file")
	require.Error(t, err)
	var unsupported *UnsupportedSchemeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "hdfs", unsupported.Scheme)
	assert.Equal(t, []string{"file", "s3"}, unsupported.Configured)
	assert.Contains(t, err.Error(), "hdfs://cluster/file")
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	t.Parallel()

	r := NewRegistry(stubStorage{scheme: "ssh"})
	replacement := stubStorage{scheme: "ssh"}
	r.Register(replacement)

	assert.Equal(t, []string{"ssh"}, r.Schemes())
}
